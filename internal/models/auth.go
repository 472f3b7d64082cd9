package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types issued by the portal. Access tokens authenticate ordinary API
// calls; elevated tokens prove a recent MFA step-up and gate the admin
// console write path.
const (
	TokenTypeAccess   = "access"
	TokenTypeElevated = "elevated"
)

// Roles carried in token claims. Role assignment lives with the hosted
// identity provider; the portal only reads it back.
const (
	RoleBorrower = "borrower"
	RoleOfficer  = "officer"
	RoleAdmin    = "admin"
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
