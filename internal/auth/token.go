package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/models"
)

// TokenManager issues and validates the portal's own JWTs. Access tokens are
// minted after the hosted provider accepts a sign-in; elevated tokens are
// minted only by a fresh MFA step-up and expire quickly.
type TokenManager struct {
	secret              string
	accessTokenExpiry   time.Duration
	elevatedTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, elevatedExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:              secret,
		accessTokenExpiry:   accessExpiry,
		elevatedTokenExpiry: elevatedExpiry,
	}
}

// GenerateAccessToken creates a short-lived access token with JTI
func (tm *TokenManager) GenerateAccessToken(userID, email, role string) (string, error) {
	return tm.generate(models.TokenTypeAccess, userID, email, role, tm.accessTokenExpiry)
}

// GenerateElevatedToken creates a step-up token for the admin console write
// path. Its lifetime bounds how long a single MFA verification stays good.
func (tm *TokenManager) GenerateElevatedToken(userID, email, role string) (string, error) {
	return tm.generate(models.TokenTypeElevated, userID, email, role, tm.elevatedTokenExpiry)
}

// AccessTokenExpiry reports how long a freshly minted access token lives.
func (tm *TokenManager) AccessTokenExpiry() time.Duration {
	return tm.accessTokenExpiry
}

// ElevatedTokenExpiry reports how long a freshly minted elevated token lives.
func (tm *TokenManager) ElevatedTokenExpiry() time.Duration {
	return tm.elevatedTokenExpiry
}

func (tm *TokenManager) generate(tokenType, userID, email, role string, expiry time.Duration) (string, error) {
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	// Validate token type
	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}
