// Package identity wraps the hosted authentication provider's REST API. The
// portal stores no credentials of its own; every credential and MFA factor
// check is delegated to the provider and mapped back into portal types.
package identity

import (
	"fmt"
	"time"
)

// Session is the token bundle the provider returns after a successful
// credential or MFA verification.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	UserID       string
	Email        string
	Role         string
}

// Challenge is an MFA challenge the provider opened against a factor.
type Challenge struct {
	ID        string
	FactorID  string
	ExpiresAt time.Time
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
}

// IsAuthFailure reports whether the error is a credential or validation
// problem rather than a provider outage. Callers treat auth failures as
// failed attempts and anything else as infrastructure trouble.
func (e *APIError) IsAuthFailure() bool {
	switch e.Status {
	case 400, 401, 403, 422:
		return true
	}
	return false
}
