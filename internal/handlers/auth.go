package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lendfast/drawbridge/internal/identity"
	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/services"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

// AuthServiceInterface defines the interface for the gated auth flows
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	SignUp(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	RequestPasswordReset(ctx context.Context, email, ipAddress, userAgent string) error
	OAuthSignInURL(ctx context.Context, provider, redirectTo, ipAddress string) (string, error)
	ChallengeMFA(ctx context.Context, factorID, ipAddress string) (*identity.Challenge, error)
	VerifyMFA(ctx context.Context, factorID, challengeID, code, ipAddress string) (*services.AuthResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpRequest represents the request body for account creation
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// PasswordResetRequest represents the request body for a reset email
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ChallengeMFARequest represents the request body for starting a provider
// MFA challenge
type ChallengeMFARequest struct {
	FactorID string `json:"factor_id" validate:"required"`
}

// VerifyMFARequest represents the request body for completing a provider
// MFA challenge
type VerifyMFARequest struct {
	FactorID    string `json:"factor_id" validate:"required"`
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,min=6,max=10"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	authResp, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimitExceeded):
			writeRateLimited(w, err)
		case errors.Is(err, models.ErrUnauthorized):
			// One message for bad email and bad password alike
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(authResp)
}

// SignUp handles account creation
// @Summary Create account
// @Accept json
// @Param request body SignUpRequest true "Sign up request"
// @Produce json
// @Success 201 {object} services.AuthResponse
// @Success 202
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/signup [post]
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	authResp, err := h.service.SignUp(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimitExceeded):
			writeRateLimited(w, err)
		case errors.Is(err, models.ErrConflict):
			// Same body as the confirmation-pending path so the endpoint
			// cannot be used to test whether an address is registered
			writeSignupAccepted(w)
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	// No session yet means the provider wants the email confirmed first
	if authResp.AccessToken == "" {
		writeSignupAccepted(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(authResp)
}

func writeSignupAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Registration received. If the email is not already registered, you will receive a confirmation email.",
	})
}

// RequestPasswordReset handles password reset requests
// @Summary Request a password reset email
// @Accept json
// @Param request body PasswordResetRequest true "Password reset request"
// @Produce json
// @Success 202
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/password-reset [post]
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	if err := h.service.RequestPasswordReset(r.Context(), req.Email, ipAddress, userAgent); err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimitExceeded):
			writeRateLimited(w, err)
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "If an account exists with this email, a password reset email will be sent.",
	})
}

// OAuthSignIn handles OAuth redirect URL generation
// @Summary Get the provider redirect URL for an OAuth sign-in
// @Param provider path string true "OAuth provider name"
// @Param redirect_to query string false "Post-login redirect"
// @Produce json
// @Success 200
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/oauth/{provider}/url [get]
func (h *AuthHandler) OAuthSignIn(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	redirectTo := r.URL.Query().Get("redirect_to")
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	url, err := h.service.OAuthSignInURL(r.Context(), provider, redirectTo, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimitExceeded):
			writeRateLimited(w, err)
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Unknown provider")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"url": url})
}

// ChallengeMFA starts a provider-side MFA challenge
// @Summary Start an MFA challenge
// @Accept json
// @Param request body ChallengeMFARequest true "Challenge request"
// @Produce json
// @Success 200
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/mfa/challenge [post]
func (h *AuthHandler) ChallengeMFA(w http.ResponseWriter, r *http.Request) {
	var req ChallengeMFARequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	challenge, err := h.service.ChallengeMFA(r.Context(), req.FactorID, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimitExceeded):
			writeRateLimited(w, err)
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid request")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Challenge refused")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"challenge_id": challenge.ID,
		"factor_id":    challenge.FactorID,
		"expires_at":   challenge.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// VerifyMFA completes a provider-side MFA challenge
// @Summary Verify an MFA challenge code
// @Accept json
// @Param request body VerifyMFARequest true "Verify request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/mfa/verify [post]
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req VerifyMFARequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	authResp, err := h.service.VerifyMFA(r.Context(), req.FactorID, req.ChallengeID, strings.TrimSpace(req.Code), ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimitExceeded):
			writeRateLimited(w, err)
		case errors.Is(err, models.ErrMFACodeInvalid):
			pkghttp.WriteUnauthorized(w, "Invalid verification code")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(authResp)
}
