package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lendfast/drawbridge/internal/handlers"
	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/services"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

func TestLogin_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return &services.AuthResponse{
				AccessToken: "access_token_123",
				TokenType:   "Bearer",
				ExpiresIn:   900,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "borrower@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp services.AuthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
}

func TestLogin_InvalidBody(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil)
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader("{not json"))

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLogin_MissingEmail(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLogin_AuthenticationFailed(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, models.ErrUnauthorized
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "borrower@example.com",
		Password: "wrongpassword",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "Authentication failed", resp.Message)
}

func TestLogin_RateLimited_SetsRetryAfter(t *testing.T) {
	resetAt := time.Now().Add(5 * time.Minute)
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, &models.RateLimitError{RetryAfter: 5 * time.Minute, ResetAt: resetAt}
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "borrower@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "300", w.Header().Get("Retry-After"))

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp.Message, "5 minutes")
	assert.Contains(t, resp.Details, "resets at")
}

func TestSignUp_ImmediateSession(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		SignUpFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return &services.AuthResponse{
				AccessToken: "access_token_new",
				TokenType:   "Bearer",
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/signup", handlers.SignUpRequest{
		Email:    "newuser@example.com",
		Password: "securePassword123",
	})

	w := httptest.NewRecorder()
	handler.SignUp(w, req)

	var resp services.AuthResponse
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.Equal(t, "access_token_new", resp.AccessToken)
}

func TestSignUp_ConfirmationPending(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		SignUpFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return &services.AuthResponse{
				User: &services.UserResponse{Email: email, Role: models.RoleBorrower},
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/signup", handlers.SignUpRequest{
		Email:    "newuser@example.com",
		Password: "securePassword123",
	})

	w := httptest.NewRecorder()
	handler.SignUp(w, req)

	assert.Equal(t, 202, w.Code)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp["message"], "Registration received")
}

func TestSignUp_DuplicateEmail_AntiEnumeration(t *testing.T) {
	// A registered address gets the same 202 as a pending confirmation
	mockAuth := &handlers.MockAuthService{
		SignUpFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, models.ErrConflict
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/signup", handlers.SignUpRequest{
		Email:    "existing@example.com",
		Password: "securePassword123",
	})

	w := httptest.NewRecorder()
	handler.SignUp(w, req)

	assert.Equal(t, 202, w.Code)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp["message"], "Registration received")
}

func TestRequestPasswordReset_Accepted(t *testing.T) {
	mockAuth := &handlers.MockAuthService{}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset", handlers.PasswordResetRequest{
		Email: "borrower@example.com",
	})

	w := httptest.NewRecorder()
	handler.RequestPasswordReset(w, req)

	assert.Equal(t, 202, w.Code)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp["message"], "If an account exists")
}

func TestRequestPasswordReset_RateLimited(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RequestPasswordResetFunc: func(ctx context.Context, email, ipAddress, userAgent string) error {
			return &models.RateLimitError{RetryAfter: 15 * time.Minute, ResetAt: time.Now().Add(15 * time.Minute)}
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset", handlers.PasswordResetRequest{
		Email: "borrower@example.com",
	})

	w := httptest.NewRecorder()
	handler.RequestPasswordReset(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
}

func TestOAuthSignIn_ReturnsProviderURL(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/oauth/google/url", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"provider": "google"})

	w := httptest.NewRecorder()
	handler.OAuthSignIn(w, req)

	var resp map[string]string
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Contains(t, resp["url"], "provider=google")
}

func TestChallengeMFA_Success(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/mfa/challenge", handlers.ChallengeMFARequest{
		FactorID: "factor_abc",
	})

	w := httptest.NewRecorder()
	handler.ChallengeMFA(w, req)

	var resp map[string]string
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "challenge_123", resp["challenge_id"])
	assert.Equal(t, "factor_abc", resp["factor_id"])
	assert.NotEmpty(t, resp["expires_at"])
}

func TestVerifyMFA_InvalidCode(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		VerifyMFAFunc: func(ctx context.Context, factorID, challengeID, code, ipAddress string) (*services.AuthResponse, error) {
			return nil, models.ErrMFACodeInvalid
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/mfa/verify", handlers.VerifyMFARequest{
		FactorID:    "factor_abc",
		ChallengeID: "challenge_123",
		Code:        "000000",
	})

	w := httptest.NewRecorder()
	handler.VerifyMFA(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestVerifyMFA_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		VerifyMFAFunc: func(ctx context.Context, factorID, challengeID, code, ipAddress string) (*services.AuthResponse, error) {
			return &services.AuthResponse{AccessToken: "post_mfa_token", TokenType: "Bearer"}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/mfa/verify", handlers.VerifyMFARequest{
		FactorID:    "factor_abc",
		ChallengeID: "challenge_123",
		Code:        "123456",
	})

	w := httptest.NewRecorder()
	handler.VerifyMFA(w, req)

	var resp services.AuthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "post_mfa_token", resp.AccessToken)
}

// Type assertions to ensure mocks satisfy the handler interfaces
var (
	_ handlers.AuthServiceInterface    = (*handlers.MockAuthService)(nil)
	_ handlers.ConsoleServiceInterface = (*handlers.MockConsoleService)(nil)
	_ handlers.MFAServiceInterface     = (*handlers.MockMFAService)(nil)
	_ handlers.AuditReader             = (*handlers.MockAuditReader)(nil)
	_ handlers.ThrottleAdminInterface  = (*handlers.MockThrottleAdmin)(nil)
)
