package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lendfast/drawbridge/internal/auth"
	"github.com/lendfast/drawbridge/internal/identity"
	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/services"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds access token claims to the request context, as
// AuthMiddleware would after validating a bearer token
func WithAuthContext(req *http.Request, userID uuid.UUID, email, role string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID.String(),
		Email:  email,
		Role:   role,
		Type:   models.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithElevatedContext adds elevated token claims, as a request that passed
// RequireElevated would carry
func WithElevatedContext(req *http.Request, userID uuid.UUID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID.String(),
		Email:  email,
		Role:   models.RoleAdmin,
		Type:   models.TokenTypeElevated,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc                func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	SignUpFunc               func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	RequestPasswordResetFunc func(ctx context.Context, email, ipAddress, userAgent string) error
	OAuthSignInURLFunc       func(ctx context.Context, provider, redirectTo, ipAddress string) (string, error)
	ChallengeMFAFunc         func(ctx context.Context, factorID, ipAddress string) (*identity.Challenge, error)
	VerifyMFAFunc            func(ctx context.Context, factorID, challengeID, code, ipAddress string) (*services.AuthResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
	if m.SignUpFunc == nil {
		return nil, models.ErrConflict
	}
	return m.SignUpFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email, ipAddress, userAgent string) error {
	if m.RequestPasswordResetFunc == nil {
		return nil
	}
	return m.RequestPasswordResetFunc(ctx, email, ipAddress, userAgent)
}

func (m *MockAuthService) OAuthSignInURL(ctx context.Context, provider, redirectTo, ipAddress string) (string, error) {
	if m.OAuthSignInURLFunc == nil {
		return "https://identity.example.test/authorize?provider=" + provider, nil
	}
	return m.OAuthSignInURLFunc(ctx, provider, redirectTo, ipAddress)
}

func (m *MockAuthService) ChallengeMFA(ctx context.Context, factorID, ipAddress string) (*identity.Challenge, error) {
	if m.ChallengeMFAFunc == nil {
		return &identity.Challenge{ID: "challenge_123", FactorID: factorID, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
	}
	return m.ChallengeMFAFunc(ctx, factorID, ipAddress)
}

func (m *MockAuthService) VerifyMFA(ctx context.Context, factorID, challengeID, code, ipAddress string) (*services.AuthResponse, error) {
	if m.VerifyMFAFunc == nil {
		return nil, models.ErrMFACodeInvalid
	}
	return m.VerifyMFAFunc(ctx, factorID, challengeID, code, ipAddress)
}

// MockConsoleService implements ConsoleServiceInterface for testing
type MockConsoleService struct {
	ExecuteMutateFunc func(ctx context.Context, req services.ConsoleRequest) (*models.StatementResult, error)
	ExecuteQueryFunc  func(ctx context.Context, req services.ConsoleRequest) (*models.StatementResult, error)
}

func (m *MockConsoleService) ExecuteMutate(ctx context.Context, req services.ConsoleRequest) (*models.StatementResult, error) {
	if m.ExecuteMutateFunc == nil {
		return &models.StatementResult{RowsAffected: 1}, nil
	}
	return m.ExecuteMutateFunc(ctx, req)
}

func (m *MockConsoleService) ExecuteQuery(ctx context.Context, req services.ConsoleRequest) (*models.StatementResult, error) {
	if m.ExecuteQueryFunc == nil {
		return &models.StatementResult{Columns: []string{"id"}, Rows: [][]any{}}, nil
	}
	return m.ExecuteQueryFunc(ctx, req)
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	EnrollFunc                 func(ctx context.Context, userID uuid.UUID, email string) (*models.MFAEnrollmentResponse, error)
	ActivateFunc               func(ctx context.Context, userID uuid.UUID, code string) error
	StepUpFunc                 func(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error)
	StepUpWithRecoveryCodeFunc func(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error)
	DisenrollFunc              func(ctx context.Context, userID uuid.UUID) error
	StatusFunc                 func(ctx context.Context, userID uuid.UUID) (*services.MFAStatusResponse, error)
}

func (m *MockMFAService) Enroll(ctx context.Context, userID uuid.UUID, email string) (*models.MFAEnrollmentResponse, error) {
	if m.EnrollFunc == nil {
		return &models.MFAEnrollmentResponse{
			Secret:        "JBSWY3DPEHPK3PXP",
			QRCode:        "data:image/png;base64,iVBOR",
			RecoveryCodes: []string{"RESCUE23", "RESCUE24"},
		}, nil
	}
	return m.EnrollFunc(ctx, userID, email)
}

func (m *MockMFAService) Activate(ctx context.Context, userID uuid.UUID, code string) error {
	if m.ActivateFunc == nil {
		return nil
	}
	return m.ActivateFunc(ctx, userID, code)
}

func (m *MockMFAService) StepUp(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error) {
	if m.StepUpFunc == nil {
		return &models.StepUpResponse{ElevatedToken: "elevated-token", ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
	}
	return m.StepUpFunc(ctx, userID, email, role, code)
}

func (m *MockMFAService) StepUpWithRecoveryCode(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error) {
	if m.StepUpWithRecoveryCodeFunc == nil {
		return &models.StepUpResponse{ElevatedToken: "elevated-token", ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
	}
	return m.StepUpWithRecoveryCodeFunc(ctx, userID, email, role, code)
}

func (m *MockMFAService) Disenroll(ctx context.Context, userID uuid.UUID) error {
	if m.DisenrollFunc == nil {
		return nil
	}
	return m.DisenrollFunc(ctx, userID)
}

func (m *MockMFAService) Status(ctx context.Context, userID uuid.UUID) (*services.MFAStatusResponse, error) {
	if m.StatusFunc == nil {
		return &services.MFAStatusResponse{}, nil
	}
	return m.StatusFunc(ctx, userID)
}

// MockAuditReader implements AuditReader for testing
type MockAuditReader struct {
	GetActorTrailFunc     func(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
	GetPrincipalTrailFunc func(ctx context.Context, principalKey string, limit, offset int) ([]*models.AuditLog, error)
	GetEventTrailFunc     func(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error)
	GetRecentFailuresFunc func(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

func (m *MockAuditReader) GetActorTrail(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	if m.GetActorTrailFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.GetActorTrailFunc(ctx, actorID, limit, offset)
}

func (m *MockAuditReader) GetPrincipalTrail(ctx context.Context, principalKey string, limit, offset int) ([]*models.AuditLog, error) {
	if m.GetPrincipalTrailFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.GetPrincipalTrailFunc(ctx, principalKey, limit, offset)
}

func (m *MockAuditReader) GetEventTrail(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error) {
	if m.GetEventTrailFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.GetEventTrailFunc(ctx, eventType, limit, offset)
}

func (m *MockAuditReader) GetRecentFailures(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	if m.GetRecentFailuresFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.GetRecentFailuresFunc(ctx, limit, offset)
}

// MockThrottleAdmin implements ThrottleAdminInterface for testing
type MockThrottleAdmin struct {
	BlockIdentifierFunc   func(ctx context.Context, identifier string, until time.Time) error
	UnblockIdentifierFunc func(ctx context.Context, identifier string) error
}

func (m *MockThrottleAdmin) BlockIdentifier(ctx context.Context, identifier string, until time.Time) error {
	if m.BlockIdentifierFunc == nil {
		return nil
	}
	return m.BlockIdentifierFunc(ctx, identifier, until)
}

func (m *MockThrottleAdmin) UnblockIdentifier(ctx context.Context, identifier string) error {
	if m.UnblockIdentifierFunc == nil {
		return nil
	}
	return m.UnblockIdentifierFunc(ctx, identifier)
}
