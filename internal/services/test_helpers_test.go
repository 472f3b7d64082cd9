package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lendfast/drawbridge/internal/identity"
	"github.com/lendfast/drawbridge/internal/models"
)

// MockThrottleRepository implements ThrottleRepository for testing
type MockThrottleRepository struct {
	CheckAndIncrementFunc func(ctx context.Context, identifier, endpoint string, maxRequests int, window time.Duration) (*models.RateLimitResult, error)
	BlockFunc             func(ctx context.Context, identifier, endpoint string, window time.Duration, until time.Time) error
	UnblockFunc           func(ctx context.Context, identifier, endpoint string) error
}

func (m *MockThrottleRepository) CheckAndIncrement(ctx context.Context, identifier, endpoint string, maxRequests int, window time.Duration) (*models.RateLimitResult, error) {
	if m.CheckAndIncrementFunc != nil {
		return m.CheckAndIncrementFunc(ctx, identifier, endpoint, maxRequests, window)
	}
	return &models.RateLimitResult{Allowed: true, Remaining: maxRequests - 1, ResetAt: time.Now().Add(window)}, nil
}

func (m *MockThrottleRepository) Block(ctx context.Context, identifier, endpoint string, window time.Duration, until time.Time) error {
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, identifier, endpoint, window, until)
	}
	return nil
}

func (m *MockThrottleRepository) Unblock(ctx context.Context, identifier, endpoint string) error {
	if m.UnblockFunc != nil {
		return m.UnblockFunc(ctx, identifier, endpoint)
	}
	return nil
}

// MockAuditLogStore implements AuditLogStore for testing. When CreateFunc is
// nil, created logs are captured in CreatedLogs for assertions.
type MockAuditLogStore struct {
	CreateFunc            func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByActorIDFunc      func(ctx context.Context, actorID uuid.UUID, limit int, offset int) ([]*models.AuditLog, error)
	GetByPrincipalKeyFunc func(ctx context.Context, principalKey string, limit int, offset int) ([]*models.AuditLog, error)
	GetByEventTypeFunc    func(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error)
	GetFailedAttemptsFunc func(ctx context.Context, limit int, offset int) ([]*models.AuditLog, error)
	CreatedLogs           []*models.AuditLog
}

func (m *MockAuditLogStore) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	m.CreatedLogs = append(m.CreatedLogs, log)
	return log, nil
}

func (m *MockAuditLogStore) GetByActorID(ctx context.Context, actorID uuid.UUID, limit int, offset int) ([]*models.AuditLog, error) {
	if m.GetByActorIDFunc != nil {
		return m.GetByActorIDFunc(ctx, actorID, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

func (m *MockAuditLogStore) GetByPrincipalKey(ctx context.Context, principalKey string, limit int, offset int) ([]*models.AuditLog, error) {
	if m.GetByPrincipalKeyFunc != nil {
		return m.GetByPrincipalKeyFunc(ctx, principalKey, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

func (m *MockAuditLogStore) GetByEventType(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error) {
	if m.GetByEventTypeFunc != nil {
		return m.GetByEventTypeFunc(ctx, eventType, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

func (m *MockAuditLogStore) GetFailedAttempts(ctx context.Context, limit int, offset int) ([]*models.AuditLog, error) {
	if m.GetFailedAttemptsFunc != nil {
		return m.GetFailedAttemptsFunc(ctx, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

// MockStatementRunner implements StatementRunner for testing
type MockStatementRunner struct {
	ExecuteWriteFunc func(ctx context.Context, statement string) (*models.StatementResult, error)
	ExecuteQueryFunc func(ctx context.Context, statement string) (*models.StatementResult, error)
}

func (m *MockStatementRunner) ExecuteWrite(ctx context.Context, statement string) (*models.StatementResult, error) {
	if m.ExecuteWriteFunc != nil {
		return m.ExecuteWriteFunc(ctx, statement)
	}
	return &models.StatementResult{RowsAffected: 1}, nil
}

func (m *MockStatementRunner) ExecuteQuery(ctx context.Context, statement string) (*models.StatementResult, error) {
	if m.ExecuteQueryFunc != nil {
		return m.ExecuteQueryFunc(ctx, statement)
	}
	return &models.StatementResult{Columns: []string{"id"}, Rows: [][]any{}}, nil
}

// MockWriteThrottle implements WriteThrottle for testing
type MockWriteThrottle struct {
	CheckMutateFunc func(ctx context.Context, identifier string) (*models.RateLimitResult, error)
}

func (m *MockWriteThrottle) CheckMutate(ctx context.Context, identifier string) (*models.RateLimitResult, error) {
	if m.CheckMutateFunc != nil {
		return m.CheckMutateFunc(ctx, identifier)
	}
	return &models.RateLimitResult{Allowed: true, Remaining: 9, ResetAt: time.Now().Add(time.Minute)}, nil
}

// MockMutationAuditor implements MutationAuditor for testing
type MockMutationAuditor struct {
	RecordAdminMutationFunc    func(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string) error
	RecordAdminQueryFunc       func(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string)
	RecordBlockedStatementFunc func(ctx context.Context, actorID uuid.UUID, principalKey, statement, reason string)
	RecordThrottleDeniedFunc   func(ctx context.Context, actorID uuid.UUID, principalKey string, resetAt time.Time)
}

func (m *MockMutationAuditor) RecordAdminMutation(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string) error {
	if m.RecordAdminMutationFunc != nil {
		return m.RecordAdminMutationFunc(ctx, actorID, principalKey, statement, ipAddress, userAgent)
	}
	return nil
}

func (m *MockMutationAuditor) RecordAdminQuery(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string) {
	if m.RecordAdminQueryFunc != nil {
		m.RecordAdminQueryFunc(ctx, actorID, principalKey, statement, ipAddress, userAgent)
	}
}

func (m *MockMutationAuditor) RecordBlockedStatement(ctx context.Context, actorID uuid.UUID, principalKey, statement, reason string) {
	if m.RecordBlockedStatementFunc != nil {
		m.RecordBlockedStatementFunc(ctx, actorID, principalKey, statement, reason)
	}
}

func (m *MockMutationAuditor) RecordThrottleDenied(ctx context.Context, actorID uuid.UUID, principalKey string, resetAt time.Time) {
	if m.RecordThrottleDeniedFunc != nil {
		m.RecordThrottleDeniedFunc(ctx, actorID, principalKey, resetAt)
	}
}

// MockIdentityProvider implements IdentityProvider for testing
type MockIdentityProvider struct {
	SignInWithPasswordFunc func(ctx context.Context, email, password string) (*identity.Session, error)
	SignUpFunc             func(ctx context.Context, email, password string) (*identity.Session, error)
	SendPasswordResetFunc  func(ctx context.Context, email string) error
	OAuthRedirectURLFunc   func(provider, redirectTo string) string
	ChallengeMFAFunc       func(ctx context.Context, factorID string) (*identity.Challenge, error)
	VerifyMFAFunc          func(ctx context.Context, factorID, challengeID, code string) (*identity.Session, error)
}

func (m *MockIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	if m.SignInWithPasswordFunc != nil {
		return m.SignInWithPasswordFunc(ctx, email, password)
	}
	return NewTestSession(email), nil
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, email, password string) (*identity.Session, error) {
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, email, password)
	}
	return NewTestSession(email), nil
}

func (m *MockIdentityProvider) SendPasswordReset(ctx context.Context, email string) error {
	if m.SendPasswordResetFunc != nil {
		return m.SendPasswordResetFunc(ctx, email)
	}
	return nil
}

func (m *MockIdentityProvider) OAuthRedirectURL(provider, redirectTo string) string {
	if m.OAuthRedirectURLFunc != nil {
		return m.OAuthRedirectURLFunc(provider, redirectTo)
	}
	return "https://identity.example.test/authorize?provider=" + provider
}

func (m *MockIdentityProvider) ChallengeMFA(ctx context.Context, factorID string) (*identity.Challenge, error) {
	if m.ChallengeMFAFunc != nil {
		return m.ChallengeMFAFunc(ctx, factorID)
	}
	return &identity.Challenge{ID: "challenge_123", FactorID: factorID, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
}

func (m *MockIdentityProvider) VerifyMFA(ctx context.Context, factorID, challengeID, code string) (*identity.Session, error) {
	if m.VerifyMFAFunc != nil {
		return m.VerifyMFAFunc(ctx, factorID, challengeID, code)
	}
	return NewTestSession("user@example.com"), nil
}

// NewTestSession creates the session the mock provider returns on success
func NewTestSession(email string) *identity.Session {
	return &identity.Session{
		AccessToken:  "provider-access-token",
		RefreshToken: "provider-refresh-token",
		TokenType:    "bearer",
		ExpiresIn:    3600,
		UserID:       "5f1c2d3e-1111-4222-8333-444455556666",
		Email:        email,
	}
}

// MockMFADeviceRepository implements repositories.MFADeviceRepository for testing
type MockMFADeviceRepository struct {
	UpsertFunc              func(ctx context.Context, device *models.AdminMFADevice) error
	GetByUserIDFunc         func(ctx context.Context, userID uuid.UUID) (*models.AdminMFADevice, error)
	ActivateFunc            func(ctx context.Context, userID uuid.UUID) error
	UpdateLastUsedAtFunc    func(ctx context.Context, userID uuid.UUID) error
	UpdateRecoveryCodesFunc func(ctx context.Context, userID uuid.UUID, codes []models.RecoveryCodeEntry) error
	DeleteFunc              func(ctx context.Context, userID uuid.UUID) error
}

func (m *MockMFADeviceRepository) Upsert(ctx context.Context, device *models.AdminMFADevice) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, device)
	}
	return nil
}

func (m *MockMFADeviceRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.AdminMFADevice, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFADeviceRepository) Activate(ctx context.Context, userID uuid.UUID) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFADeviceRepository) UpdateLastUsedAt(ctx context.Context, userID uuid.UUID) error {
	if m.UpdateLastUsedAtFunc != nil {
		return m.UpdateLastUsedAtFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFADeviceRepository) UpdateRecoveryCodes(ctx context.Context, userID uuid.UUID, codes []models.RecoveryCodeEntry) error {
	if m.UpdateRecoveryCodesFunc != nil {
		return m.UpdateRecoveryCodesFunc(ctx, userID, codes)
	}
	return nil
}

func (m *MockMFADeviceRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	return nil
}

// MockLockoutAlerter implements LockoutAlerter for testing
type MockLockoutAlerter struct {
	SendLockoutAlertFunc func(ctx context.Context, email, actionClass string, retryAfter time.Duration) error
}

func (m *MockLockoutAlerter) SendLockoutAlert(ctx context.Context, email, actionClass string, retryAfter time.Duration) error {
	if m.SendLockoutAlertFunc != nil {
		return m.SendLockoutAlertFunc(ctx, email, actionClass, retryAfter)
	}
	return nil
}
