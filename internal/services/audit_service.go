package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/models"
	pkglogger "github.com/lendfast/drawbridge/pkg/logger"
)

// maxAuditedStatementLength bounds how much SQL text a single audit row
// stores. Longer statements are truncated, never dropped.
const maxAuditedStatementLength = 2000

// AuditLogStore defines the interface for audit log persistence
type AuditLogStore interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByActorID(ctx context.Context, actorID uuid.UUID, limit int, offset int) ([]*models.AuditLog, error)
	GetByPrincipalKey(ctx context.Context, principalKey string, limit int, offset int) ([]*models.AuditLog, error)
	GetByEventType(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error)
	GetFailedAttempts(ctx context.Context, limit int, offset int) ([]*models.AuditLog, error)
}

// AuditService handles audit logging with a dual-write pattern: every event
// goes to the structured log feed first, then to Postgres. The feed line
// survives a database outage; the table survives log rotation.
//
// Most events are best-effort: a failed insert is logged and swallowed so the
// user-facing flow continues. RecordAdminMutation is the exception — console
// writes must not run without a durable record, so its persistence errors
// propagate and the caller aborts.
type AuditService struct {
	repo   AuditLogStore
	feed   *pkglogger.AuditLogger
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogStore, feed *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		feed:   feed,
		logger: logger,
	}
}

// RecordAdminMutation persists the record of a console write before it runs.
// Returns ErrAuditWriteFailed if the record cannot be stored; the caller must
// treat that as fatal and skip execution.
func (s *AuditService) RecordAdminMutation(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string) error {
	resourceType := models.AuditResourceTypeStatement
	log := &models.AuditLog{
		EventType:    models.AuditEventTypeAdminMutation,
		ActorID:      &actorID,
		PrincipalKey: &principalKey,
		ResourceType: &resourceType,
		Action:       models.AuditActionExecute,
		Success:      true,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Metadata: models.AuditMetadata{
			"statement":      truncateStatement(statement),
			"classification": "write",
		},
	}

	s.feed.LogConsoleAction(pkglogger.ConsoleEvent{
		ActorID:      actorID.String(),
		PrincipalKey: principalKey,
		Action:       "mutate",
		Allowed:      true,
	})

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist admin mutation audit record",
			slog.String("actor_id", actorID.String()),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", models.ErrAuditWriteFailed, err)
	}

	return nil
}

// RecordAdminQuery logs a console read. Best-effort: reads are not gated on
// audit persistence.
func (s *AuditService) RecordAdminQuery(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string) {
	resourceType := models.AuditResourceTypeStatement
	log := &models.AuditLog{
		EventType:    models.AuditEventTypeAdminQuery,
		ActorID:      &actorID,
		PrincipalKey: &principalKey,
		ResourceType: &resourceType,
		Action:       models.AuditActionExecute,
		Success:      true,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Metadata: models.AuditMetadata{
			"statement":      truncateStatement(statement),
			"classification": "read",
		},
	}

	s.feed.LogConsoleAction(pkglogger.ConsoleEvent{
		ActorID:      actorID.String(),
		PrincipalKey: principalKey,
		Action:       "query",
		Allowed:      true,
	})

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist admin query audit record",
			slog.String("actor_id", actorID.String()),
			slog.Any("error", err),
		)
	}
}

// RecordBlockedStatement logs a statement the classifier refused
func (s *AuditService) RecordBlockedStatement(ctx context.Context, actorID uuid.UUID, principalKey, statement, reason string) {
	resourceType := models.AuditResourceTypeStatement
	log := &models.AuditLog{
		EventType:     models.AuditEventTypeAdminMutation,
		ActorID:       &actorID,
		PrincipalKey:  &principalKey,
		ResourceType:  &resourceType,
		Action:        models.AuditActionBlock,
		Success:       false,
		FailureReason: &reason,
		Metadata: models.AuditMetadata{
			"statement": truncateStatement(statement),
		},
	}

	s.feed.LogConsoleAction(pkglogger.ConsoleEvent{
		ActorID:      actorID.String(),
		PrincipalKey: principalKey,
		Action:       "mutate",
		Allowed:      false,
		Reason:       reason,
	})

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist blocked statement audit record",
			slog.Any("error", err),
		)
	}
}

// RecordThrottleDenied logs a write the durable throttle turned away
func (s *AuditService) RecordThrottleDenied(ctx context.Context, actorID uuid.UUID, principalKey string, resetAt time.Time) {
	reason := "write budget exhausted"
	log := &models.AuditLog{
		EventType:     models.AuditEventTypeThrottleDenied,
		ActorID:       &actorID,
		PrincipalKey:  &principalKey,
		Action:        models.AuditActionBlock,
		Success:       false,
		FailureReason: &reason,
		Metadata: models.AuditMetadata{
			"reset_at": resetAt.Format(time.RFC3339),
		},
	}

	s.feed.LogConsoleAction(pkglogger.ConsoleEvent{
		ActorID:      actorID.String(),
		PrincipalKey: principalKey,
		Action:       "mutate",
		Allowed:      false,
		Reason:       reason,
	})

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist throttle denial audit record",
			slog.Any("error", err),
		)
	}
}

// LogAuthEvent logs authentication-related events (login, signup, password
// reset, OAuth). Best-effort: a failed insert never fails the sign-in.
func (s *AuditService) LogAuthEvent(ctx context.Context, eventType, principalKey string, success bool, failureReason *string, ipAddress, userAgent *string, metadata models.AuditMetadata) error {
	log := &models.AuditLog{
		EventType:     eventType,
		PrincipalKey:  &principalKey,
		Action:        models.AuditActionAttempt,
		Success:       success,
		FailureReason: failureReason,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Metadata:      metadata,
	}

	s.feed.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     eventType,
		PrincipalKey:  principalKey,
		IPAddress:     derefOrEmpty(ipAddress),
		UserAgent:     derefOrEmpty(userAgent),
		Success:       success,
		FailureReason: derefOrEmpty(failureReason),
	})

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", eventType),
			slog.Any("error", err),
		)
		// Non-critical: don't fail the authentication if audit logging fails
		return nil
	}

	return nil
}

// LogLockout records that an action class entered lockout for a principal
func (s *AuditService) LogLockout(ctx context.Context, principalKey, action string, retryAfter time.Duration) {
	reason := "too many failed attempts"
	log := &models.AuditLog{
		EventType:     models.AuditEventTypeLockout,
		PrincipalKey:  &principalKey,
		Action:        models.AuditActionBlock,
		Success:       false,
		FailureReason: &reason,
		Metadata: models.AuditMetadata{
			"action_class":     action,
			"retry_after_secs": int(retryAfter.Seconds()),
		},
	}

	s.feed.LogLockout(principalKey, action, retryAfter)

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist lockout audit record",
			slog.Any("error", err),
		)
	}
}

// LogMFAEvent logs MFA enrollment and step-up events. Best-effort.
func (s *AuditService) LogMFAEvent(ctx context.Context, actorID uuid.UUID, eventType, action string, success bool, failureReason *string) error {
	resourceType := models.AuditResourceTypeMFADevice
	log := &models.AuditLog{
		EventType:     eventType,
		ActorID:       &actorID,
		ResourceType:  &resourceType,
		Action:        action,
		Success:       success,
		FailureReason: failureReason,
	}

	s.feed.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     eventType,
		ActorID:       actorID.String(),
		Success:       success,
		FailureReason: derefOrEmpty(failureReason),
	})

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", eventType),
			slog.Any("error", err),
		)
		return nil
	}

	return nil
}

// GetActorTrail retrieves the audit trail for a specific actor
func (s *AuditService) GetActorTrail(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	limit, offset = clampPage(limit, offset)

	logs, err := s.repo.GetByActorID(ctx, actorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get actor audit trail: %w", err)
	}

	return logs, nil
}

// GetPrincipalTrail retrieves events recorded against a principal key, for
// working a lockout or abuse report
func (s *AuditService) GetPrincipalTrail(ctx context.Context, principalKey string, limit, offset int) ([]*models.AuditLog, error) {
	limit, offset = clampPage(limit, offset)

	logs, err := s.repo.GetByPrincipalKey(ctx, principalKey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get principal audit trail: %w", err)
	}

	return logs, nil
}

// GetEventTrail retrieves recent events of one type
func (s *AuditService) GetEventTrail(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error) {
	limit, offset = clampPage(limit, offset)

	logs, err := s.repo.GetByEventType(ctx, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get event audit trail: %w", err)
	}

	return logs, nil
}

// GetRecentFailures retrieves recent failed events across all types
func (s *AuditService) GetRecentFailures(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	limit, offset = clampPage(limit, offset)

	logs, err := s.repo.GetFailedAttempts(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent failures: %w", err)
	}

	return logs, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func truncateStatement(stmt string) string {
	if len(stmt) > maxAuditedStatementLength {
		return stmt[:maxAuditedStatementLength]
	}
	return stmt
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
