package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/sqlguard"
)

// StatementRunner defines the interface for executing cleared statements
type StatementRunner interface {
	ExecuteWrite(ctx context.Context, statement string) (*models.StatementResult, error)
	ExecuteQuery(ctx context.Context, statement string) (*models.StatementResult, error)
}

// WriteThrottle defines the interface for the durable admin write budget
type WriteThrottle interface {
	CheckMutate(ctx context.Context, identifier string) (*models.RateLimitResult, error)
}

// MutationAuditor defines the interface for console audit recording
type MutationAuditor interface {
	RecordAdminMutation(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string) error
	RecordAdminQuery(ctx context.Context, actorID uuid.UUID, principalKey, statement string, ipAddress, userAgent *string)
	RecordBlockedStatement(ctx context.Context, actorID uuid.UUID, principalKey, statement, reason string)
	RecordThrottleDenied(ctx context.Context, actorID uuid.UUID, principalKey string, resetAt time.Time)
}

// ConsoleRequest carries one admin console statement and its actor
type ConsoleRequest struct {
	ActorID   uuid.UUID
	Email     string
	Statement string
	IPAddress *string
	UserAgent *string
}

// ConsoleService runs the admin SQL console. Every mutate passes four gates
// in order: classification, the durable write throttle, a mandatory audit
// record, and only then execution inside a transaction. A failure at any
// gate stops the statement cold.
type ConsoleService struct {
	executor StatementRunner
	throttle WriteThrottle
	audit    MutationAuditor
	logger   *slog.Logger
}

// NewConsoleService creates a new ConsoleService
func NewConsoleService(executor StatementRunner, throttle WriteThrottle, audit MutationAuditor, logger *slog.Logger) *ConsoleService {
	return &ConsoleService{
		executor: executor,
		throttle: throttle,
		audit:    audit,
		logger:   logger,
	}
}

// ExecuteMutate runs a mutating statement through the full gate chain.
//
// Error taxonomy:
//   - ErrStatementBlocked: statement matches the blocklist (403-class)
//   - ErrReadOnlyStatement: read submitted to the mutate path (400-class)
//   - ErrRateLimitExceeded (via *models.RateLimitError): over budget (429-class)
//   - ErrThrottleUnavailable: throttle storage failure, write denied (503-class)
//   - ErrAuditWriteFailed: audit insert failed, statement never ran (500-class)
func (s *ConsoleService) ExecuteMutate(ctx context.Context, req ConsoleRequest) (*models.StatementResult, error) {
	// Gate 1: classify
	switch sqlguard.Classify(req.Statement) {
	case sqlguard.ClassBlocked:
		s.audit.RecordBlockedStatement(ctx, req.ActorID, req.Email, req.Statement, "matches blocked operation list")
		return nil, models.ErrStatementBlocked
	case sqlguard.ClassRead:
		return nil, models.ErrReadOnlyStatement
	}

	// Gate 2: durable write budget, keyed by actor
	result, err := s.throttle.CheckMutate(ctx, req.ActorID.String())
	if err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) && result != nil {
			s.audit.RecordThrottleDenied(ctx, req.ActorID, req.Email, result.ResetAt)
		}
		return nil, err
	}

	// Gate 3: mandatory audit record. If this fails the statement must not
	// run; an unaudited admin write is the exact thing this path exists to
	// prevent.
	if err := s.audit.RecordAdminMutation(ctx, req.ActorID, req.Email, req.Statement, req.IPAddress, req.UserAgent); err != nil {
		return nil, err
	}

	// Gate 4: execute inside a transaction
	execResult, err := s.executor.ExecuteWrite(ctx, req.Statement)
	if err != nil {
		s.logger.WarnContext(ctx, "console mutation failed",
			slog.String("actor_id", req.ActorID.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	s.logger.InfoContext(ctx, "console mutation executed",
		slog.String("actor_id", req.ActorID.String()),
		slog.Int64("rows_affected", execResult.RowsAffected),
		slog.Int("remaining_budget", result.Remaining))

	return execResult, nil
}

// ExecuteQuery runs a read statement. Reads skip the write throttle but are
// still classified and audited.
func (s *ConsoleService) ExecuteQuery(ctx context.Context, req ConsoleRequest) (*models.StatementResult, error) {
	switch sqlguard.Classify(req.Statement) {
	case sqlguard.ClassBlocked:
		s.audit.RecordBlockedStatement(ctx, req.ActorID, req.Email, req.Statement, "matches blocked operation list")
		return nil, models.ErrStatementBlocked
	case sqlguard.ClassWrite:
		return nil, models.ErrWriteStatement
	}

	s.audit.RecordAdminQuery(ctx, req.ActorID, req.Email, req.Statement, req.IPAddress, req.UserAgent)

	execResult, err := s.executor.ExecuteQuery(ctx, req.Statement)
	if err != nil {
		s.logger.WarnContext(ctx, "console query failed",
			slog.String("actor_id", req.ActorID.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	return execResult, nil
}
