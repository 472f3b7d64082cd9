package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lendfast/drawbridge/internal/models"
)

// ThrottleRepository defines the interface for durable write-throttle storage
type ThrottleRepository interface {
	CheckAndIncrement(ctx context.Context, identifier, endpoint string, maxRequests int, window time.Duration) (*models.RateLimitResult, error)
	Block(ctx context.Context, identifier, endpoint string, window time.Duration, until time.Time) error
	Unblock(ctx context.Context, identifier, endpoint string) error
}

// ThrottleConfig holds configuration for the admin write throttle
type ThrottleConfig struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultThrottleConfig returns the write-path budget: 10 requests per minute
// per admin
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxRequests: 10,
		Window:      time.Minute,
	}
}

// ThrottleService enforces the durable per-admin budget on console writes.
// The counter lives in Postgres so every replica sees the same count and a
// restart forgets nothing.
type ThrottleService struct {
	repo   ThrottleRepository
	config ThrottleConfig
	logger *slog.Logger
}

// NewThrottleService creates a new ThrottleService
func NewThrottleService(repo ThrottleRepository, config ThrottleConfig, logger *slog.Logger) *ThrottleService {
	return &ThrottleService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// CheckMutate consumes one unit of the caller's write budget and reports
// whether the write may proceed.
//
// Three outcomes:
//   - allowed: result returned, nil error
//   - over budget: result returned with a *models.RateLimitError (429-class)
//   - storage failure: nil result, ErrThrottleUnavailable (503-class)
//
// Storage failures fail closed. If the throttle cannot be consulted, the
// write is denied: an unthrottled admin write path is worse than a stalled
// one.
func (s *ThrottleService) CheckMutate(ctx context.Context, identifier string) (*models.RateLimitResult, error) {
	result, err := s.repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, s.config.MaxRequests, s.config.Window)
	if err != nil {
		s.logger.Error("throttle check failed, denying write",
			slog.String("identifier", identifier),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrThrottleUnavailable, err)
	}

	if !result.Allowed {
		s.logger.Warn("admin write throttled",
			slog.String("identifier", identifier),
			slog.Time("reset_at", result.ResetAt))
		return result, &models.RateLimitError{
			RetryAfter: result.RetryAfter(time.Now()),
			ResetAt:    result.ResetAt,
		}
	}

	return result, nil
}

// BlockIdentifier freezes an identifier's write budget until the given time,
// regardless of its current count. Used to shut off a compromised account
// while it is investigated.
func (s *ThrottleService) BlockIdentifier(ctx context.Context, identifier string, until time.Time) error {
	if err := s.repo.Block(ctx, identifier, models.EndpointAdminWrite, s.config.Window, until); err != nil {
		return fmt.Errorf("failed to block identifier: %w", err)
	}

	s.logger.Warn("identifier blocked from admin writes",
		slog.String("identifier", identifier),
		slog.Time("until", until))
	return nil
}

// UnblockIdentifier lifts a manual block
func (s *ThrottleService) UnblockIdentifier(ctx context.Context, identifier string) error {
	if err := s.repo.Unblock(ctx, identifier, models.EndpointAdminWrite); err != nil {
		return fmt.Errorf("failed to unblock identifier: %w", err)
	}

	s.logger.Info("identifier unblocked for admin writes",
		slog.String("identifier", identifier))
	return nil
}
