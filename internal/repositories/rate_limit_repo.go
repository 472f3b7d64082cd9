package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/lendfast/drawbridge/internal/database"
	"github.com/lendfast/drawbridge/internal/models"
)

// RateLimitRepository owns the durable request counters behind the admin
// write throttle. One row exists per identifier and endpoint class; the row
// carries its own window so it can reset in place when the window expires.
type RateLimitRepository struct {
	db *database.DB
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// checkAndIncrementQuery is a single conditional upsert: concurrent callers
// serialize on the row lock inside the statement, so no two requests can
// observe the same count. All CASE branches evaluate against the pre-update
// row. An active administrative block freezes both count and window.
const checkAndIncrementQuery = `
	INSERT INTO rate_limit_counters (identifier, endpoint, window_start, window_seconds, request_count)
	VALUES ($1, $2, now(), $3, 1)
	ON CONFLICT (identifier, endpoint) DO UPDATE SET
		request_count = CASE
			WHEN rate_limit_counters.blocked_until > now()
				THEN rate_limit_counters.request_count
			WHEN rate_limit_counters.window_start + make_interval(secs => rate_limit_counters.window_seconds) <= now()
				THEN 1
			ELSE rate_limit_counters.request_count + 1
		END,
		window_start = CASE
			WHEN rate_limit_counters.blocked_until > now()
				THEN rate_limit_counters.window_start
			WHEN rate_limit_counters.window_start + make_interval(secs => rate_limit_counters.window_seconds) <= now()
				THEN now()
			ELSE rate_limit_counters.window_start
		END,
		window_seconds = $3,
		updated_at = now()
	RETURNING request_count, window_start, blocked_until
`

// CheckAndIncrement charges one request against the identifier's current
// window and reports whether it fit the budget of maxRequests per window.
// Requests over budget still raise the count; the window itself decides when
// everything resets.
func (r *RateLimitRepository) CheckAndIncrement(ctx context.Context, identifier, endpoint string, maxRequests int, window time.Duration) (*models.RateLimitResult, error) {
	var (
		count        int
		windowStart  time.Time
		blockedUntil *time.Time
	)
	err := r.db.Pool.QueryRow(ctx, checkAndIncrementQuery,
		identifier, endpoint, int(window.Seconds()),
	).Scan(&count, &windowStart, &blockedUntil)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", database.MapPostgresError(err))
	}

	now := time.Now()
	if blockedUntil != nil && now.Before(*blockedUntil) {
		return &models.RateLimitResult{Allowed: false, Remaining: 0, ResetAt: *blockedUntil}, nil
	}

	return &models.RateLimitResult{
		Allowed:   count <= maxRequests,
		Remaining: max(0, maxRequests-count),
		ResetAt:   windowStart.Add(window),
	}, nil
}

// GetRecord returns the counter row for an identifier and endpoint, or
// models.ErrNotFound when none exists.
func (r *RateLimitRepository) GetRecord(ctx context.Context, identifier, endpoint string) (*models.RateLimitRecord, error) {
	query := `
		SELECT identifier, endpoint, window_start, window_seconds, request_count, blocked_until, updated_at
		FROM rate_limit_counters
		WHERE identifier = $1 AND endpoint = $2
	`

	var record models.RateLimitRecord
	err := r.db.Pool.QueryRow(ctx, query, identifier, endpoint).Scan(
		&record.Identifier,
		&record.Endpoint,
		&record.WindowStart,
		&record.WindowSeconds,
		&record.RequestCount,
		&record.BlockedUntil,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &record, nil
}

// Block marks an identifier as administratively blocked until the given
// time. While the block is active, counts are neither charged nor honored.
func (r *RateLimitRepository) Block(ctx context.Context, identifier, endpoint string, window time.Duration, until time.Time) error {
	query := `
		INSERT INTO rate_limit_counters (identifier, endpoint, window_start, window_seconds, request_count, blocked_until)
		VALUES ($1, $2, now(), $3, 0, $4)
		ON CONFLICT (identifier, endpoint) DO UPDATE SET
			blocked_until = EXCLUDED.blocked_until,
			updated_at = now()
	`

	_, err := r.db.Pool.Exec(ctx, query, identifier, endpoint, int(window.Seconds()), until)
	if err != nil {
		return fmt.Errorf("failed to block identifier: %w", database.MapPostgresError(err))
	}
	return nil
}

// Unblock lifts an administrative block early.
func (r *RateLimitRepository) Unblock(ctx context.Context, identifier, endpoint string) error {
	query := `
		UPDATE rate_limit_counters
		SET blocked_until = NULL, updated_at = now()
		WHERE identifier = $1 AND endpoint = $2
	`

	_, err := r.db.Pool.Exec(ctx, query, identifier, endpoint)
	if err != nil {
		return fmt.Errorf("failed to unblock identifier: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteStale removes counter rows whose window closed at least grace ago
// and that carry no active block. Rows for live windows are never touched.
func (r *RateLimitRepository) DeleteStale(ctx context.Context, grace time.Duration) (int64, error) {
	query := `
		DELETE FROM rate_limit_counters
		WHERE window_start + make_interval(secs => window_seconds) <= now() - make_interval(secs => $1)
		  AND (blocked_until IS NULL OR blocked_until <= now())
	`

	tag, err := r.db.Pool.Exec(ctx, query, int(grace.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale counters: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
