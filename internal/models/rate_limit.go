package models

import "time"

// Endpoint classes tracked by the durable write throttle. The admin console
// mutate path is the only class today; the column exists so further classes
// can share the table.
const (
	EndpointAdminWrite = "admin_write"
)

// RateLimitRecord mirrors one row of the durable counter table: requests by
// one identifier against one endpoint class. A record tracks a single
// current window; the window resets in place when it expires.
type RateLimitRecord struct {
	Identifier    string     `db:"identifier"`
	Endpoint      string     `db:"endpoint"`
	WindowStart   time.Time  `db:"window_start"`
	WindowSeconds int        `db:"window_seconds"`
	RequestCount  int        `db:"request_count"`
	BlockedUntil  *time.Time `db:"blocked_until"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// WindowEnd is when the record's current window closes.
func (r *RateLimitRecord) WindowEnd() time.Time {
	return r.WindowStart.Add(time.Duration(r.WindowSeconds) * time.Second)
}

// RateLimitResult is the outcome of a durable check-and-increment.
type RateLimitResult struct {
	// Allowed reports whether the request is within budget.
	Allowed bool
	// Remaining is the number of requests left in the window.
	Remaining int
	// ResetAt is when the current window ends, or when an administrative
	// block lifts, whichever governs the denial.
	ResetAt time.Time
}

// RetryAfter is the wait until the result's reset time, floored at zero.
func (r *RateLimitResult) RetryAfter(now time.Time) time.Duration {
	wait := r.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
