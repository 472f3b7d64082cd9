package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Rate limiting errors. ErrRateLimitExceeded means the caller is over
	// budget or locked out and must wait; ErrThrottleUnavailable means the
	// durable rate limit check itself failed and the request was denied on
	// principle. The two map to different status classes: 429 says "slow
	// down", 503 says "the safety system is broken".
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrThrottleUnavailable = errors.New("rate limit check unavailable, request denied")

	// Admin console errors
	ErrStatementBlocked  = errors.New("statement matches a blocked operation")
	ErrReadOnlyStatement = errors.New("read statement submitted to the mutate endpoint")
	ErrWriteStatement    = errors.New("write statement submitted to the query endpoint")
	ErrAuditWriteFailed  = errors.New("audit record could not be written, statement aborted")

	// MFA errors
	ErrMFANotEnrolled    = errors.New("no verified MFA device enrolled")
	ErrMFACodeInvalid    = errors.New("invalid verification code")
	ErrMFACodeReused     = errors.New("verification code already used")
	ErrMFAAlreadyActive  = errors.New("MFA device already verified")
	ErrElevationRequired = errors.New("recent MFA verification required")
)

// RateLimitError carries the retry horizon for a denied attempt. It matches
// ErrRateLimitExceeded under errors.Is, so handlers can switch on the
// sentinel and still recover the wait via errors.As. Lockout denials and
// plain over-budget denials both surface through this type.
type RateLimitError struct {
	// RetryAfter is how long the caller should wait before retrying.
	RetryAfter time.Duration
	// ResetAt is the absolute time the budget resets, when known.
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimitExceeded) true for this type.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
