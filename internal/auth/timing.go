package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random delay range in milliseconds
	DelayOnSuccess bool // If true, delay even on successful sign-in
}

// TimingDelay equalizes the observable duration of sign-in outcomes.
// A locked-out attempt is rejected without ever reaching the identity
// provider, which would otherwise return noticeably faster than a real
// credential check.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
// Uses crypto/rand instead of math/rand for security-sensitive operations
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}

// targetDelay computes base + jitter for a single wait
func (td *TimingDelay) targetDelay() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		randomValue, err := cryptoRandIntn(td.config.RandomDelayMs)
		if err == nil {
			delay += time.Duration(randomValue) * time.Millisecond
		}
	}
	return delay
}

// sleep blocks for d or until ctx is done, whichever comes first
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Wait applies the appropriate delay based on operation success/failure.
// If success=false (or DelayOnSuccess=true), waits for: baseDelay + randomDelay.
func (td *TimingDelay) Wait(ctx context.Context, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	sleep(ctx, td.targetDelay())
}

// WaitFrom applies delay relative to a start time, ensuring total elapsed time >= target.
// Useful when the failing operation already consumed time.
func (td *TimingDelay) WaitFrom(ctx context.Context, startTime time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	target := td.targetDelay()
	elapsed := time.Since(startTime)
	if elapsed < target {
		sleep(ctx, target-elapsed)
	}
}
