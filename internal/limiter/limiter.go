// Package limiter implements in-process attempt tracking for user-facing
// flows: fixed counting windows per action key, with a timed lockout once a
// key exhausts its budget. It is the first line of brute-force defense in
// front of the durable write throttle.
package limiter

import (
	"sync"
	"time"
)

// window is one key's attempt count inside its current fixed window.
// maxAttempts snapshots the budget the window was last checked against, so
// read-only probes stay correct for keys tracked under an override config.
type window struct {
	count       int
	maxAttempts int
	windowEnd   time.Time
	lockedUntil *time.Time
}

// Decision is the outcome of a single CheckAndRecord call. It is a plain
// value: rendering notices and mapping denials onto transport errors is the
// caller's job.
type Decision struct {
	// Allowed reports whether the attempt may proceed.
	Allowed bool
	// Remaining is the number of attempts left in the window after this call.
	Remaining int
	// RetryAfter is how long the caller must wait before an attempt can be
	// accepted again. Zero when the attempt is allowed.
	RetryAfter time.Duration
	// Notices carries user-facing warnings produced by this decision, for
	// action classes configured to notify.
	Notices []Notice
}

// Tracker counts attempts per action key in fixed windows and escalates to a
// timed lockout once a key's budget is exhausted. State lives only in memory;
// a restart forgives everything. All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	windows  map[string]*window
	presets  map[Action]Config
	fallback Config
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPresets replaces the built-in per-action budgets.
func WithPresets(presets map[Action]Config) Option {
	return func(t *Tracker) { t.presets = presets }
}

// WithDefault replaces the fallback config used for unknown action keys.
func WithDefault(cfg Config) Option {
	return func(t *Tracker) { t.fallback = cfg }
}

// WithNow replaces the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a Tracker with the default presets and fallback.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		windows:  make(map[string]*window),
		presets:  DefaultPresets(),
		fallback: DefaultConfig,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ConfigFor returns the preset for an action, or the fallback when the
// action has none.
func (t *Tracker) ConfigFor(action Action) Config {
	if cfg, ok := t.presets[action]; ok {
		return cfg
	}
	return t.fallback
}

// configFor resolves the budget for a key: an explicit override wins, then
// the preset matching the key verbatim, then the fallback.
func (t *Tracker) configFor(key string, override *Config) Config {
	if override != nil {
		return *override
	}
	return t.ConfigFor(Action(key))
}

// CheckAndRecord records an attempt against key and decides whether it may
// proceed. The algorithm, in order:
//
//  1. An active lockout denies the attempt without touching the window.
//  2. An expired window with no active lockout is discarded.
//  3. The first attempt for a key opens a fresh window and is allowed.
//  4. Attempts under the budget increment the count and are allowed.
//  5. An attempt at a full budget triggers the lockout and is denied; the
//     window is extended to cover the lockout so the count survives it.
//
// A nil override resolves the config from the key itself.
func (t *Tracker) CheckAndRecord(key string, override *Config) Decision {
	cfg := t.configFor(key, override)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	w, ok := t.windows[key]

	if ok && w.lockedUntil != nil && now.Before(*w.lockedUntil) {
		wait := w.lockedUntil.Sub(now)
		d := Decision{RetryAfter: wait}
		if cfg.Notify {
			d.Notices = append(d.Notices, lockoutNotice(wait))
		}
		return d
	}

	if ok && now.After(w.windowEnd) {
		delete(t.windows, key)
		ok = false
	}

	if !ok {
		t.windows[key] = &window{count: 1, maxAttempts: cfg.MaxAttempts, windowEnd: now.Add(cfg.Window)}
		return Decision{Allowed: true, Remaining: max(0, cfg.MaxAttempts-1)}
	}

	if w.count < cfg.MaxAttempts {
		w.count++
		w.maxAttempts = cfg.MaxAttempts
		return Decision{Allowed: true, Remaining: cfg.MaxAttempts - w.count}
	}

	lockout := cfg.Lockout
	if lockout <= 0 {
		lockout = cfg.Window
	}
	until := now.Add(lockout)
	w.lockedUntil = &until
	w.windowEnd = until

	d := Decision{RetryAfter: lockout}
	if cfg.Notify {
		d.Notices = append(d.Notices, lockoutNotice(lockout))
	}
	return d
}

// RemainingAttempts reports how many attempts key has left in its current
// window without recording one. Unknown and expired keys report a full
// budget; locked keys report zero.
func (t *Tracker) RemainingAttempts(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[key]
	if !ok || t.now().After(w.windowEnd) {
		return t.configFor(key, nil).MaxAttempts
	}
	return max(0, w.maxAttempts-w.count)
}

// IsLockedOut reports whether key is inside an active lockout.
func (t *Tracker) IsLockedOut(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[key]
	return ok && w.lockedUntil != nil && t.now().Before(*w.lockedUntil)
}

// LockoutRemaining reports how much lockout time key has left, zero when it
// is not locked out.
func (t *Tracker) LockoutRemaining(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[key]
	if !ok || w.lockedUntil == nil {
		return 0
	}
	remaining := w.lockedUntil.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears all attempt state for key, forgiving prior failures.
// Resetting an unknown key is a no-op.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, key)
}

// PruneExpired drops entries whose windows have passed, bounding memory when
// many distinct keys come and go. Lockouts extend windowEnd, so a single
// check covers both. Returns the number of entries removed.
func (t *Tracker) PruneExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, w := range t.windows {
		if now.After(w.windowEnd) {
			delete(t.windows, key)
			removed++
		}
	}
	return removed
}
