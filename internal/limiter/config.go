package limiter

import (
	"fmt"
	"time"
)

// Action identifies a class of user-initiated operation that shares one
// attempt budget. Keys built from an Action resolve that action's preset;
// anything else falls back to the default config.
type Action string

const (
	ActionLogin          Action = "login"
	ActionSignup         Action = "signup"
	ActionPasswordReset  Action = "passwordReset"
	ActionMFAVerify      Action = "mfaVerify"
	ActionMFAChallenge   Action = "mfaChallenge"
	ActionEmailChange    Action = "accountEmailChange"
	ActionPasswordChange Action = "accountPasswordChange"
	ActionOAuthSignIn    Action = "oauthSignIn"
	ActionAPICall        Action = "apiCall"
	ActionSearch         Action = "search"
)

// Config describes the attempt budget for one action class.
type Config struct {
	// MaxAttempts is the number of attempts accepted inside a single window.
	MaxAttempts int
	// Window is the fixed counting window.
	Window time.Duration
	// Lockout is how long a key stays locked once its budget is exhausted.
	// Zero reuses the window duration as the lockout duration.
	Lockout time.Duration
	// Notify controls whether denials for this class carry a user-facing
	// notice.
	Notify bool
}

// Validate checks that the config describes a usable budget.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.Lockout < 0 {
		return fmt.Errorf("lockout must not be negative, got %s", c.Lockout)
	}
	return nil
}

// DefaultConfig covers ad-hoc action keys that have no preset.
var DefaultConfig = Config{
	MaxAttempts: 5,
	Window:      time.Minute,
	Lockout:     5 * time.Minute,
	Notify:      true,
}

// DefaultPresets returns the built-in per-action budgets. Sensitive flows
// get small budgets with lockouts well beyond their windows; high-volume
// flows get large budgets and stay silent on denial.
func DefaultPresets() map[Action]Config {
	return map[Action]Config{
		ActionLogin:          {MaxAttempts: 5, Window: time.Minute, Lockout: 5 * time.Minute, Notify: true},
		ActionSignup:         {MaxAttempts: 3, Window: time.Minute, Lockout: 10 * time.Minute, Notify: true},
		ActionPasswordReset:  {MaxAttempts: 3, Window: 5 * time.Minute, Lockout: 15 * time.Minute, Notify: true},
		ActionMFAVerify:      {MaxAttempts: 3, Window: time.Minute, Lockout: 15 * time.Minute, Notify: true},
		ActionMFAChallenge:   {MaxAttempts: 5, Window: 5 * time.Minute, Lockout: 10 * time.Minute, Notify: true},
		ActionEmailChange:    {MaxAttempts: 3, Window: 10 * time.Minute, Lockout: 30 * time.Minute, Notify: true},
		ActionPasswordChange: {MaxAttempts: 3, Window: 10 * time.Minute, Lockout: 30 * time.Minute, Notify: true},
		ActionOAuthSignIn:    {MaxAttempts: 10, Window: time.Minute, Lockout: 5 * time.Minute, Notify: true},
		ActionAPICall:        {MaxAttempts: 30, Window: time.Minute, Notify: false},
		ActionSearch:         {MaxAttempts: 60, Window: time.Minute, Notify: false},
	}
}

// KeyFor builds a tracking key for an action scoped to a single principal,
// e.g. KeyFor(ActionLogin, "user@example.com") -> "login:user@example.com".
// Scoped keys do not resolve presets on their own; pass the action's config
// as the override when checking them.
func KeyFor(action Action, principal string) string {
	return string(action) + ":" + principal
}
