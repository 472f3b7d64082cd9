package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Severity grades a notice for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a user-facing message attached to a rate limit decision.
type Notice struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Notifier delivers notices to the user. Implementations must not block the
// caller.
type Notifier interface {
	Notify(notice Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a structured logger. It is the default sink
// for server-side callers that have no UI to render into.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(notice Notice) {
	level := slog.LevelInfo
	switch notice.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, notice.Message,
		slog.String("title", notice.Title),
		slog.String("severity", string(notice.Severity)),
	)
}

// lockoutNotice is the standard warning shown when a key is locked out.
func lockoutNotice(wait time.Duration) Notice {
	return Notice{
		Title:    "Too many attempts",
		Message:  fmt.Sprintf("Please wait %s before trying again.", FormatRemaining(wait)),
		Severity: SeverityWarning,
	}
}
