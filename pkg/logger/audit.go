package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	ActorID       string
	PrincipalKey  string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger emits the structured security feed. It is the log half of the
// audit dual-write: lines land on stdout even when the database insert does
// not. Principal keys are masked before output; the unmasked value lives
// only in the audit table.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs authentication attempts
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.PrincipalKey != "" {
		attrs = append(attrs, slog.String("principal", SanitizedPrincipal(event.PrincipalKey)))
	}
	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogLockout logs that an action class entered lockout for a principal
func (al *AuditLogger) LogLockout(principalKey, actionClass string, retryAfter time.Duration) {
	attrs := []slog.Attr{
		slog.String("audit_type", "lockout"),
		slog.String("principal", SanitizedPrincipal(principalKey)),
		slog.String("action_class", actionClass),
		slog.String("retry_after", retryAfter.String()),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}

// ConsoleEvent represents an admin console statement outcome
type ConsoleEvent struct {
	ActorID      string
	PrincipalKey string
	Action       string // query, mutate
	Allowed      bool
	Reason       string
}

// LogConsoleAction logs admin console statement attempts
func (al *AuditLogger) LogConsoleAction(event ConsoleEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "console"),
		slog.String("actor_id", event.ActorID),
		slog.String("action", event.Action),
		slog.Bool("allowed", event.Allowed),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.PrincipalKey != "" {
		attrs = append(attrs, slog.String("principal", SanitizedPrincipal(event.PrincipalKey)))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	if event.Allowed {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}
