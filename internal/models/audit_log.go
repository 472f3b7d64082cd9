package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for audit logging
const (
	AuditEventTypeLogin          = "login"
	AuditEventTypeSignup         = "signup"
	AuditEventTypePasswordReset  = "password_reset"
	AuditEventTypeOAuthSignIn    = "oauth_sign_in"
	AuditEventTypeMFAChallenge   = "mfa_challenge"
	AuditEventTypeMFAVerify      = "mfa_verify"
	AuditEventTypeMFAEnroll      = "mfa_enroll"
	AuditEventTypeStepUp         = "step_up"
	AuditEventTypeLockout        = "lockout"
	AuditEventTypeAdminQuery     = "admin_query"
	AuditEventTypeAdminMutation  = "admin_mutation"
	AuditEventTypeThrottleDenied = "throttle_denied"
)

// Resource types
const (
	AuditResourceTypeAccount   = "account"
	AuditResourceTypeStatement = "sql_statement"
	AuditResourceTypeMFADevice = "mfa_device"
)

// Actions
const (
	AuditActionAttempt = "attempt"
	AuditActionExecute = "execute"
	AuditActionBlock   = "block"
	AuditActionEnroll  = "enroll"
	AuditActionVerify  = "verify"
)

type AuditLog struct {
	ID            uuid.UUID     `db:"id"`
	EventType     string        `db:"event_type"`
	ActorID       *uuid.UUID    `db:"actor_id"`
	PrincipalKey  *string       `db:"principal_key"`
	ResourceType  *string       `db:"resource_type"`
	Action        string        `db:"action"`
	Success       bool          `db:"success"`
	FailureReason *string       `db:"failure_reason"`
	IPAddress     *string       `db:"ip_address"`
	UserAgent     *string       `db:"user_agent"`
	Metadata      AuditMetadata `db:"metadata"`
	CreatedAt     time.Time     `db:"created_at"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(am)
}

// MarshalJSON implements json.Marshaler
func (am AuditMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(am))
}

// UnmarshalJSON implements json.Unmarshaler
func (am *AuditMetadata) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}
