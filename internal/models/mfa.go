package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminMFADevice is the single TOTP device an admin enrolls to unlock the
// console write path. One device per admin; re-enrolling replaces it.
type AdminMFADevice struct {
	UserID          uuid.UUID           `db:"user_id"`
	SecretEncrypted []byte              `db:"secret_encrypted"` // AES-256-GCM encrypted TOTP secret
	SecretNonce     []byte              `db:"secret_nonce"`     // GCM nonce (12 bytes)
	RecoveryCodes   []RecoveryCodeEntry `db:"recovery_codes"`
	LastUsedAt      *time.Time          `db:"last_used_at"` // For replay prevention
	ActivatedAt     *time.Time          `db:"activated_at"` // When the first code verified
	CreatedAt       time.Time           `db:"created_at"`
}

// RecoveryCodeEntry is a single one-time recovery code
type RecoveryCodeEntry struct {
	CodeHash  string     `json:"code_hash"` // Bcrypt hash of the code
	UsedAt    *time.Time `json:"used_at"`   // When used (nil = unused)
	CreatedAt time.Time  `json:"created_at"`
}

// IsActive reports whether the device has completed activation
func (d *AdminMFADevice) IsActive() bool {
	return d.ActivatedAt != nil
}

// MFAEnrollmentResponse contains setup information for device enrollment
type MFAEnrollmentResponse struct {
	Secret        string   `json:"secret"`         // Base32 TOTP secret for manual entry
	QRCode        string   `json:"qr_code"`        // Data URL for QR code
	RecoveryCodes []string `json:"recovery_codes"` // One-time recovery codes
}

// StepUpResponse is returned after a successful console step-up verification
type StepUpResponse struct {
	ElevatedToken string    `json:"elevated_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}
