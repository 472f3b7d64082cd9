package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendfast/drawbridge/internal/models"
)

// MFADeviceRepository defines persistence for admin console TOTP devices
type MFADeviceRepository interface {
	Upsert(ctx context.Context, device *models.AdminMFADevice) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.AdminMFADevice, error)
	Activate(ctx context.Context, userID uuid.UUID) error
	UpdateLastUsedAt(ctx context.Context, userID uuid.UUID) error
	UpdateRecoveryCodes(ctx context.Context, userID uuid.UUID, codes []models.RecoveryCodeEntry) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// mfaDeviceRepoImpl implements MFADeviceRepository
type mfaDeviceRepoImpl struct {
	db *pgxpool.Pool
}

// NewMFADeviceRepository creates a new MFA device repository
func NewMFADeviceRepository(db *pgxpool.Pool) MFADeviceRepository {
	return &mfaDeviceRepoImpl{db: db}
}

// Upsert stores the admin's device, replacing any previous enrollment. A
// replaced device loses its activation and must verify a fresh code.
func (r *mfaDeviceRepoImpl) Upsert(ctx context.Context, device *models.AdminMFADevice) error {
	recoveryCodesJSON, err := json.Marshal(device.RecoveryCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal recovery codes: %w", err)
	}

	query := `
		INSERT INTO admin_mfa_devices
			(user_id, secret_encrypted, secret_nonce, recovery_codes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			recovery_codes = EXCLUDED.recovery_codes,
			activated_at = NULL,
			last_used_at = NULL,
			created_at = now()
		RETURNING created_at
	`

	err = r.db.QueryRow(ctx, query,
		device.UserID,
		device.SecretEncrypted,
		device.SecretNonce,
		recoveryCodesJSON,
	).Scan(&device.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store MFA device: %w", err)
	}

	return nil
}

// GetByUserID retrieves the admin's enrolled device
func (r *mfaDeviceRepoImpl) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.AdminMFADevice, error) {
	device := &models.AdminMFADevice{}
	var recoveryCodesJSON []byte

	query := `
		SELECT user_id, secret_encrypted, secret_nonce, recovery_codes,
		       last_used_at, activated_at, created_at
		FROM admin_mfa_devices
		WHERE user_id = $1
	`

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&device.UserID,
		&device.SecretEncrypted,
		&device.SecretNonce,
		&recoveryCodesJSON,
		&device.LastUsedAt,
		&device.ActivatedAt,
		&device.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get MFA device: %w", err)
	}

	if err := json.Unmarshal(recoveryCodesJSON, &device.RecoveryCodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recovery codes: %w", err)
	}

	return device, nil
}

// Activate marks the device as activated after its first verified code
func (r *mfaDeviceRepoImpl) Activate(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE admin_mfa_devices
		SET activated_at = NOW(), last_used_at = NOW()
		WHERE user_id = $1
		RETURNING activated_at
	`

	var activatedAt any
	err := r.db.QueryRow(ctx, query, userID).Scan(&activatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to activate MFA device: %w", err)
	}

	return nil
}

// UpdateLastUsedAt updates the last_used_at timestamp used for replay checks
func (r *mfaDeviceRepoImpl) UpdateLastUsedAt(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE admin_mfa_devices
		SET last_used_at = NOW()
		WHERE user_id = $1
	`

	commandTag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateRecoveryCodes replaces the device's recovery code entries
func (r *mfaDeviceRepoImpl) UpdateRecoveryCodes(ctx context.Context, userID uuid.UUID, codes []models.RecoveryCodeEntry) error {
	recoveryCodesJSON, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("failed to marshal recovery codes: %w", err)
	}

	query := `
		UPDATE admin_mfa_devices
		SET recovery_codes = $1
		WHERE user_id = $2
	`

	commandTag, err := r.db.Exec(ctx, query, recoveryCodesJSON, userID)
	if err != nil {
		return fmt.Errorf("failed to update recovery codes: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes the admin's device
func (r *mfaDeviceRepoImpl) Delete(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM admin_mfa_devices WHERE user_id = $1`

	commandTag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete MFA device: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
