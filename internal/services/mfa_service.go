package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/auth"
	"github.com/lendfast/drawbridge/internal/limiter"
	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/repositories"
)

// recoveryCodeCount is how many single-use codes an enrollment hands out
const recoveryCodeCount = 10

// MFAStatusResponse reports an admin's device state without exposing secrets
type MFAStatusResponse struct {
	Enrolled          bool       `json:"enrolled"`
	Activated         bool       `json:"activated"`
	RecoveryCodesLeft int        `json:"recovery_codes_left"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// MFAService manages admin console TOTP devices and the step-up flow that
// mints elevated tokens. Step-up verification is gated by the mfaVerify
// attempt budget, the tightest preset, keyed per admin.
type MFAService struct {
	repo     repositories.MFADeviceRepository
	totp     *auth.TOTPManager
	tm       *auth.TokenManager
	tracker  *limiter.Tracker
	audit    *AuditService
	notifier limiter.Notifier
	logger   *slog.Logger
}

// NewMFAService creates a new MFAService. notifier may be nil.
func NewMFAService(repo repositories.MFADeviceRepository, totp *auth.TOTPManager, tm *auth.TokenManager, tracker *limiter.Tracker, audit *AuditService, notifier limiter.Notifier, logger *slog.Logger) *MFAService {
	return &MFAService{
		repo:     repo,
		totp:     totp,
		tm:       tm,
		tracker:  tracker,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

// Enroll provisions a fresh TOTP device for an admin. Re-enrolling replaces
// an unverified device; an activated device must be deleted first.
func (s *MFAService) Enroll(ctx context.Context, userID uuid.UUID, email string) (*models.MFAEnrollmentResponse, error) {
	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up mfa device", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if existing != nil && existing.IsActive() {
		return nil, models.ErrMFAAlreadyActive
	}

	encrypted, nonce, secret, qrCode, err := s.totp.GenerateEnrollment(email)
	if err != nil {
		s.logger.Error("failed to generate enrollment", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	plainCodes, err := s.totp.GenerateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entries := make([]models.RecoveryCodeEntry, 0, len(plainCodes))
	now := time.Now()
	for _, code := range plainCodes {
		hash, err := s.totp.HashRecoveryCode(code)
		if err != nil {
			s.logger.Error("failed to hash recovery code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		entries = append(entries, models.RecoveryCodeEntry{
			CodeHash:  hash,
			CreatedAt: now,
		})
	}

	device := &models.AdminMFADevice{
		UserID:          userID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		RecoveryCodes:   entries,
	}

	if err := s.repo.Upsert(ctx, device); err != nil {
		s.logger.Error("failed to store mfa device", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeMFAEnroll, models.AuditActionEnroll, true, nil)
	s.logger.Info("mfa device enrolled", slog.String("user_id", userID.String()))

	return &models.MFAEnrollmentResponse{
		Secret:        secret,
		QRCode:        qrCode,
		RecoveryCodes: plainCodes,
	}, nil
}

// Activate verifies the first code from a freshly enrolled device. The
// activation code counts as used, so it cannot be replayed into a step-up.
func (s *MFAService) Activate(ctx context.Context, userID uuid.UUID, code string) error {
	device, err := s.getDevice(ctx, userID)
	if err != nil {
		return err
	}
	if device.IsActive() {
		return models.ErrMFAAlreadyActive
	}

	valid, err := s.validateCode(device, code, nil)
	if err != nil {
		return err
	}
	if !valid {
		reason := "invalid_code"
		s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeMFAEnroll, models.AuditActionVerify, false, &reason)
		return models.ErrMFACodeInvalid
	}

	if err := s.repo.Activate(ctx, userID); err != nil {
		s.logger.Error("failed to activate mfa device", slog.String("user_id", userID.String()), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeMFAEnroll, models.AuditActionVerify, true, nil)
	s.logger.Info("mfa device activated", slog.String("user_id", userID.String()))
	return nil
}

// StepUp verifies a TOTP code and mints a short-lived elevated token.
// Verification attempts draw from the mfaVerify budget; success forgives the
// accumulated failures.
func (s *MFAService) StepUp(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error) {
	key, err := s.gateStepUp(ctx, userID)
	if err != nil {
		return nil, err
	}

	device, err := s.getDevice(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive() {
		return nil, models.ErrMFANotEnrolled
	}

	valid, err := s.validateCode(device, code, device.LastUsedAt)
	if err != nil {
		if errors.Is(err, models.ErrMFACodeReused) {
			reason := "code_reused"
			s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeStepUp, models.AuditActionVerify, false, &reason)
		}
		return nil, err
	}
	if !valid {
		reason := "invalid_code"
		s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeStepUp, models.AuditActionVerify, false, &reason)
		return nil, models.ErrMFACodeInvalid
	}

	if err := s.repo.UpdateLastUsedAt(ctx, userID); err != nil {
		s.logger.Error("failed to record code use", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.tracker.Reset(key)
	return s.mintElevated(ctx, userID, email, role)
}

// StepUpWithRecoveryCode redeems a single-use recovery code for an elevated
// token
func (s *MFAService) StepUpWithRecoveryCode(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error) {
	key, err := s.gateStepUp(ctx, userID)
	if err != nil {
		return nil, err
	}

	device, err := s.getDevice(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive() {
		return nil, models.ErrMFANotEnrolled
	}

	matched := -1
	for i, entry := range device.RecoveryCodes {
		if !s.totp.VerifyRecoveryCode(code, entry.CodeHash) {
			continue
		}
		if entry.UsedAt != nil {
			reason := "recovery_code_reused"
			s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeStepUp, models.AuditActionVerify, false, &reason)
			return nil, models.ErrMFACodeReused
		}
		matched = i
		break
	}
	if matched < 0 {
		reason := "invalid_recovery_code"
		s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeStepUp, models.AuditActionVerify, false, &reason)
		return nil, models.ErrMFACodeInvalid
	}

	// Burn the code before minting anything
	now := time.Now()
	device.RecoveryCodes[matched].UsedAt = &now
	if err := s.repo.UpdateRecoveryCodes(ctx, userID, device.RecoveryCodes); err != nil {
		s.logger.Error("failed to burn recovery code", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.tracker.Reset(key)
	return s.mintElevated(ctx, userID, email, role)
}

// Disenroll removes the admin's device entirely
func (s *MFAService) Disenroll(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMFANotEnrolled
		}
		s.logger.Error("failed to delete mfa device", slog.String("user_id", userID.String()), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeMFAEnroll, models.AuditActionBlock, true, nil)
	s.logger.Info("mfa device removed", slog.String("user_id", userID.String()))
	return nil
}

// Status reports the admin's enrollment state
func (s *MFAService) Status(ctx context.Context, userID uuid.UUID) (*MFAStatusResponse, error) {
	device, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &MFAStatusResponse{}, nil
		}
		s.logger.Error("failed to look up mfa device", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	left := 0
	for _, entry := range device.RecoveryCodes {
		if entry.UsedAt == nil {
			left++
		}
	}

	return &MFAStatusResponse{
		Enrolled:          true,
		Activated:         device.IsActive(),
		RecoveryCodesLeft: left,
		LastUsedAt:        device.LastUsedAt,
	}, nil
}

// gateStepUp draws one attempt from the admin's mfaVerify budget
func (s *MFAService) gateStepUp(ctx context.Context, userID uuid.UUID) (string, error) {
	cfg := s.tracker.ConfigFor(limiter.ActionMFAVerify)
	key := limiter.KeyFor(limiter.ActionMFAVerify, userID.String())

	wasLocked := s.tracker.IsLockedOut(key)
	decision := s.tracker.CheckAndRecord(key, &cfg)
	if decision.Allowed {
		return key, nil
	}

	if !wasLocked {
		s.audit.LogLockout(ctx, userID.String(), string(limiter.ActionMFAVerify), decision.RetryAfter)
	}

	if s.notifier != nil {
		for _, notice := range decision.Notices {
			s.notifier.Notify(notice)
		}
	}

	return key, &models.RateLimitError{
		RetryAfter: decision.RetryAfter,
		ResetAt:    time.Now().Add(decision.RetryAfter),
	}
}

func (s *MFAService) getDevice(ctx context.Context, userID uuid.UUID) (*models.AdminMFADevice, error) {
	device, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrMFANotEnrolled
		}
		s.logger.Error("failed to look up mfa device", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return device, nil
}

func (s *MFAService) validateCode(device *models.AdminMFADevice, code string, lastUsedAt *time.Time) (bool, error) {
	secret, err := s.totp.DecryptSecret(device.SecretEncrypted, device.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt mfa secret", slog.String("user_id", device.UserID.String()), slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	valid, err := s.totp.ValidateTOTP(secret, code, lastUsedAt)
	if err != nil {
		if errors.Is(err, models.ErrMFACodeReused) {
			return false, models.ErrMFACodeReused
		}
		s.logger.Error("totp validation failed", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return valid, nil
}

func (s *MFAService) mintElevated(ctx context.Context, userID uuid.UUID, email, role string) (*models.StepUpResponse, error) {
	token, err := s.tm.GenerateElevatedToken(userID.String(), email, role)
	if err != nil {
		s.logger.Error("failed to generate elevated token", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogMFAEvent(ctx, userID, models.AuditEventTypeStepUp, models.AuditActionVerify, true, nil)
	s.logger.Info("step-up verified", slog.String("user_id", userID.String()))

	return &models.StepUpResponse{
		ElevatedToken: token,
		ExpiresAt:     time.Now().Add(s.tm.ElevatedTokenExpiry()),
	}, nil
}
