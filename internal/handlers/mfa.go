package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/services"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

// MFAServiceInterface defines the interface for admin console MFA devices
// and the step-up flow
type MFAServiceInterface interface {
	Enroll(ctx context.Context, userID uuid.UUID, email string) (*models.MFAEnrollmentResponse, error)
	Activate(ctx context.Context, userID uuid.UUID, code string) error
	StepUp(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error)
	StepUpWithRecoveryCode(ctx context.Context, userID uuid.UUID, email, role, code string) (*models.StepUpResponse, error)
	Disenroll(ctx context.Context, userID uuid.UUID) error
	Status(ctx context.Context, userID uuid.UUID) (*services.MFAStatusResponse, error)
}

// MFAHandler handles admin MFA device management and step-up verification.
// Step-up runs on an ordinary access token; it is how an admin obtains the
// elevated token the console write path demands.
type MFAHandler struct {
	service MFAServiceInterface
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface) *MFAHandler {
	return &MFAHandler{service: service}
}

// Request DTOs

// ActivateMFARequest carries the first TOTP code from a new device
type ActivateMFARequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// StepUpRequest carries a TOTP code for step-up verification
type StepUpRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// RecoveryStepUpRequest carries a single-use recovery code
type RecoveryStepUpRequest struct {
	RecoveryCode string `json:"recovery_code" validate:"required,len=8"`
}

// Enroll handles POST /admin/mfa/enroll
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	actorID, claims, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Enroll(r.Context(), actorID, claims.Email)
	if err != nil {
		if errors.Is(err, models.ErrMFAAlreadyActive) {
			pkghttp.WriteConflict(w, "An MFA device is already verified; remove it before enrolling a new one")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	// The secret and recovery codes appear in this response and nowhere else
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Activate handles POST /admin/mfa/activate
func (h *MFAHandler) Activate(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req ActivateMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Activate(r.Context(), actorID, strings.TrimSpace(req.Code)); err != nil {
		switch {
		case errors.Is(err, models.ErrMFANotEnrolled):
			pkghttp.WriteNotFound(w, "No MFA device enrolled")
		case errors.Is(err, models.ErrMFAAlreadyActive):
			pkghttp.WriteConflict(w, "MFA device already verified")
		case errors.Is(err, models.ErrMFACodeInvalid):
			pkghttp.WriteUnauthorized(w, "Invalid verification code")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StepUp handles POST /admin/mfa/step-up
func (h *MFAHandler) StepUp(w http.ResponseWriter, r *http.Request) {
	actorID, claims, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req StepUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.service.StepUp(r.Context(), actorID, claims.Email, claims.Role, strings.TrimSpace(req.Code))
	if err != nil {
		h.writeStepUpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// StepUpWithRecoveryCode handles POST /admin/mfa/step-up/recovery
func (h *MFAHandler) StepUpWithRecoveryCode(w http.ResponseWriter, r *http.Request) {
	actorID, claims, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req RecoveryStepUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.RecoveryCode))
	resp, err := h.service.StepUpWithRecoveryCode(r.Context(), actorID, claims.Email, claims.Role, code)
	if err != nil {
		h.writeStepUpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *MFAHandler) writeStepUpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrRateLimitExceeded):
		writeRateLimited(w, err)
	case errors.Is(err, models.ErrMFANotEnrolled):
		pkghttp.WriteNotFound(w, "No verified MFA device enrolled")
	case errors.Is(err, models.ErrMFACodeReused):
		pkghttp.WriteError(w, http.StatusUnauthorized, "code_reused", "Verification code already used")
	case errors.Is(err, models.ErrMFACodeInvalid):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Status handles GET /admin/mfa/status
func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), actorID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// Disenroll handles DELETE /admin/mfa
func (h *MFAHandler) Disenroll(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Disenroll(r.Context(), actorID); err != nil {
		if errors.Is(err, models.ErrMFANotEnrolled) {
			pkghttp.WriteNotFound(w, "No MFA device enrolled")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
