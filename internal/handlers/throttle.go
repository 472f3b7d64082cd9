package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

// ThrottleAdminInterface defines the interface for administrative control of
// the durable write throttle
type ThrottleAdminInterface interface {
	BlockIdentifier(ctx context.Context, identifier string, until time.Time) error
	UnblockIdentifier(ctx context.Context, identifier string) error
}

// ThrottleHandler lets admins cut off or restore an identifier's console
// write budget ahead of the normal window, for working an active incident
type ThrottleHandler struct {
	service ThrottleAdminInterface
}

// NewThrottleHandler creates a new ThrottleHandler
func NewThrottleHandler(service ThrottleAdminInterface) *ThrottleHandler {
	return &ThrottleHandler{service: service}
}

// BlockIdentifierRequest represents the request body for a manual block
type BlockIdentifierRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Minutes    int    `json:"minutes" validate:"required,gte=1,lte=10080"`
}

// Block handles POST /admin/throttle/blocks
func (h *ThrottleHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req BlockIdentifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	until := time.Now().Add(time.Duration(req.Minutes) * time.Minute)
	if err := h.service.BlockIdentifier(r.Context(), req.Identifier, until); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unblock handles DELETE /admin/throttle/blocks/{identifier}
func (h *ThrottleHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	if identifier == "" {
		pkghttp.WriteBadRequest(w, "missing identifier")
		return
	}

	if err := h.service.UnblockIdentifier(r.Context(), identifier); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
