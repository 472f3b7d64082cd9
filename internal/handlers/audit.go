package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/models"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

// AuditReader defines the interface for audit trail queries
type AuditReader interface {
	GetActorTrail(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
	GetPrincipalTrail(ctx context.Context, principalKey string, limit, offset int) ([]*models.AuditLog, error)
	GetEventTrail(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error)
	GetRecentFailures(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

// AuditHandler serves the audit trail to admins working lockout and abuse
// reports. Role enforcement happens in the route middleware.
type AuditHandler struct {
	service AuditReader
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditReader) *AuditHandler {
	return &AuditHandler{service: service}
}

// AuditLogResponse represents an audit log entry in HTTP responses
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	EventType     string                 `json:"event_type"`
	ActorID       *string                `json:"actor_id,omitempty"`
	PrincipalKey  *string                `json:"principal_key,omitempty"`
	ResourceType  *string                `json:"resource_type,omitempty"`
	Action        string                 `json:"action"`
	Success       bool                   `json:"success"`
	FailureReason *string                `json:"failure_reason,omitempty"`
	IPAddress     *string                `json:"ip_address,omitempty"`
	UserAgent     *string                `json:"user_agent,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

// GetActorTrail handles GET /admin/audit/actors/{id}
func (h *AuditHandler) GetActorTrail(w http.ResponseWriter, r *http.Request) {
	actorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid actor id")
		return
	}

	limit, offset := parsePagination(r)

	logs, err := h.service.GetActorTrail(r.Context(), actorID, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeTrail(w, logs, limit, offset)
}

// GetPrincipalTrail handles GET /admin/audit/principals/{key}
func (h *AuditHandler) GetPrincipalTrail(w http.ResponseWriter, r *http.Request) {
	principalKey := chi.URLParam(r, "key")
	if principalKey == "" {
		pkghttp.WriteBadRequest(w, "missing principal key")
		return
	}

	limit, offset := parsePagination(r)

	logs, err := h.service.GetPrincipalTrail(r.Context(), principalKey, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeTrail(w, logs, limit, offset)
}

// GetEventTrail handles GET /admin/audit/events/{type}
func (h *AuditHandler) GetEventTrail(w http.ResponseWriter, r *http.Request) {
	eventType := chi.URLParam(r, "type")
	if eventType == "" {
		pkghttp.WriteBadRequest(w, "missing event type")
		return
	}

	limit, offset := parsePagination(r)

	logs, err := h.service.GetEventTrail(r.Context(), eventType, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeTrail(w, logs, limit, offset)
}

// GetRecentFailures handles GET /admin/audit/failures
func (h *AuditHandler) GetRecentFailures(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	logs, err := h.service.GetRecentFailures(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeTrail(w, logs, limit, offset)
}

// parsePagination reads limit and offset query parameters, defaulting to a
// page of 50. The service clamps again; this just avoids shipping nonsense.
func parsePagination(r *http.Request) (int, int) {
	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

func writeTrail(w http.ResponseWriter, logs []*models.AuditLog, limit, offset int) {
	response := make([]*AuditLogResponse, len(logs))
	for i, log := range logs {
		response[i] = auditLogToResponse(log)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"logs":   response,
		"limit":  limit,
		"offset": offset,
	})
}

// auditLogToResponse converts an audit log model to a response DTO
func auditLogToResponse(log *models.AuditLog) *AuditLogResponse {
	resp := &AuditLogResponse{
		ID:        log.ID.String(),
		EventType: log.EventType,
		Action:    log.Action,
		Success:   log.Success,
		CreatedAt: log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Metadata:  log.Metadata,
	}

	if log.ActorID != nil {
		actorStr := log.ActorID.String()
		resp.ActorID = &actorStr
	}

	resp.PrincipalKey = log.PrincipalKey
	resp.ResourceType = log.ResourceType
	resp.FailureReason = log.FailureReason
	resp.IPAddress = log.IPAddress
	resp.UserAgent = log.UserAgent

	return resp
}
