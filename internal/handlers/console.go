package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/services"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

// ConsoleServiceInterface defines the interface for the admin SQL console
type ConsoleServiceInterface interface {
	ExecuteMutate(ctx context.Context, req services.ConsoleRequest) (*models.StatementResult, error)
	ExecuteQuery(ctx context.Context, req services.ConsoleRequest) (*models.StatementResult, error)
}

// ConsoleHandler handles admin console HTTP requests. Routes using it sit
// behind AuthMiddleware, RequireRole(admin), and RequireElevated, so every
// request here carries a fresh step-up token.
type ConsoleHandler struct {
	service  ConsoleServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewConsoleHandler creates a new ConsoleHandler
func NewConsoleHandler(service ConsoleServiceInterface, ipConfig *pkghttp.IPConfig) *ConsoleHandler {
	return &ConsoleHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// StatementRequest represents the request body for a console statement
type StatementRequest struct {
	Statement string `json:"statement" validate:"required,min=1,max=50000"`
}

// Mutate handles POST /admin/console/mutate
//
// Status mapping follows the gate that refused the statement:
//   - 403: the statement matches the blocked operation list
//   - 400: a read was submitted here, or the statement failed to execute
//   - 429: the durable write budget is exhausted (Retry-After set)
//   - 503: the budget could not be checked; the write is refused, not waved through
//   - 500: the audit record could not be written; the statement never ran
func (h *ConsoleHandler) Mutate(w http.ResponseWriter, r *http.Request) {
	consoleReq, ok := h.buildRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.ExecuteMutate(r.Context(), consoleReq)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStatementBlocked):
			pkghttp.WriteForbidden(w, "Statement matches a blocked operation")
		case errors.Is(err, models.ErrReadOnlyStatement):
			pkghttp.WriteBadRequest(w, "Read statements belong on the query endpoint")
		case errors.Is(err, models.ErrRateLimitExceeded):
			writeRateLimited(w, err)
		case errors.Is(err, models.ErrThrottleUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Rate limit check unavailable; the write was not executed")
		case errors.Is(err, models.ErrAuditWriteFailed):
			pkghttp.WriteError(w, http.StatusInternalServerError, "audit_write_failed",
				"Audit record could not be written; the statement was not executed")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "statement_failed",
				"Statement execution failed", executionDetail(err))
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// Query handles POST /admin/console/query
func (h *ConsoleHandler) Query(w http.ResponseWriter, r *http.Request) {
	consoleReq, ok := h.buildRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.ExecuteQuery(r.Context(), consoleReq)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStatementBlocked):
			pkghttp.WriteForbidden(w, "Statement matches a blocked operation")
		case errors.Is(err, models.ErrWriteStatement):
			pkghttp.WriteBadRequest(w, "Write statements belong on the mutate endpoint")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "statement_failed",
				"Statement execution failed", executionDetail(err))
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// buildRequest decodes and validates the statement body and resolves the
// actor from the elevated token claims.
func (h *ConsoleHandler) buildRequest(w http.ResponseWriter, r *http.Request) (services.ConsoleRequest, bool) {
	actorID, claims, ok := actorFromRequest(w, r)
	if !ok {
		return services.ConsoleRequest{}, false
	}

	var req StatementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return services.ConsoleRequest{}, false
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return services.ConsoleRequest{}, false
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	return services.ConsoleRequest{
		ActorID:   actorID,
		Email:     claims.Email,
		Statement: req.Statement,
		IPAddress: &ipAddress,
		UserAgent: &userAgent,
	}, true
}

// executionDetail strips the taxonomy prefix so the response details carry
// only the database's own message.
func executionDetail(err error) string {
	return strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": ")
}
