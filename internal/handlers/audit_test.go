package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lendfast/drawbridge/internal/handlers"
	"github.com/lendfast/drawbridge/internal/models"
)

func testAuditLog(eventType string, actorID *uuid.UUID, success bool) *models.AuditLog {
	return &models.AuditLog{
		ID:        uuid.New(),
		EventType: eventType,
		ActorID:   actorID,
		Action:    models.AuditActionAttempt,
		Success:   success,
		Metadata:  models.AuditMetadata{"action_class": "login"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestGetActorTrail_Success(t *testing.T) {
	actorID := uuid.New()
	var capturedLimit, capturedOffset int
	mockAudit := &handlers.MockAuditReader{
		GetActorTrailFunc: func(ctx context.Context, id uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
			assert.Equal(t, actorID, id)
			capturedLimit, capturedOffset = limit, offset
			return []*models.AuditLog{
				testAuditLog(models.AuditEventTypeLogin, &actorID, false),
				testAuditLog(models.AuditEventTypeLockout, &actorID, false),
			}, nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit)
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/actors/"+actorID.String()+"?limit=10&offset=5", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": actorID.String()})

	w := httptest.NewRecorder()
	handler.GetActorTrail(w, req)

	assert.Equal(t, 10, capturedLimit)
	assert.Equal(t, 5, capturedOffset)

	var resp struct {
		Logs   []*handlers.AuditLogResponse `json:"logs"`
		Limit  int                          `json:"limit"`
		Offset int                          `json:"offset"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Logs, 2)
	assert.Equal(t, 10, resp.Limit)
	assert.Equal(t, 5, resp.Offset)
	assert.Equal(t, models.AuditEventTypeLogin, resp.Logs[0].EventType)
	assert.NotNil(t, resp.Logs[0].ActorID)
	assert.Equal(t, actorID.String(), *resp.Logs[0].ActorID)
}

func TestGetActorTrail_InvalidID(t *testing.T) {
	handler := handlers.NewAuditHandler(&handlers.MockAuditReader{})
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/actors/not-a-uuid", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "not-a-uuid"})

	w := httptest.NewRecorder()
	handler.GetActorTrail(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestGetPrincipalTrail_Success(t *testing.T) {
	var capturedKey string
	mockAudit := &handlers.MockAuditReader{
		GetPrincipalTrailFunc: func(ctx context.Context, principalKey string, limit, offset int) ([]*models.AuditLog, error) {
			capturedKey = principalKey
			return []*models.AuditLog{testAuditLog(models.AuditEventTypeThrottleDenied, nil, false)}, nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit)
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/principals/ip:203.0.113.9", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"key": "ip:203.0.113.9"})

	w := httptest.NewRecorder()
	handler.GetPrincipalTrail(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "ip:203.0.113.9", capturedKey)
}

func TestGetPrincipalTrail_MissingKey(t *testing.T) {
	handler := handlers.NewAuditHandler(&handlers.MockAuditReader{})
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/principals/", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{})

	w := httptest.NewRecorder()
	handler.GetPrincipalTrail(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestGetEventTrail_Success(t *testing.T) {
	var capturedType string
	mockAudit := &handlers.MockAuditReader{
		GetEventTrailFunc: func(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error) {
			capturedType = eventType
			return []*models.AuditLog{}, nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit)
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/events/lockout", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"type": models.AuditEventTypeLockout})

	w := httptest.NewRecorder()
	handler.GetEventTrail(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, models.AuditEventTypeLockout, capturedType)
}

func TestGetRecentFailures_DefaultPagination(t *testing.T) {
	var capturedLimit, capturedOffset int
	mockAudit := &handlers.MockAuditReader{
		GetRecentFailuresFunc: func(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
			capturedLimit, capturedOffset = limit, offset
			return []*models.AuditLog{}, nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit)
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/failures", nil)

	w := httptest.NewRecorder()
	handler.GetRecentFailures(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, 50, capturedLimit)
	assert.Equal(t, 0, capturedOffset)
}

func TestPagination_RejectsOutOfRangeValues(t *testing.T) {
	var capturedLimit, capturedOffset int
	mockAudit := &handlers.MockAuditReader{
		GetRecentFailuresFunc: func(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
			capturedLimit, capturedOffset = limit, offset
			return []*models.AuditLog{}, nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit)
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/failures?limit=500&offset=-3", nil)

	w := httptest.NewRecorder()
	handler.GetRecentFailures(w, req)

	assert.Equal(t, 50, capturedLimit)
	assert.Equal(t, 0, capturedOffset)
}

func TestAuditResponse_OmitsEmptyOptionalFields(t *testing.T) {
	mockAudit := &handlers.MockAuditReader{
		GetRecentFailuresFunc: func(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
			return []*models.AuditLog{testAuditLog(models.AuditEventTypeThrottleDenied, nil, false)}, nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit)
	req := handlers.NewTestRequest(t, "GET", "/admin/audit/failures", nil)

	w := httptest.NewRecorder()
	handler.GetRecentFailures(w, req)

	assert.Equal(t, 200, w.Code)

	var raw map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &raw)
	logs := raw["logs"].([]interface{})
	entry := logs[0].(map[string]interface{})
	_, hasActor := entry["actor_id"]
	assert.False(t, hasActor, "anonymous events should not carry an actor_id field")
}
