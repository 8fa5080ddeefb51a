package proctor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/models"
	"github.com/lumina-edu/backend/pkg/response"
)

// Store is the persistence surface the engine needs. *Repository implements
// it; tests use an in-memory fake.
type Store interface {
	CreateSession(ctx context.Context, userID uuid.UUID, examID string) (*models.ProctorSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.ProctorSession, error)
	RecordHeartbeat(ctx context.Context, sessionID uuid.UUID, sig Signals, suspicious int) error
	EndSession(ctx context.Context, id uuid.UUID) error
	ListEvents(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ProctorEvent, error)
	ListSessionsByExam(ctx context.Context, examID string, limit int) ([]models.ProctorSession, error)
}

// StartRequest is the body for POST /proctor/start.
type StartRequest struct {
	ExamID string `json:"exam_id"`
}

// HeartbeatRequest is the body for POST /proctor/heartbeat. Telemetry fields
// are optional and default to 0/false when missing or malformed.
type HeartbeatRequest struct {
	SessionID string `json:"session_id"`
	Signals
}

// EndRequest is the body for POST /proctor/end.
type EndRequest struct {
	SessionID string `json:"session_id"`
}

// Handler handles proctoring HTTP endpoints.
type Handler struct {
	store         Store
	monitor       *Monitor
	awayThreshold float64
	logger        *zap.Logger
}

// NewHandler creates a proctor handler. monitor may be nil (no live feed).
func NewHandler(store Store, monitor *Monitor, awayThreshold float64, logger *zap.Logger) *Handler {
	if awayThreshold <= 0 {
		awayThreshold = DefaultAwayThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, monitor: monitor, awayThreshold: awayThreshold, logger: logger}
}

// Start handles POST /proctor/start.
func (h *Handler) Start(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req StartRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	session, err := h.store.CreateSession(c.Request.Context(), userID, req.ExamID)
	if err != nil {
		h.logger.Error("create proctor session", zap.Error(err))
		response.ServiceUnavailable(c, "store unavailable")
		return
	}
	response.OK(c, gin.H{"session_id": session.ID})
}

// decodeHeartbeat extracts what it can from the request body, field by
// field. A telemetry value of the wrong type falls back to its zero value
// without poisoning the fields around it, wherever it sits in the object.
func decodeHeartbeat(raw []byte) HeartbeatRequest {
	var req HeartbeatRequest
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return req
	}
	_ = json.Unmarshal(fields["session_id"], &req.SessionID)
	_ = json.Unmarshal(fields["faces"], &req.Faces)
	_ = json.Unmarshal(fields["face_present"], &req.FacePresent)
	_ = json.Unmarshal(fields["multiple_faces"], &req.MultipleFaces)
	_ = json.Unmarshal(fields["tab_hidden"], &req.TabHidden)
	_ = json.Unmarshal(fields["away_seconds"], &req.AwaySeconds)
	return req
}

// Heartbeat handles POST /proctor/heartbeat. Malformed telemetry values fall
// back to 0/false rather than failing the request; only a missing session id
// is rejected.
func (h *Handler) Heartbeat(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	raw, _ := c.GetRawData()
	req := decodeHeartbeat(raw)
	if req.SessionID == "" {
		response.BadRequest(c, "session_id required")
		return
	}

	session, ok := h.lookupOwned(c, req.SessionID, userID)
	if !ok {
		return
	}

	delta := Score(req.Signals, h.awayThreshold)
	if err := h.store.RecordHeartbeat(c.Request.Context(), session.ID, req.Signals, delta); err != nil {
		h.logger.Error("record heartbeat", zap.Error(err), zap.String("session_id", session.ID.String()))
		response.ServiceUnavailable(c, "store unavailable")
		return
	}

	if h.monitor != nil && delta > 0 && session.ExamID != "" {
		h.monitor.Publish(session.ExamID, Alert{
			SessionID:  session.ID,
			UserID:     session.UserID,
			ExamID:     session.ExamID,
			Suspicious: delta,
			At:         time.Now().UTC(),
		})
	}

	response.OK(c, gin.H{"ok": true, "suspicious": delta})
}

// End handles POST /proctor/end. Idempotent: ending an already-ended session
// re-stamps ended_at and succeeds, since the client's stop path may race
// with its cleanup-on-unmount call.
func (h *Handler) End(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req EndRequest
	_ = c.ShouldBindJSON(&req)
	if req.SessionID == "" {
		response.BadRequest(c, "session_id required")
		return
	}

	session, ok := h.lookupOwned(c, req.SessionID, userID)
	if !ok {
		return
	}

	if err := h.store.EndSession(c.Request.Context(), session.ID); err != nil {
		h.logger.Error("end proctor session", zap.Error(err), zap.String("session_id", session.ID.String()))
		response.ServiceUnavailable(c, "store unavailable")
		return
	}
	response.OK(c, gin.H{"ok": true})
}

// GetSession handles GET /proctor/sessions/:id. The owner, an instructor or
// an admin may read the summary; the summary is the cheap read path, the
// event log stays append-only behind ListEvents.
func (h *Handler) GetSession(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)

	session, ok := h.lookupReadable(c, c.Param("id"), userID, role)
	if !ok {
		return
	}
	response.OK(c, gin.H{"session": session})
}

// ListEvents handles GET /proctor/sessions/:id/events (audit trail).
func (h *Handler) ListEvents(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)

	session, ok := h.lookupReadable(c, c.Param("id"), userID, role)
	if !ok {
		return
	}
	events, err := h.store.ListEvents(c.Request.Context(), session.ID, 500)
	if err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return
	}
	response.OK(c, gin.H{"events": events})
}

// ListByExam handles GET /proctor/exams/:examId/sessions (instructor view).
func (h *Handler) ListByExam(c *gin.Context) {
	examID := c.Param("examId")
	if examID == "" {
		response.BadRequest(c, "exam id required")
		return
	}
	sessions, err := h.store.ListSessionsByExam(c.Request.Context(), examID, 200)
	if err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return
	}
	response.OK(c, gin.H{"sessions": sessions})
}

// lookupOwned resolves a session id and enforces that the caller owns it.
// A session may only be fed (or ended) by its owner.
func (h *Handler) lookupOwned(c *gin.Context, rawID string, userID uuid.UUID) (*models.ProctorSession, bool) {
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	session, err := h.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return nil, false
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	if session.UserID != userID {
		response.Forbidden(c, "session owned by another user")
		return nil, false
	}
	return session, true
}

func (h *Handler) lookupReadable(c *gin.Context, rawID string, userID uuid.UUID, role string) (*models.ProctorSession, bool) {
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	session, err := h.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return nil, false
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	if session.UserID != userID && role != string(models.RoleInstructor) && role != string(models.RoleAdmin) {
		response.Forbidden(c, "not allowed to view this session")
		return nil, false
	}
	return session, true
}
