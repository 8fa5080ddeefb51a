package proctor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/models"
)

// memStore is an in-memory Store for handler tests. All mutation happens
// under one mutex, mirroring the atomicity of the SQL increments.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.ProctorSession
	events   map[uuid.UUID][]models.ProctorEvent
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]*models.ProctorSession),
		events:   make(map[uuid.UUID][]models.ProctorEvent),
	}
}

func (m *memStore) CreateSession(_ context.Context, userID uuid.UUID, examID string) (*models.ProctorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.ProctorSession{
		ID:        uuid.New(),
		UserID:    userID,
		ExamID:    examID,
		Status:    models.SessionActive,
		StartedAt: time.Now().UTC(),
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*models.ProctorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) RecordHeartbeat(_ context.Context, sessionID uuid.UUID, sig Signals, suspicious int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	now := time.Now().UTC()
	s.Heartbeats++
	s.Suspicious += int64(suspicious)
	s.LastHeartbeatAt = &now
	m.events[sessionID] = append(m.events[sessionID], models.ProctorEvent{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Faces:         sig.Faces,
		FacePresent:   sig.FacePresent,
		MultipleFaces: sig.MultipleFaces,
		TabHidden:     sig.TabHidden,
		AwaySeconds:   sig.AwaySeconds,
		Suspicious:    suspicious,
		At:            now,
	})
	return nil
}

func (m *memStore) EndSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	now := time.Now().UTC()
	s.Status = models.SessionEnded
	s.EndedAt = &now
	return nil
}

func (m *memStore) ListEvents(_ context.Context, sessionID uuid.UUID, limit int) ([]models.ProctorEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := m.events[sessionID]
	if len(evs) > limit {
		evs = evs[:limit]
	}
	out := make([]models.ProctorEvent, len(evs))
	copy(out, evs)
	return out, nil
}

func (m *memStore) ListSessionsByExam(_ context.Context, examID string, limit int) ([]models.ProctorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProctorSession
	for _, s := range m.sessions {
		if s.ExamID == examID && len(out) < limit {
			out = append(out, *s)
		}
	}
	return out, nil
}

func newTestRouter(store Store, userID uuid.UUID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, nil, DefaultAwayThreshold, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserRole, role)
		c.Set(middleware.ContextUserName, "Test User")
		c.Next()
	})
	r.POST("/proctor/start", h.Start)
	r.POST("/proctor/heartbeat", h.Heartbeat)
	r.POST("/proctor/end", h.End)
	r.GET("/proctor/sessions/:id", h.GetSession)
	r.GET("/proctor/sessions/:id/events", h.ListEvents)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, r *gin.Engine, examID string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/proctor/start", gin.H{"exam_id": examID})
	if w.Code != http.StatusOK {
		t.Fatalf("start returned %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if resp.Data.SessionID == "" {
		t.Fatal("start returned empty session_id")
	}
	return resp.Data.SessionID
}

func TestHeartbeatRequiresSessionID(t *testing.T) {
	r := newTestRouter(newMemStore(), uuid.New(), "student")
	w := doJSON(t, r, http.MethodPost, "/proctor/heartbeat", gin.H{"face_present": true})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHeartbeatUnknownSession(t *testing.T) {
	r := newTestRouter(newMemStore(), uuid.New(), "student")
	for _, id := range []string{uuid.New().String(), "not-a-uuid"} {
		w := doJSON(t, r, http.MethodPost, "/proctor/heartbeat", gin.H{"session_id": id})
		if w.Code != http.StatusNotFound {
			t.Fatalf("session_id %q: expected 404, got %d", id, w.Code)
		}
	}
}

func TestHeartbeatRejectsForeignSession(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	ownerRouter := newTestRouter(store, owner, "student")
	sessionID := startSession(t, ownerRouter, "")

	otherRouter := newTestRouter(store, uuid.New(), "student")
	w := doJSON(t, otherRouter, http.MethodPost, "/proctor/heartbeat", gin.H{"session_id": sessionID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHeartbeatAccumulatesCounters(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	r := newTestRouter(store, userID, "student")
	sessionID := startSession(t, r, "exam-1")

	// first heartbeat: face absent and tab hidden, delta 2
	w := doJSON(t, r, http.MethodPost, "/proctor/heartbeat", gin.H{
		"session_id": sessionID, "face_present": false, "tab_hidden": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("heartbeat returned %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			OK         bool `json:"ok"`
			Suspicious int  `json:"suspicious"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode heartbeat response: %v", err)
	}
	if !resp.Data.OK || resp.Data.Suspicious != 2 {
		t.Fatalf("expected ok with delta 2, got %+v", resp.Data)
	}

	// second heartbeat: multiple faces, delta 2 (face present)
	w = doJSON(t, r, http.MethodPost, "/proctor/heartbeat", gin.H{
		"session_id": sessionID, "face_present": true, "multiple_faces": true, "faces": 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("heartbeat returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/proctor/end", gin.H{"session_id": sessionID})
	if w.Code != http.StatusOK {
		t.Fatalf("end returned %d: %s", w.Code, w.Body.String())
	}

	id := uuid.MustParse(sessionID)
	s, _ := store.GetSession(context.Background(), id)
	if s.Heartbeats != 2 {
		t.Fatalf("expected 2 heartbeats, got %d", s.Heartbeats)
	}
	if s.Suspicious != 4 {
		t.Fatalf("expected suspicious 4, got %d", s.Suspicious)
	}
	if s.Status != models.SessionEnded || s.EndedAt == nil {
		t.Fatalf("expected ended session, got status %q", s.Status)
	}
	evs, _ := store.ListEvents(context.Background(), id, 10)
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
}

func TestHeartbeatIgnoresMalformedTelemetry(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	r := newTestRouter(store, userID, "student")
	sessionID := startSession(t, r, "")

	// wrong-typed telemetry falls back to zero values no matter where it
	// sits relative to session_id; well-typed fields around it still apply
	bodies := []string{
		fmt.Sprintf(`{"session_id":%q,"away_seconds":"lots"}`, sessionID),
		fmt.Sprintf(`{"away_seconds":"lots","session_id":%q}`, sessionID),
		fmt.Sprintf(`{"faces":"two","tab_hidden":true,"session_id":%q}`, sessionID),
	}
	for _, raw := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/proctor/heartbeat", bytes.NewBufferString(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("body %s: expected 200, got %d: %s", raw, w.Code, w.Body.String())
		}
	}

	s, _ := store.GetSession(context.Background(), uuid.MustParse(sessionID))
	if s.Heartbeats != int64(len(bodies)) {
		t.Fatalf("expected %d heartbeats, got %d", len(bodies), s.Heartbeats)
	}
	// each heartbeat scored face-absent (+1); the last also tab-hidden (+1)
	if s.Suspicious != int64(len(bodies))+1 {
		t.Fatalf("expected suspicious %d, got %d", len(bodies)+1, s.Suspicious)
	}
}

func TestEndRejectsForeignSession(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	ownerRouter := newTestRouter(store, owner, "student")
	sessionID := startSession(t, ownerRouter, "")

	otherRouter := newTestRouter(store, uuid.New(), "student")
	w := doJSON(t, otherRouter, http.MethodPost, "/proctor/end", gin.H{"session_id": sessionID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	s, _ := store.GetSession(context.Background(), uuid.MustParse(sessionID))
	if s.Status != models.SessionActive {
		t.Fatalf("foreign end must not change status, got %q", s.Status)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	r := newTestRouter(store, userID, "student")
	sessionID := startSession(t, r, "")

	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/proctor/end", gin.H{"session_id": sessionID})
		if w.Code != http.StatusOK {
			t.Fatalf("end call %d returned %d: %s", i+1, w.Code, w.Body.String())
		}
	}
	s, _ := store.GetSession(context.Background(), uuid.MustParse(sessionID))
	if s.Status != models.SessionEnded {
		t.Fatalf("expected ended, got %q", s.Status)
	}
}

func TestConcurrentHeartbeatsKeepCountersExact(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	r := newTestRouter(store, userID, "student")
	sessionID := startSession(t, r, "")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// alternate delta 0 and delta 1 heartbeats
			body := gin.H{"session_id": sessionID, "face_present": i%2 == 0, "faces": 1}
			w := doJSON(t, r, http.MethodPost, "/proctor/heartbeat", body)
			if w.Code != http.StatusOK {
				t.Errorf("heartbeat %d returned %d", i, w.Code)
			}
		}(i)
	}
	wg.Wait()

	s, _ := store.GetSession(context.Background(), uuid.MustParse(sessionID))
	if s.Heartbeats != n {
		t.Fatalf("expected %d heartbeats, got %d", n, s.Heartbeats)
	}
	if s.Suspicious != n/2 {
		t.Fatalf("expected suspicious %d, got %d", n/2, s.Suspicious)
	}
}

func TestGetSessionAccess(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	ownerRouter := newTestRouter(store, owner, "student")
	sessionID := startSession(t, ownerRouter, "exam-9")

	// owner can read
	w := doJSON(t, ownerRouter, http.MethodGet, "/proctor/sessions/"+sessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner read returned %d", w.Code)
	}

	// another student cannot
	studentRouter := newTestRouter(store, uuid.New(), "student")
	w = doJSON(t, studentRouter, http.MethodGet, "/proctor/sessions/"+sessionID, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign student read returned %d, want 403", w.Code)
	}

	// an instructor can
	instructorRouter := newTestRouter(store, uuid.New(), "instructor")
	w = doJSON(t, instructorRouter, http.MethodGet, "/proctor/sessions/"+sessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("instructor read returned %d, want 200", w.Code)
	}
}
