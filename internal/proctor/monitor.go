package proctor

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumina-edu/backend/internal/models"
)

const (
	// monitorPingInterval and monitorPongWait control websocket heartbeat.
	monitorPingInterval = 30
	monitorPongWait     = 60
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Alert is one live suspicion notification pushed to instructors watching an
// exam. Advisory only; the event log is the authoritative record.
type Alert struct {
	SessionID  uuid.UUID `json:"session_id"`
	UserID     uuid.UUID `json:"user_id"`
	ExamID     string    `json:"exam_id"`
	Suspicious int       `json:"suspicious"`
	At         time.Time `json:"at"`
}

// watcher is a single instructor websocket connection watching one exam.
type watcher struct {
	id     string
	examID string
	conn   *websocket.Conn
	send   chan Alert
}

// Monitor maintains exam_id -> set of instructor connections and fans out
// suspicion alerts. Registration and removal are safe under concurrent
// Publish calls.
type Monitor struct {
	exams  map[string]map[string]*watcher
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMonitor creates a proctor alert monitor.
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		exams:  make(map[string]map[string]*watcher),
		logger: logger,
	}
}

func (m *Monitor) register(w *watcher) {
	m.mu.Lock()
	if m.exams[w.examID] == nil {
		m.exams[w.examID] = make(map[string]*watcher)
	}
	m.exams[w.examID][w.id] = w
	m.mu.Unlock()
	m.logger.Debug("monitor watcher joined", zap.String("watcher_id", w.id), zap.String("exam_id", w.examID))
}

func (m *Monitor) unregister(w *watcher) {
	m.mu.Lock()
	if set, ok := m.exams[w.examID]; ok {
		delete(set, w.id)
		if len(set) == 0 {
			delete(m.exams, w.examID)
		}
	}
	m.mu.Unlock()
	m.logger.Debug("monitor watcher left", zap.String("watcher_id", w.id), zap.String("exam_id", w.examID))
}

// Publish sends an alert to every watcher of the exam. Slow watchers are
// skipped rather than blocking the heartbeat path.
func (m *Monitor) Publish(examID string, a Alert) {
	m.mu.RLock()
	set := m.exams[examID]
	watchers := make([]*watcher, 0, len(set))
	for _, w := range set {
		watchers = append(watchers, w)
	}
	m.mu.RUnlock()

	for _, w := range watchers {
		select {
		case w.send <- a:
		default:
			// buffer full, skip
		}
	}
}

// WatcherCount returns the number of connected watchers for an exam.
func (m *Monitor) WatcherCount(examID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exams[examID])
}

// Serve handles the websocket upgrade for GET /ws/proctor?exam_id=&token=.
// Only instructors and admins may watch.
func (m *Monitor) Serve(jwtValidate func(token string) (userID, role string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		examID := c.Query("exam_id")
		token := c.Query("token")
		if examID == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "exam_id and token required"})
			return
		}
		_, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if role != string(models.RoleInstructor) && role != string(models.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "instructor or admin required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			m.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		w := &watcher{
			id:     uuid.New().String(),
			examID: examID,
			conn:   conn,
			send:   make(chan Alert, 64),
		}
		m.register(w)
		go m.writePump(w)
		m.readPump(w)
	}
}

// readPump drains the connection until the client disconnects. Watchers are
// read-only; inbound messages are ignored.
func (m *Monitor) readPump(w *watcher) {
	defer func() {
		m.unregister(w)
		_ = w.conn.Close()
	}()

	w.conn.SetReadLimit(4096)
	_ = w.conn.SetReadDeadline(time.Now().Add(monitorPongWait * time.Second))
	w.conn.SetPongHandler(func(string) error {
		_ = w.conn.SetReadDeadline(time.Now().Add(monitorPongWait * time.Second))
		return nil
	})

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(monitorPongWait * time.Second))
	}
}

func (m *Monitor) writePump(w *watcher) {
	ticker := time.NewTicker(monitorPingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = w.conn.Close()
	}()

	for {
		select {
		case alert, ok := <-w.send:
			if !ok {
				_ = w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := w.conn.WriteJSON(alert); err != nil {
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
