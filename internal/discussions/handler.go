package discussions

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/models"
	"github.com/lumina-edu/backend/pkg/queue"
	"github.com/lumina-edu/backend/pkg/response"
)

const (
	// listLimit caps the pull path page size.
	listLimit = 50
	// maxContentLength bounds post content.
	maxContentLength = 4000
	// postPoints is awarded per created post via the engagement queue.
	postPoints = 5
)

// Store is the persistence surface the board needs. *Repository implements
// it; tests use an in-memory fake.
type Store interface {
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, scope string, id uuid.UUID) (*models.Post, error)
	ListPosts(ctx context.Context, scope string, limit int) ([]models.Post, error)
	DeletePost(ctx context.Context, scope string, id uuid.UUID) error
}

// CreateRequest is the body for POST /discussions.
type CreateRequest struct {
	Content string `json:"content" binding:"required"`
}

// Handler handles discussion board HTTP endpoints, global and course-scoped.
type Handler struct {
	store       Store
	hub         *Hub
	queue       *queue.Queue
	keepAlive   time.Duration
	retryMillis int
	logger      *zap.Logger
}

// NewHandler creates a discussions handler. q may be nil (no points awards).
func NewHandler(store Store, hub *Hub, q *queue.Queue, keepAlive time.Duration, retryMillis int, logger *zap.Logger) *Handler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	if retryMillis <= 0 {
		retryMillis = 5000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, hub: hub, queue: q, keepAlive: keepAlive, retryMillis: retryMillis, logger: logger}
}

// List handles GET /discussions.
func (h *Handler) List(c *gin.Context) {
	h.list(c, models.ScopeGlobal)
}

// ListCourse handles GET /courses/:id/discussions.
func (h *Handler) ListCourse(c *gin.Context) {
	h.list(c, c.Param("id"))
}

// Create handles POST /discussions.
func (h *Handler) Create(c *gin.Context) {
	h.create(c, models.ScopeGlobal)
}

// CreateCourse handles POST /courses/:id/discussions.
func (h *Handler) CreateCourse(c *gin.Context) {
	h.create(c, c.Param("id"))
}

// Delete handles DELETE /discussions/:id.
func (h *Handler) Delete(c *gin.Context) {
	h.delete(c, models.ScopeGlobal, c.Param("id"))
}

// DeleteCourse handles DELETE /courses/:id/discussions/:postId.
func (h *Handler) DeleteCourse(c *gin.Context) {
	h.delete(c, c.Param("id"), c.Param("postId"))
}

// Stream handles GET /discussions/stream.
func (h *Handler) Stream(c *gin.Context) {
	h.stream(c, models.ScopeGlobal)
}

// StreamCourse handles GET /courses/:id/discussions/stream.
func (h *Handler) StreamCourse(c *gin.Context) {
	h.stream(c, c.Param("id"))
}

func (h *Handler) list(c *gin.Context, scope string) {
	if scope == "" {
		response.BadRequest(c, "scope required")
		return
	}
	posts, err := h.store.ListPosts(c.Request.Context(), scope, listLimit)
	if err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	response.OK(c, gin.H{"posts": posts})
}

func (h *Handler) create(c *gin.Context, scope string) {
	if scope == "" {
		response.BadRequest(c, "scope required")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	name, _ := c.MustGet(middleware.ContextUserName).(string)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "content required")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		response.BadRequest(c, "content required")
		return
	}
	if len(content) > maxContentLength {
		response.BadRequest(c, "content too long")
		return
	}

	post := &models.Post{
		Scope:    scope,
		Author:   name,
		AuthorID: userID,
		Content:  content,
	}
	if post.Author == "" {
		post.Author = "User"
	}
	if err := h.store.CreatePost(c.Request.Context(), post); err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return
	}

	h.hub.Publish(scope, gin.H{"post": post})

	if h.queue != nil {
		if err := h.queue.EnqueuePointsAward(c.Request.Context(), queue.PointsAwardPayload{
			UserID:   userID,
			UserName: post.Author,
			Activity: "post",
			Points:   postPoints,
		}); err != nil {
			h.logger.Warn("enqueue points award", zap.Error(err))
		}
	}

	response.Created(c, gin.H{"post": post})
}

func (h *Handler) delete(c *gin.Context, scope, rawID string) {
	if scope == "" || rawID == "" {
		response.BadRequest(c, "scope and id required")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)

	postID, err := uuid.Parse(rawID)
	if err != nil {
		response.NotFound(c, "post not found")
		return
	}
	post, err := h.store.GetPost(c.Request.Context(), scope, postID)
	if err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return
	}
	if post == nil {
		response.NotFound(c, "post not found")
		return
	}
	if post.AuthorID != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "only the author or an admin may delete")
		return
	}
	if err := h.store.DeletePost(c.Request.Context(), scope, postID); err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return
	}
	response.OK(c, gin.H{"ok": true})
}

// stream upgrades the response to a one-way SSE stream: a connect comment
// immediately, a keep-alive comment on an interval, and one framed event per
// in-scope publish until the client disconnects. The subscription is
// released on every exit path.
func (h *Handler) stream(c *gin.Context, scope string) {
	if scope == "" {
		response.BadRequest(c, "scope required")
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Internal(c, "streaming unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	fmt.Fprintf(c.Writer, "retry: %d\n", h.retryMillis)
	fmt.Fprint(c.Writer, ": connected\n\n")
	flusher.Flush()

	sub := h.hub.Subscribe(scope)
	defer h.hub.Unsubscribe(sub)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-sub.Events():
			if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Name, ev.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
