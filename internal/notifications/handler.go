package notifications

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/models"
	"github.com/lumina-edu/backend/pkg/response"
)

const listLimit = 50

// Handler handles notification feed HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a notifications handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /notifications (caller's own feed).
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByUser(c.Request.Context(), userID, listLimit)
	if err != nil {
		response.Internal(c, "failed to list notifications")
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	response.OK(c, gin.H{"notifications": list})
}

// MarkRead handles POST /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	ok, err := h.repo.MarkRead(c.Request.Context(), userID, id)
	if err != nil {
		response.Internal(c, "failed to mark notification read")
		return
	}
	if !ok {
		response.NotFound(c, "notification not found")
		return
	}
	response.OK(c, gin.H{"ok": true})
}
