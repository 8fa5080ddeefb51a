package courses

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/models"
	"github.com/lumina-edu/backend/pkg/response"
)

// CreateRequest is the body for POST /courses.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Students    int    `json:"students"`
	Assignments int    `json:"assignments"`
}

// Handler handles course HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a courses handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /courses.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list courses")
		return
	}
	if list == nil {
		list = []models.Course{}
	}
	response.OK(c, gin.H{"courses": list})
}

// GetByID handles GET /courses/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	course, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to get course")
		return
	}
	if course == nil {
		response.NotFound(c, "course not found")
		return
	}
	response.OK(c, gin.H{"course": course})
}

// Create handles POST /courses (instructor or admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	course := &models.Course{
		Title:        req.Title,
		Description:  req.Description,
		InstructorID: &userID,
		Students:     req.Students,
		Assignments:  req.Assignments,
	}
	if err := h.repo.Create(c.Request.Context(), course); err != nil {
		response.Internal(c, "failed to create course")
		return
	}
	response.Created(c, gin.H{"course": course})
}

// Delete handles DELETE /courses/:id (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	course, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to get course")
		return
	}
	if course == nil {
		response.NotFound(c, "course not found")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete course")
		return
	}
	response.OK(c, gin.H{"ok": true})
}
