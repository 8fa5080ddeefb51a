package gamification

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/models"
	"github.com/lumina-edu/backend/pkg/response"
)

const leaderboardLimit = 20

// AwardRequest is the body for POST /gamification/badges (admin award).
type AwardRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title" binding:"required"`
}

// Handler handles gamification HTTP endpoints.
type Handler struct {
	repo        *Repository
	leaderboard *Leaderboard
}

// NewHandler creates a gamification handler.
func NewHandler(repo *Repository, leaderboard *Leaderboard) *Handler {
	return &Handler{repo: repo, leaderboard: leaderboard}
}

// ListBadges handles GET /gamification/badges (caller's own badges).
func (h *Handler) ListBadges(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListBadges(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list badges")
		return
	}
	if list == nil {
		list = []models.Badge{}
	}
	response.OK(c, gin.H{"badges": list})
}

// AwardBadge handles POST /gamification/badges (admin manual award).
func (h *Handler) AwardBadge(c *gin.Context) {
	var req AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	awarded, err := h.repo.AwardBadge(c.Request.Context(), userID, req.Title)
	if err != nil {
		response.Internal(c, "failed to award badge")
		return
	}
	if !awarded {
		response.Conflict(c, "badge already awarded")
		return
	}
	response.Created(c, gin.H{"user_id": userID, "title": req.Title})
}

// Leaderboard handles GET /gamification/leaderboard.
func (h *Handler) Leaderboard(c *gin.Context) {
	entries, err := h.leaderboard.Top(c.Request.Context(), leaderboardLimit)
	if err != nil {
		response.ServiceUnavailable(c, "leaderboard unavailable")
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	response.OK(c, gin.H{"leaderboard": entries})
}
