package assignments

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/models"
	"github.com/lumina-edu/backend/pkg/queue"
	"github.com/lumina-edu/backend/pkg/response"
	"github.com/lumina-edu/backend/pkg/storage"
)

const (
	listLimit = 50
	// submissionPoints is awarded per submission via the engagement queue.
	submissionPoints = 10
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SubmitRequest is the body for POST /assignments. The file travels as
// base64 in the JSON body the way the browser client sends it; a note-only
// submission is also valid.
type SubmitRequest struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	Note          string `json:"note"`
	CourseID      string `json:"course_id"`
}

// Handler handles assignment submission HTTP endpoints.
type Handler struct {
	repo   *Repository
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewHandler creates an assignments handler. s3 and q may be nil (uploads
// disabled / no points awards).
func NewHandler(repo *Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, s3: s3, queue: q, logger: logger}
}

// List handles GET /assignments (caller's own submissions).
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByUser(c.Request.Context(), userID, listLimit)
	if err != nil {
		response.Internal(c, "failed to list submissions")
		return
	}
	if list == nil {
		list = []models.Submission{}
	}
	response.OK(c, gin.H{"submissions": list})
}

// Submit handles POST /assignments.
func (h *Handler) Submit(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	name, _ := c.MustGet(middleware.ContextUserName).(string)

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.ContentBase64 == "" && req.Note == "" {
		response.BadRequest(c, "file content or note required")
		return
	}

	var courseID *uuid.UUID
	if req.CourseID != "" {
		id, err := uuid.Parse(req.CourseID)
		if err != nil {
			response.BadRequest(c, "invalid course id")
			return
		}
		courseID = &id
	}

	sub := &models.Submission{
		ID:       uuid.New(),
		UserID:   userID,
		CourseID: courseID,
		Filename: req.Filename,
		Note:     req.Note,
		Status:   "submitted",
	}
	if sub.Filename == "" {
		sub.Filename = fmt.Sprintf("notes-%d.txt", time.Now().Unix())
	}

	if req.ContentBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			response.BadRequest(c, "invalid base64 content")
			return
		}
		if len(data) > storage.MaxSubmissionSize {
			response.BadRequest(c, "file too large")
			return
		}
		if h.s3 == nil {
			response.ServiceUnavailable(c, "file storage unavailable")
			return
		}
		safeName := unsafeChars.ReplaceAllString(sub.Filename, "_")
		key := storage.SubmissionKey(userID.String(), sub.ID.String(), safeName)
		if _, err := h.s3.Upload(c.Request.Context(), key, "application/octet-stream", bytes.NewReader(data), int64(len(data))); err != nil {
			h.logger.Error("submission upload", zap.Error(err), zap.String("key", key))
			response.ServiceUnavailable(c, "file storage unavailable")
			return
		}
		sub.StorageKey = key
		url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), key, h.s3.PresignExpire())
		if err != nil {
			h.logger.Warn("presign download url", zap.Error(err), zap.String("key", key))
		} else {
			sub.DownloadURL = url
		}
	}

	if err := h.repo.Create(c.Request.Context(), sub); err != nil {
		response.ServiceUnavailable(c, "store unavailable")
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueuePointsAward(c.Request.Context(), queue.PointsAwardPayload{
			UserID:   userID,
			UserName: name,
			Activity: "submission",
			Points:   submissionPoints,
		}); err != nil {
			h.logger.Warn("enqueue points award", zap.Error(err))
		}
	}

	response.Created(c, gin.H{"submission": sub})
}
