package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission is an assignment submission: either an uploaded file stored in
// object storage, a plain text note, or both.
type Submission struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	CourseID    *uuid.UUID `json:"course_id,omitempty"`
	Filename    string     `json:"filename"`
	Note        string     `json:"note,omitempty"`
	StorageKey  string     `json:"-"`
	DownloadURL string     `json:"url,omitempty"`
	Status      string     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
}
