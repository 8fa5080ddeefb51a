package models

import (
	"time"

	"github.com/google/uuid"
)

// ScopeGlobal is the scope key for the platform-wide discussion board.
// Course boards use the course id as scope.
const ScopeGlobal = "global"

// Post is a discussion message, global or course-scoped. Posts are created
// and deleted, never updated in place.
type Post struct {
	ID        uuid.UUID `json:"id"`
	Scope     string    `json:"scope"`
	Author    string    `json:"author"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
