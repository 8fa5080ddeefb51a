package models

import (
	"time"

	"github.com/google/uuid"
)

// Course represents a course offered on the platform.
type Course struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	InstructorID *uuid.UUID `json:"instructor_id,omitempty"`
	Students     int        `json:"students"`
	Assignments  int        `json:"assignments"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
