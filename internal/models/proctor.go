package models

import (
	"time"

	"github.com/google/uuid"
)

// Proctor session status values. A session starts active and becomes ended
// exactly once; sessions are never deleted by the engine (kept for audit).
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// ProctorSession is the mutable summary document for one exam-monitoring
// session. Heartbeats and Suspicious are running counters updated atomically
// on every accepted heartbeat; reading them avoids replaying the event log.
type ProctorSession struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ExamID          string     `json:"exam_id,omitempty"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	Heartbeats      int64      `json:"heartbeats"`
	Suspicious      int64      `json:"suspicious"`
}

// ProctorEvent is one append-only audit row per heartbeat: the raw client
// signals plus the suspicion delta computed for them. Write-once.
type ProctorEvent struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Faces         int       `json:"faces"`
	FacePresent   bool      `json:"face_present"`
	MultipleFaces bool      `json:"multiple_faces"`
	TabHidden     bool      `json:"tab_hidden"`
	AwaySeconds   float64   `json:"away_seconds"`
	Suspicious    int       `json:"suspicious"`
	At            time.Time `json:"at"`
}
