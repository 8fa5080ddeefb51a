package models

import (
	"time"

	"github.com/google/uuid"
)

// Badge is an achievement awarded to a user, at most once per title.
type Badge struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	AwardedAt time.Time `json:"awarded_at"`
}

// LeaderboardEntry is one row of the points leaderboard.
type LeaderboardEntry struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Points int64     `json:"points"`
	Rank   int       `json:"rank"`
}
