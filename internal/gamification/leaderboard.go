package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lumina-edu/backend/internal/models"
)

const (
	// leaderboardKey is the Redis sorted set holding engagement points.
	leaderboardKey = "leaderboard:points"
	// nameHashKey maps user id -> display name for leaderboard rendering.
	nameHashKey = "leaderboard:names"
)

// Leaderboard tracks engagement points in a Redis sorted set. ZINCRBY is
// atomic, so concurrent awards never lose updates.
type Leaderboard struct {
	client *redis.Client
}

// NewLeaderboard creates a Redis-backed leaderboard.
func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

// AddPoints atomically adds points for a user and remembers the display name.
func (l *Leaderboard) AddPoints(ctx context.Context, userID uuid.UUID, name string, points int) error {
	pipe := l.client.TxPipeline()
	pipe.ZIncrBy(ctx, leaderboardKey, float64(points), userID.String())
	if name != "" {
		pipe.HSet(ctx, nameHashKey, userID.String(), name)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

// Top returns the highest-scoring users, best first.
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	zs, err := l.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("top: %w", err)
	}
	entries := make([]models.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		name, _ := l.client.HGet(ctx, nameHashKey, member).Result()
		entries = append(entries, models.LeaderboardEntry{
			UserID: id,
			Name:   name,
			Points: int64(z.Score),
			Rank:   i + 1,
		})
	}
	return entries, nil
}

// Points returns one user's current score.
func (l *Leaderboard) Points(ctx context.Context, userID uuid.UUID) (int64, error) {
	score, err := l.client.ZScore(ctx, leaderboardKey, userID.String()).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(score), nil
}
