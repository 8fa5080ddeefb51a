package gamification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-edu/backend/internal/models"
)

// Repository handles badge persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a gamification repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AwardBadge inserts a badge for a user. Returns false when the user already
// holds a badge with that title (awards are once per title).
func (r *Repository) AwardBadge(ctx context.Context, userID uuid.UUID, title string) (bool, error) {
	const q = `INSERT INTO badges (id, user_id, title)
		VALUES (gen_random_uuid(), $1, $2)
		ON CONFLICT (user_id, title) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, userID, title)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListBadges returns a user's badges, most recent first.
func (r *Repository) ListBadges(ctx context.Context, userID uuid.UUID) ([]models.Badge, error) {
	const q = `SELECT id, user_id, title, awarded_at
		FROM badges WHERE user_id = $1 ORDER BY awarded_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Badge
	for rows.Next() {
		var b models.Badge
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.AwardedAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// CountActivity returns how many posts or submissions a user has, used for
// badge thresholds.
func (r *Repository) CountActivity(ctx context.Context, userID uuid.UUID, activity string) (int, error) {
	var q string
	switch activity {
	case "post":
		q = `SELECT COUNT(*) FROM posts WHERE author_id = $1`
	case "submission":
		q = `SELECT COUNT(*) FROM submissions WHERE user_id = $1`
	default:
		return 0, nil
	}
	var n int
	err := r.pool.QueryRow(ctx, q, userID).Scan(&n)
	return n, err
}
