package assignments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-edu/backend/internal/models"
)

// Repository handles submission persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an assignments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new submission.
func (r *Repository) Create(ctx context.Context, s *models.Submission) error {
	const q = `INSERT INTO submissions (id, user_id, course_id, filename, note, storage_key, download_url, status)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), $8)
		RETURNING submitted_at`
	return r.pool.QueryRow(ctx, q, s.ID, s.UserID, s.CourseID, s.Filename, s.Note, s.StorageKey, s.DownloadURL, s.Status).
		Scan(&s.SubmittedAt)
}

// ListByUser returns a user's submissions, most recent first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Submission, error) {
	const q = `SELECT id, user_id, course_id, filename, COALESCE(note,''), COALESCE(storage_key,''), COALESCE(download_url,''), status, submitted_at
		FROM submissions WHERE user_id = $1 ORDER BY submitted_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Submission
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.UserID, &s.CourseID, &s.Filename, &s.Note, &s.StorageKey, &s.DownloadURL, &s.Status, &s.SubmittedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
