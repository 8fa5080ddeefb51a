package discussions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-edu/backend/internal/models"
)

// Repository handles post persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a discussions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, p *models.Post) error {
	const q = `INSERT INTO posts (id, scope, author, author_id, content)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, p.Scope, p.Author, p.AuthorID, p.Content).
		Scan(&p.ID, &p.CreatedAt)
}

// GetPost returns a post by scope and ID, or nil when absent.
func (r *Repository) GetPost(ctx context.Context, scope string, id uuid.UUID) (*models.Post, error) {
	const q = `SELECT id, scope, author, author_id, content, created_at
		FROM posts WHERE scope = $1 AND id = $2`
	var p models.Post
	err := r.pool.QueryRow(ctx, q, scope, id).
		Scan(&p.ID, &p.Scope, &p.Author, &p.AuthorID, &p.Content, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListPosts returns the most recent posts for a scope, newest first. Ordering
// is by created_at regardless of insertion order.
func (r *Repository) ListPosts(ctx context.Context, scope string, limit int) ([]models.Post, error) {
	const q = `SELECT id, scope, author, author_id, content, created_at
		FROM posts WHERE scope = $1 ORDER BY created_at DESC, id LIMIT $2`
	rows, err := r.pool.Query(ctx, q, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.Scope, &p.Author, &p.AuthorID, &p.Content, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// DeletePost removes a post.
func (r *Repository) DeletePost(ctx context.Context, scope string, id uuid.UUID) error {
	const q = `DELETE FROM posts WHERE scope = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, q, scope, id)
	return err
}
