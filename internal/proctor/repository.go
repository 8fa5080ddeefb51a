package proctor

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-edu/backend/internal/models"
)

// Repository handles proctor session and event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a proctor repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts a new active session with zeroed counters. Multiple
// simultaneous sessions per user are allowed; this is a signal collector,
// not a lock.
func (r *Repository) CreateSession(ctx context.Context, userID uuid.UUID, examID string) (*models.ProctorSession, error) {
	const q = `INSERT INTO proctor_sessions (id, user_id, exam_id, status)
		VALUES (gen_random_uuid(), $1, NULLIF($2,''), 'active')
		RETURNING id, user_id, COALESCE(exam_id,''), status, started_at, ended_at, last_heartbeat_at, heartbeats, suspicious`
	var s models.ProctorSession
	err := r.pool.QueryRow(ctx, q, userID, examID).
		Scan(&s.ID, &s.UserID, &s.ExamID, &s.Status, &s.StartedAt, &s.EndedAt, &s.LastHeartbeatAt, &s.Heartbeats, &s.Suspicious)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession returns a session by ID, or nil when absent.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.ProctorSession, error) {
	const q = `SELECT id, user_id, COALESCE(exam_id,''), status, started_at, ended_at, last_heartbeat_at, heartbeats, suspicious
		FROM proctor_sessions WHERE id = $1`
	var s models.ProctorSession
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&s.ID, &s.UserID, &s.ExamID, &s.Status, &s.StartedAt, &s.EndedAt, &s.LastHeartbeatAt, &s.Heartbeats, &s.Suspicious)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// RecordHeartbeat appends one event row and bumps the session counters in
// the same transaction. The counter update is a SQL-side increment, so
// concurrent heartbeats for the same session never lose updates.
func (r *Repository) RecordHeartbeat(ctx context.Context, sessionID uuid.UUID, sig Signals, suspicious int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertEvent = `INSERT INTO proctor_events (id, session_id, faces, face_present, multiple_faces, tab_hidden, away_seconds, suspicious)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, insertEvent, sessionID, sig.Faces, sig.FacePresent, sig.MultipleFaces, sig.TabHidden, sig.AwaySeconds, suspicious); err != nil {
		return err
	}

	const bumpCounters = `UPDATE proctor_sessions
		SET heartbeats = heartbeats + 1, suspicious = suspicious + $2, last_heartbeat_at = NOW()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, bumpCounters, sessionID, suspicious); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// EndSession marks a session ended. Repeat calls re-stamp ended_at; ending
// an already-ended session is not an error.
func (r *Repository) EndSession(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE proctor_sessions SET status = 'ended', ended_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// ListEvents returns the audit trail for a session, oldest first.
func (r *Repository) ListEvents(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ProctorEvent, error) {
	const q = `SELECT id, session_id, faces, face_present, multiple_faces, tab_hidden, away_seconds, suspicious, at
		FROM proctor_events WHERE session_id = $1 ORDER BY at LIMIT $2`
	rows, err := r.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []models.ProctorEvent
	for rows.Next() {
		var e models.ProctorEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Faces, &e.FacePresent, &e.MultipleFaces, &e.TabHidden, &e.AwaySeconds, &e.Suspicious, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListSessionsByExam returns sessions for an exam, most recent first (for
// the instructor monitor view). Sessions never ended by the client stay
// active and remain visible here.
func (r *Repository) ListSessionsByExam(ctx context.Context, examID string, limit int) ([]models.ProctorSession, error) {
	const q = `SELECT id, user_id, COALESCE(exam_id,''), status, started_at, ended_at, last_heartbeat_at, heartbeats, suspicious
		FROM proctor_sessions WHERE exam_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, examID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []models.ProctorSession
	for rows.Next() {
		var s models.ProctorSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.ExamID, &s.Status, &s.StartedAt, &s.EndedAt, &s.LastHeartbeatAt, &s.Heartbeats, &s.Suspicious); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
