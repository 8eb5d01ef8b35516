package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/enrollment-api/internal/models"
)

// SessionRepository handles persistence of course session calendars.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateCalendar bulk-inserts a fixed-size calendar for a course. Sessions are
// titled "Session No 1".."Session No N" and share a placeholder start/end
// equal to creation time; staff adjust the real slots later. The insert runs
// in a single transaction so a partial calendar is never observable.
func (r *SessionRepository) CreateCalendar(ctx context.Context, courseID string, count int) ([]models.Session, error) {
	if count <= 0 {
		return nil, fmt.Errorf("create calendar: invalid session count %d", count)
	}

	now := time.Now().UTC()
	sessions := make([]models.Session, count)
	for i := range sessions {
		sessions[i] = models.Session{
			ID:        uuid.NewString(),
			CourseID:  courseID,
			Title:     fmt.Sprintf("Session No %d", i+1),
			StartTime: now,
			EndTime:   now,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create calendar: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO sessions (id, course_id, title, start_time, end_time, created_at, updated_at)
        VALUES (:id, :course_id, :title, :start_time, :end_time, :created_at, :updated_at)`
	for i := range sessions {
		if _, err = sqlx.NamedExecContext(ctx, tx, query, &sessions[i]); err != nil {
			return nil, fmt.Errorf("insert calendar session %d: %w", i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create calendar: %w", err)
	}
	return sessions, nil
}

// FindByCourse returns all sessions belonging to a course in calendar order.
func (r *SessionRepository) FindByCourse(ctx context.Context, courseID string) ([]models.Session, error) {
	const query = `SELECT id, course_id, title, start_time, end_time, created_at, updated_at
        FROM sessions WHERE course_id = $1 ORDER BY created_at, title`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, courseID); err != nil {
		return nil, fmt.Errorf("find sessions by course: %w", err)
	}
	return sessions, nil
}

// FindByID returns a single session.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, course_id, title, start_time, end_time, created_at, updated_at
        FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Update persists edits to title and time slots of one session.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET title = :title, start_time = :start_time, end_time = :end_time, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByCourse removes every session of a course. Idempotent; returns the
// number of deleted rows.
func (r *SessionRepository) DeleteByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `DELETE FROM sessions WHERE course_id = $1`
	res, err := r.db.ExecContext(ctx, query, courseID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions by course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted sessions: %w", err)
	}
	return int(affected), nil
}
