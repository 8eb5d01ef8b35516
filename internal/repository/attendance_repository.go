package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/enrollment-api/internal/models"
)

// AttendanceRepository handles persistence of attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// BulkCreate inserts one NOT_YET attendance row per session inside a single
// transaction. The (enrollment_id, session_id) unique constraint rejects
// duplicates, and the transaction guarantees all-or-nothing so a partial
// attendance set is never observable.
func (r *AttendanceRepository) BulkCreate(ctx context.Context, enrollmentID string, sessionIDs []string) ([]models.Attendance, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	records := make([]models.Attendance, len(sessionIDs))
	for i, sessionID := range sessionIDs {
		records[i] = models.Attendance{
			ID:           uuid.NewString(),
			EnrollmentID: enrollmentID,
			SessionID:    sessionID,
			Status:       models.AttendanceStatusNotYet,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk create attendances: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO attendances (id, enrollment_id, session_id, status, created_at, updated_at)
        VALUES (:id, :enrollment_id, :session_id, :status, :created_at, :updated_at)`
	for i := range records {
		if _, err = sqlx.NamedExecContext(ctx, tx, query, &records[i]); err != nil {
			return nil, fmt.Errorf("bulk insert attendance for session %s: %w", records[i].SessionID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk create attendances: %w", err)
	}
	return records, nil
}

// FindByID returns a single attendance record.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	const query = `SELECT id, enrollment_id, session_id, status, created_at, updated_at FROM attendances WHERE id = $1`
	var attendance models.Attendance
	if err := r.db.GetContext(ctx, &attendance, query, id); err != nil {
		return nil, err
	}
	return &attendance, nil
}

// FindByEnrollment returns every attendance row of one enrollment.
func (r *AttendanceRepository) FindByEnrollment(ctx context.Context, enrollmentID string) ([]models.Attendance, error) {
	const query = `SELECT id, enrollment_id, session_id, status, created_at, updated_at
        FROM attendances WHERE enrollment_id = $1 ORDER BY created_at`
	var attendances []models.Attendance
	if err := r.db.SelectContext(ctx, &attendances, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("find attendances by enrollment: %w", err)
	}
	return attendances, nil
}

// List returns attendance records filtered by the provided criteria.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, enrollment_id, session_id, status, created_at, updated_at
        FROM attendances%s ORDER BY created_at %s LIMIT %d OFFSET %d`, clause, order, size, offset)

	var attendances []models.Attendance
	if err := r.db.SelectContext(ctx, &attendances, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendances: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM attendances" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendances: %w", err)
	}
	return attendances, total, nil
}

// UpdateStatus updates one row's status and returns the stored record.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus) (*models.Attendance, error) {
	const query = `UPDATE attendances SET status = $2, updated_at = $3 WHERE id = $1
        RETURNING id, enrollment_id, session_id, status, created_at, updated_at`
	var attendance models.Attendance
	if err := r.db.GetContext(ctx, &attendance, query, id, status, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &attendance, nil
}

// AbsenceCounts returns the absent and total row counts for one enrollment.
func (r *AttendanceRepository) AbsenceCounts(ctx context.Context, enrollmentID string) (absent int, total int, err error) {
	const query = `SELECT COUNT(*) FILTER (WHERE status = $2) AS absent, COUNT(*) AS total
        FROM attendances WHERE enrollment_id = $1`
	row := struct {
		Absent int `db:"absent"`
		Total  int `db:"total"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, enrollmentID, models.AttendanceStatusAbsent); err != nil {
		return 0, 0, fmt.Errorf("count absences: %w", err)
	}
	return row.Absent, row.Total, nil
}

// DeleteByEnrollment removes every attendance row of one enrollment,
// returning the number of deleted rows.
func (r *AttendanceRepository) DeleteByEnrollment(ctx context.Context, enrollmentID string) (int, error) {
	const query = `DELETE FROM attendances WHERE enrollment_id = $1`
	res, err := r.db.ExecContext(ctx, query, enrollmentID)
	if err != nil {
		return 0, fmt.Errorf("delete attendances by enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted attendances: %w", err)
	}
	return int(affected), nil
}
