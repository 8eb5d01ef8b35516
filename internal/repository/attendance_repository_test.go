package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/enrollment-api/internal/models"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryBulkCreate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	sessionIDs := []string{"ses-1", "ses-2", "ses-3"}
	mock.ExpectBegin()
	for range sessionIDs {
		mock.ExpectExec("INSERT INTO attendances").
			WithArgs(sqlmock.AnyArg(), "enr-1", sqlmock.AnyArg(), string(models.AttendanceStatusNotYet), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	records, err := repo.BulkCreate(context.Background(), "enr-1", sessionIDs)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, "enr-1", record.EnrollmentID)
		assert.Equal(t, sessionIDs[i], record.SessionID)
		assert.Equal(t, models.AttendanceStatusNotYet, record.Status)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkCreateRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendances").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendances").
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err := repo.BulkCreate(context.Background(), "enr-1", []string{"ses-1", "ses-2"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkCreateEmptyCalendar(t *testing.T) {
	db, _, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	records, err := repo.BulkCreate(context.Background(), "enr-1", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAttendanceRepositoryUpdateStatusReturnsRow(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "session_id", "status", "created_at", "updated_at"}).
		AddRow("att-1", "enr-1", "ses-1", "ABSENT", time.Now(), time.Now())
	mock.ExpectQuery("UPDATE attendances SET status").
		WithArgs("att-1", string(models.AttendanceStatusAbsent), sqlmock.AnyArg()).
		WillReturnRows(rows)

	attendance, err := repo.UpdateStatus(context.Background(), "att-1", models.AttendanceStatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusAbsent, attendance.Status)
	assert.Equal(t, "enr-1", attendance.EnrollmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAbsenceCounts(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"absent", "total"}).AddRow(4, 20)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FILTER (WHERE status = $2) AS absent, COUNT(*) AS total\n        FROM attendances WHERE enrollment_id = $1")).
		WithArgs("enr-1", models.AttendanceStatusAbsent).
		WillReturnRows(rows)

	absent, total, err := repo.AbsenceCounts(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 4, absent)
	assert.Equal(t, 20, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteByEnrollment(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendances WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 20))

	deleted, err := repo.DeleteByEnrollment(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 20, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
