package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/enrollment-api/internal/models"
)

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "student-1", "course-1", sqlmock.AnyArg(), sqlmock.AnyArg(), nil, string(models.EnrollmentStatusInProgress), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "student-1", CourseID: "course-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusInProgress, enrollment.Status)
	assert.False(t, enrollment.EnrollmentDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByIDScansGrades(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	grades := []byte(`[{"type":"assignment","score":7.5,"weight":0.25}]`)
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "enrollment_date", "grades", "final_grade", "status", "created_at", "updated_at"}).
		AddRow("enr-1", "student-1", "course-1", time.Now(), grades, nil, "IN_PROGRESS", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, course_id, enrollment_date, grades, final_grade, status, created_at, updated_at\n        FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByID(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, enrollment.Grades, 1)
	assert.Equal(t, models.GradeTypeAssignment, enrollment.Grades[0].Type)
	require.NotNil(t, enrollment.Grades[0].Score)
	assert.InDelta(t, 7.5, *enrollment.Grades[0].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "enrollment_date", "grades", "final_grade", "status", "created_at", "updated_at"}).
		AddRow("enr-1", "student-1", "course-1", time.Now(), []byte(`[]`), 8.25, "PASSED", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND status = $2 ORDER BY enrollment_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("student-1", models.EnrollmentStatusPassed).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND status = $2")).
		WithArgs("student-1", models.EnrollmentStatusPassed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		StudentID: "student-1",
		Status:    models.EnrollmentStatusPassed,
	})
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateGrades(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET grades = $2, final_grade = $3, status = $4, updated_at = $5 WHERE id = $1")).
		WithArgs("enr-1", sqlmock.AnyArg(), sqlmock.AnyArg(), string(models.EnrollmentStatusPassed), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	final := 8.0
	grades := models.GradeList{{Type: models.GradeTypeFinalExam, Score: &final, Weight: 1}}
	require.NoError(t, repo.UpdateGrades(context.Background(), "enr-1", grades, &final, models.EnrollmentStatusPassed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("PASSED", 2).
		AddRow("IN_PROGRESS", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM enrollments WHERE student_id = $1 GROUP BY status")).
		WithArgs("student-1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Len(t, counts, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteReportsAffected(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
