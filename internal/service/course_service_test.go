package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/enrollment-api/internal/models"
	appErrors "github.com/campushq/enrollment-api/pkg/errors"
)

type mockCourseRepo struct {
	courses map[string]*models.Course
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if m.courses == nil {
		m.courses = make(map[string]*models.Course)
	}
	clone := *course
	m.courses[course.ID] = &clone
	return nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var result []models.Course
	for _, c := range m.courses {
		result = append(result, *c)
	}
	return result, len(result), nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) (int, error) {
	if _, ok := m.courses[id]; !ok {
		return 0, nil
	}
	delete(m.courses, id)
	return 1, nil
}

type mockCalendarStore struct {
	byCourse    map[string][]models.Session
	calendarErr error
}

func (m *mockCalendarStore) CreateCalendar(ctx context.Context, courseID string, count int) ([]models.Session, error) {
	if m.calendarErr != nil {
		return nil, m.calendarErr
	}
	sessions := make([]models.Session, count)
	for i := range sessions {
		sessions[i] = models.Session{ID: uuid.NewString(), CourseID: courseID}
	}
	if m.byCourse == nil {
		m.byCourse = make(map[string][]models.Session)
	}
	m.byCourse[courseID] = sessions
	return sessions, nil
}

func (m *mockCalendarStore) DeleteByCourse(ctx context.Context, courseID string) (int, error) {
	count := len(m.byCourse[courseID])
	delete(m.byCourse, courseID)
	return count, nil
}

func TestCourseCreateMaterializesCalendar(t *testing.T) {
	repo := &mockCourseRepo{}
	calendar := &mockCalendarStore{}
	svc := NewCourseService(repo, calendar, nil, 20, nil, nil)

	course, sessions, err := svc.Create(context.Background(), CreateCourseRequest{
		SubjectID:  uuid.NewString(),
		SemesterID: uuid.NewString(),
	})
	require.NoError(t, err)
	assert.Equal(t, 20, course.SessionCount)
	assert.Len(t, sessions, 20)
	assert.Len(t, calendar.byCourse[course.ID], 20)
}

func TestCourseCreateSessionCountOverride(t *testing.T) {
	repo := &mockCourseRepo{}
	calendar := &mockCalendarStore{}
	svc := NewCourseService(repo, calendar, nil, 20, nil, nil)

	course, sessions, err := svc.Create(context.Background(), CreateCourseRequest{
		SubjectID:    uuid.NewString(),
		SemesterID:   uuid.NewString(),
		SessionCount: 16,
	})
	require.NoError(t, err)
	assert.Equal(t, 16, course.SessionCount)
	assert.Len(t, sessions, 16)
}

func TestCourseCreateCompensatesOnCalendarFailure(t *testing.T) {
	repo := &mockCourseRepo{}
	calendar := &mockCalendarStore{calendarErr: errors.New("insert failed")}
	svc := NewCourseService(repo, calendar, nil, 20, nil, nil)

	_, _, err := svc.Create(context.Background(), CreateCourseRequest{
		SubjectID:  uuid.NewString(),
		SemesterID: uuid.NewString(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIntegrity.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.courses)
}

func TestCourseCreateMalformedSubject(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, &mockCalendarStore{}, nil, 20, nil, nil)

	_, _, err := svc.Create(context.Background(), CreateCourseRequest{
		SubjectID:  "bogus",
		SemesterID: uuid.NewString(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidID.Code, appErrors.FromError(err).Code)
}

func TestCourseRemoveCascadesSessions(t *testing.T) {
	repo := &mockCourseRepo{}
	calendar := &mockCalendarStore{}
	svc := NewCourseService(repo, calendar, nil, 12, nil, nil)

	course, _, err := svc.Create(context.Background(), CreateCourseRequest{
		SubjectID:  uuid.NewString(),
		SemesterID: uuid.NewString(),
	})
	require.NoError(t, err)

	deletion, err := svc.Remove(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, deletion.SessionsDeleted)
	assert.Empty(t, repo.courses)
	assert.Empty(t, calendar.byCourse)
}

func TestCourseRemoveUnknown(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, &mockCalendarStore{}, nil, 20, nil, nil)

	_, err := svc.Remove(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
