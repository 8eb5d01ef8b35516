package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/enrollment-api/internal/models"
	appErrors "github.com/campushq/enrollment-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Delete(ctx context.Context, id string) (int, error)
}

type sessionCalendarStore interface {
	CreateCalendar(ctx context.Context, courseID string, count int) ([]models.Session, error)
	DeleteByCourse(ctx context.Context, courseID string) (int, error)
}

// CreateCourseRequest describes the course creation payload. SessionCount
// overrides the configured calendar size when given.
type CreateCourseRequest struct {
	SubjectID    string `json:"subjectId" validate:"required"`
	SemesterID   string `json:"semesterId" validate:"required"`
	SessionCount int    `json:"sessionCount" validate:"omitempty,gte=1"`
}

// CourseService manages course offerings and their session calendars. A course
// and its calendar are created together: a course without its full calendar is
// never left behind.
type CourseService struct {
	repo         courseRepository
	sessions     sessionCalendarStore
	cache        cacheInvalidator
	sessionCount int
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCourseService constructs CourseService. sessionCount is the calendar size
// stamped onto every new course.
func NewCourseService(repo courseRepository, sessions sessionCalendarStore, cache cacheInvalidator, sessionCount int, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if sessionCount <= 0 {
		sessionCount = 20
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		repo:         repo,
		sessions:     sessions,
		cache:        cache,
		sessionCount: sessionCount,
		validator:    validate,
		logger:       logger,
	}
}

// Create persists a course offering and materializes its session calendar.
// When the calendar cannot be fully created the course is deleted again and
// the operation fails as a whole.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, []models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := validateIdentifier(req.SubjectID); err != nil {
		return nil, nil, err
	}
	if err := validateIdentifier(req.SemesterID); err != nil {
		return nil, nil, err
	}

	sessionCount := s.sessionCount
	if req.SessionCount > 0 {
		sessionCount = req.SessionCount
	}

	course := &models.Course{
		SubjectID:    req.SubjectID,
		SemesterID:   req.SemesterID,
		SessionCount: sessionCount,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	sessions, err := s.sessions.CreateCalendar(ctx, course.ID, sessionCount)
	if err != nil {
		s.compensateCreate(ctx, course.ID)
		return nil, nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "failed to materialize session calendar")
	}
	if len(sessions) != sessionCount {
		s.compensateCreate(ctx, course.ID)
		return nil, nil, appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("expected %d sessions for course %s, inserted %d", sessionCount, course.ID, len(sessions)))
	}

	s.invalidate(ctx, "courses:*", "sessions:*")
	s.logger.Info("course created",
		zap.String("course_id", course.ID),
		zap.String("subject_id", course.SubjectID),
		zap.Int("sessions", len(sessions)),
	)
	return course, sessions, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	if err := validateIdentifier(id); err != nil {
		return nil, err
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Remove deletes a course and cascades its session calendar, reporting the
// number of removed sessions.
func (s *CourseService) Remove(ctx context.Context, id string) (*models.CourseDeletion, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	if deleted == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", id))
	}
	sessionsDeleted, err := s.sessions.DeleteByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course sessions")
	}

	s.invalidate(ctx, "courses:*", "sessions:*")
	s.logger.Info("course removed",
		zap.String("course_id", id),
		zap.Int("sessions_deleted", sessionsDeleted),
	)
	return &models.CourseDeletion{Course: *course, SessionsDeleted: sessionsDeleted}, nil
}

// compensateCreate rolls back a freshly created course whose calendar
// materialization failed.
func (s *CourseService) compensateCreate(ctx context.Context, courseID string) {
	if _, err := s.sessions.DeleteByCourse(ctx, courseID); err != nil {
		s.logger.Error("compensation failed deleting sessions", zap.String("course_id", courseID), zap.Error(err))
	}
	if _, err := s.repo.Delete(ctx, courseID); err != nil {
		s.logger.Error("compensation failed deleting course", zap.String("course_id", courseID), zap.Error(err))
	}
}

func (s *CourseService) invalidate(ctx context.Context, patterns ...string) {
	if s.cache == nil {
		return
	}
	for _, pattern := range patterns {
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}
