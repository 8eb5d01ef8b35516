package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/enrollment-api/internal/models"
	appErrors "github.com/campushq/enrollment-api/pkg/errors"
)

type sessionRepository interface {
	FindByCourse(ctx context.Context, courseID string) ([]models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

// UpdateSessionRequest describes the session patch payload. Absent fields keep
// their stored values.
type UpdateSessionRequest struct {
	Title     *string    `json:"title" validate:"omitempty,min=1,max=200"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// SessionService exposes the session calendar: listing a course's sessions and
// adjusting the placeholder titles and time slots staff refine after creation.
type SessionService struct {
	repo      sessionRepository
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs SessionService.
func NewSessionService(repo sessionRepository, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// ListByCourse returns a course's sessions in calendar order.
func (s *SessionService) ListByCourse(ctx context.Context, courseID string) ([]models.Session, error) {
	if err := validateIdentifier(courseID); err != nil {
		return nil, err
	}
	sessions, err := s.repo.FindByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Update patches one session's title and time slots.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.Session, error) {
	if err := validateIdentifier(id); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session patch")
	}

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if req.Title != nil {
		session.Title = *req.Title
	}
	if req.StartTime != nil {
		session.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		session.EndTime = *req.EndTime
	}
	if session.EndTime.Before(session.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session end time precedes start time")
	}

	if err := s.repo.Update(ctx, session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}

	// Course responses embed the calendar, so both families go stale.
	for _, pattern := range []string{"sessions:*", "courses:*"} {
		if s.cache == nil {
			break
		}
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
	return session, nil
}
