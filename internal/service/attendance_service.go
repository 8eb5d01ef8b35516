package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/enrollment-api/internal/models"
	appErrors "github.com/campushq/enrollment-api/pkg/errors"
	"github.com/campushq/enrollment-api/pkg/jobs"
)

type attendanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	FindByEnrollment(ctx context.Context, enrollmentID string) ([]models.Attendance, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus) (*models.Attendance, error)
	AbsenceCounts(ctx context.Context, enrollmentID string) (absent int, total int, err error)
}

type recomputeQueue interface {
	Enqueue(job jobs.Job) error
}

// RecomputeJobType tags the queued job that re-derives an enrollment's status
// after an attendance change.
const RecomputeJobType = "enrollment.recompute"

// AttendanceService handles attendance marking and the absenteeism aggregate.
// Marking a status enqueues an asynchronous status recomputation for the
// owning enrollment.
type AttendanceService struct {
	repo   attendanceRepository
	queue  recomputeQueue
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, queue recomputeQueue, cache cacheInvalidator, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, queue: queue, cache: cache, logger: logger}
}

// Get returns one attendance record.
func (s *AttendanceService) Get(ctx context.Context, id string) (*models.Attendance, error) {
	if err := validateIdentifier(id); err != nil {
		return nil, err
	}
	attendance, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("attendance %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return attendance, nil
}

// ListByEnrollment returns every attendance row of one enrollment.
func (s *AttendanceService) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Attendance, error) {
	if err := validateIdentifier(enrollmentID); err != nil {
		return nil, err
	}
	attendances, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendances")
	}
	return attendances, nil
}

// List returns attendance records with pagination metadata.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", filter.Status))
	}
	attendances, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendances")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return attendances, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkStatus transitions one attendance record and enqueues a status
// recomputation for the owning enrollment. The attendance write succeeds
// independently of the recomputation; the queue retries a failed derivation.
func (s *AttendanceService) MarkStatus(ctx context.Context, id string, status models.AttendanceStatus) (*models.Attendance, error) {
	if err := validateIdentifier(id); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", status))
	}

	attendance, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("attendance %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}

	if s.queue != nil {
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    RecomputeJobType,
			Payload: attendance.EnrollmentID,
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Error("failed to enqueue status recomputation",
				zap.String("enrollment_id", attendance.EnrollmentID),
				zap.Error(err),
			)
		}
	}

	// Enrollment responses embed attendance aggregates, so both families go
	// stale on a mark.
	for _, pattern := range []string{"attendances:*", "enrollments:*"} {
		if s.cache == nil {
			break
		}
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
	s.logger.Info("attendance marked",
		zap.String("attendance_id", attendance.ID),
		zap.String("enrollment_id", attendance.EnrollmentID),
		zap.String("status", string(status)),
	)
	return attendance, nil
}

// AbsenteeismReport computes one enrollment's absence rate. An enrollment with
// no attendance rows has a rate of zero and is never over the threshold.
func (s *AttendanceService) AbsenteeismReport(ctx context.Context, enrollmentID string) (*models.AbsenteeismReport, error) {
	if err := validateIdentifier(enrollmentID); err != nil {
		return nil, err
	}
	absent, total, err := s.repo.AbsenceCounts(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count absences")
	}
	report := &models.AbsenteeismReport{
		EnrollmentID: enrollmentID,
		AbsentCount:  absent,
		TotalCount:   total,
	}
	if total > 0 {
		report.Rate = float64(absent) / float64(total)
		report.IsOverThreshold = report.Rate >= AbsenteeismThreshold
	}
	return report, nil
}
