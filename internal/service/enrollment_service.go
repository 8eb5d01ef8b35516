package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/enrollment-api/internal/models"
	appErrors "github.com/campushq/enrollment-api/pkg/errors"
	"github.com/campushq/enrollment-api/pkg/export"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	UpdateGrades(ctx context.Context, id string, grades models.GradeList, finalGrade *float64, status models.EnrollmentStatus) error
	UpdateDerived(ctx context.Context, id string, status models.EnrollmentStatus, finalGrade *float64) error
	Delete(ctx context.Context, id string) (int, error)
	CountByStatus(ctx context.Context, studentID string) ([]models.StatusCount, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type sessionCalendarReader interface {
	FindByCourse(ctx context.Context, courseID string) ([]models.Session, error)
}

type attendanceStore interface {
	BulkCreate(ctx context.Context, enrollmentID string, sessionIDs []string) ([]models.Attendance, error)
	AbsenceCounts(ctx context.Context, enrollmentID string) (absent int, total int, err error)
	DeleteByEnrollment(ctx context.Context, enrollmentID string) (int, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// GradeInput is one weighted component score within a request payload.
type GradeInput struct {
	Type   string   `json:"type" validate:"required"`
	Score  *float64 `json:"score" validate:"omitempty,gte=0"`
	Weight float64  `json:"weight" validate:"gte=0,lte=1"`
}

// CreateEnrollmentRequest describes the enrollment creation payload.
type CreateEnrollmentRequest struct {
	StudentID string       `json:"studentId" validate:"required"`
	CourseID  string       `json:"courseId" validate:"required"`
	Grades    []GradeInput `json:"grade" validate:"omitempty,dive"`
}

// UpdateEnrollmentRequest describes the enrollment patch payload. A non-nil
// grade array replaces the stored one wholesale.
type UpdateEnrollmentRequest struct {
	Grades *[]GradeInput `json:"grade" validate:"omitempty,dive"`
}

// EnrollmentService owns the enrollment lifecycle: creation with attendance
// materialization, wholesale grade updates and the status recomputation
// invoked from both the grade and the attendance triggers.
type EnrollmentService struct {
	repo        enrollmentRepository
	courses     courseReader
	sessions    sessionCalendarReader
	attendances attendanceStore
	cache       cacheInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, sessions sessionCalendarReader, attendances attendanceStore, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		courses:     courses,
		sessions:    sessions,
		attendances: attendances,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// Create registers a student in a course and materializes the full attendance
// set for the course's calendar. An enrollment must never be observable
// without its complete attendance set: when materialization fails or yields
// the wrong row count, the just-created enrollment is deleted again and the
// operation fails as a whole.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if err := validateIdentifier(req.StudentID); err != nil {
		return nil, err
	}
	if err := validateIdentifier(req.CourseID); err != nil {
		return nil, err
	}
	grades, err := convertGrades(req.Grades)
	if err != nil {
		return nil, err
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", req.CourseID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Grades:    grades,
		Status:    models.EnrollmentStatusInProgress,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	sessions, err := s.sessions.FindByCourse(ctx, req.CourseID)
	if err != nil {
		s.compensateCreate(ctx, enrollment.ID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course sessions")
	}
	sessionIDs := make([]string, len(sessions))
	for i, session := range sessions {
		sessionIDs[i] = session.ID
	}

	attendances, err := s.attendances.BulkCreate(ctx, enrollment.ID, sessionIDs)
	if err != nil {
		s.compensateCreate(ctx, enrollment.ID)
		return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "failed to materialize attendance set")
	}
	if len(attendances) != len(sessionIDs) {
		s.compensateCreate(ctx, enrollment.ID)
		return nil, appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("expected %d attendance rows for enrollment %s, inserted %d", len(sessionIDs), enrollment.ID, len(attendances)))
	}

	// Grades may already be complete at creation time. The fresh attendance
	// set is all NOT_YET, so the absenteeism veto cannot apply here.
	result := Recompute(enrollment.Grades, false)
	if result.Status != enrollment.Status || result.FinalGrade != nil {
		if err := s.repo.UpdateDerived(ctx, enrollment.ID, result.Status, result.FinalGrade); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist enrollment status")
		}
	}
	enrollment.Status = result.Status
	enrollment.FinalGrade = result.FinalGrade

	s.invalidate(ctx, "enrollments:*", "attendances:*")
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("course_id", enrollment.CourseID),
		zap.Int("attendances", len(attendances)),
	)
	return enrollment, nil
}

// Get returns one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	if err := validateIdentifier(id); err != nil {
		return nil, err
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enrollment status %q", filter.Status))
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update applies a patch. A present grade array replaces the stored one
// wholesale, then status and final grade are recomputed from current state.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment patch")
	}
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Grades != nil {
		grades, err := convertGrades(*req.Grades)
		if err != nil {
			return nil, err
		}
		enrollment.Grades = grades
	}

	over, err := s.absenteeismOverThreshold(ctx, id)
	if err != nil {
		return nil, err
	}
	result := Recompute(enrollment.Grades, over)
	if err := s.repo.UpdateGrades(ctx, id, enrollment.Grades, result.FinalGrade, result.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	enrollment.Status = result.Status
	enrollment.FinalGrade = result.FinalGrade

	s.invalidate(ctx, "enrollments:*")
	return enrollment, nil
}

// RecomputeAfterAttendanceChange reloads the enrollment and re-derives status
// and final grade from the current grade set and absenteeism rate. It runs
// asynchronously after every attendance status change and persists only when
// the derived state actually moved. Concurrent attendance updates may race
// here; each run reads aggregate state at its own execution time and the last
// write wins, which is accepted eventual consistency.
func (s *EnrollmentService) RecomputeAfterAttendanceChange(ctx context.Context, enrollmentID string) error {
	enrollment, err := s.Get(ctx, enrollmentID)
	if err != nil {
		return err
	}
	over, err := s.absenteeismOverThreshold(ctx, enrollmentID)
	if err != nil {
		return err
	}
	result := Recompute(enrollment.Grades, over)
	if result.Status == enrollment.Status && floatEqual(result.FinalGrade, enrollment.FinalGrade) {
		return nil
	}
	if err := s.repo.UpdateDerived(ctx, enrollmentID, result.Status, result.FinalGrade); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist recomputed status")
	}
	s.invalidate(ctx, "enrollments:*")
	s.logger.Info("enrollment status recomputed",
		zap.String("enrollment_id", enrollmentID),
		zap.String("from", string(enrollment.Status)),
		zap.String("to", string(result.Status)),
		zap.Bool("absenteeism_veto", over),
	)
	return nil
}

// Remove deletes an enrollment and cascades its attendance rows, reporting
// the cascade count so callers can verify it.
func (s *EnrollmentService) Remove(ctx context.Context, id string) (*models.EnrollmentDeletion, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	if deleted == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment %s not found", id))
	}
	attendancesDeleted, err := s.attendances.DeleteByEnrollment(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment attendances")
	}

	s.invalidate(ctx, "enrollments:*", "attendances:*")
	s.logger.Info("enrollment removed",
		zap.String("enrollment_id", id),
		zap.Int("attendances_deleted", attendancesDeleted),
	)
	return &models.EnrollmentDeletion{Enrollment: *enrollment, AttendancesDeleted: attendancesDeleted}, nil
}

// GroupByStatus summarises one student's enrollments per status. The result
// always contains exactly the three statuses, zero-filled, so the counts sum
// to the student's total enrollment count.
func (s *EnrollmentService) GroupByStatus(ctx context.Context, studentID string) ([]models.StatusCount, error) {
	if err := validateIdentifier(studentID); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to group enrollments")
	}
	byStatus := make(map[models.EnrollmentStatus]int, len(counts))
	for _, row := range counts {
		byStatus[row.Status] = row.Count
	}
	result := make([]models.StatusCount, 0, 3)
	for _, status := range models.AllEnrollmentStatuses() {
		result = append(result, models.StatusCount{Status: status, Count: byStatus[status]})
	}
	return result, nil
}

// Transcript renders an enrollment's grade components and derived summary into
// a tabular dataset for CSV or PDF export.
func (s *EnrollmentService) Transcript(ctx context.Context, id string) (export.Dataset, string, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return export.Dataset{}, "", err
	}
	absent, total, err := s.attendances.AbsenceCounts(ctx, id)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance counts")
	}

	headers := []string{"Component", "Score", "Weight"}
	rows := make([]map[string]string, 0, len(enrollment.Grades)+3)
	for _, grade := range enrollment.Grades {
		score := "-"
		if grade.Score != nil {
			score = fmt.Sprintf("%.2f", *grade.Score)
		}
		rows = append(rows, map[string]string{
			"Component": string(grade.Type),
			"Score":     score,
			"Weight":    fmt.Sprintf("%.2f", grade.Weight),
		})
	}
	finalGrade := "-"
	if enrollment.FinalGrade != nil {
		finalGrade = fmt.Sprintf("%.2f", *enrollment.FinalGrade)
	}
	rows = append(rows,
		map[string]string{"Component": "final grade", "Score": finalGrade, "Weight": ""},
		map[string]string{"Component": "absences", "Score": fmt.Sprintf("%d/%d", absent, total), "Weight": ""},
		map[string]string{"Component": "status", "Score": string(enrollment.Status), "Weight": ""},
	)

	title := fmt.Sprintf("Enrollment %s", enrollment.ID)
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}

func (s *EnrollmentService) absenteeismOverThreshold(ctx context.Context, enrollmentID string) (bool, error) {
	absent, total, err := s.attendances.AbsenceCounts(ctx, enrollmentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance counts")
	}
	if total == 0 {
		return false, nil
	}
	return float64(absent)/float64(total) >= AbsenteeismThreshold, nil
}

// compensateCreate rolls back a freshly created enrollment whose attendance
// materialization failed, so no enrollment exists without its attendance set.
func (s *EnrollmentService) compensateCreate(ctx context.Context, enrollmentID string) {
	if _, err := s.attendances.DeleteByEnrollment(ctx, enrollmentID); err != nil {
		s.logger.Error("compensation failed deleting attendances", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
	if _, err := s.repo.Delete(ctx, enrollmentID); err != nil {
		s.logger.Error("compensation failed deleting enrollment", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}

func (s *EnrollmentService) invalidate(ctx context.Context, patterns ...string) {
	if s.cache == nil {
		return
	}
	for _, pattern := range patterns {
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

func validateIdentifier(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidID, fmt.Sprintf("identifier %q is malformed", id))
	}
	return nil
}

func convertGrades(inputs []GradeInput) (models.GradeList, error) {
	grades := make(models.GradeList, 0, len(inputs))
	seen := make(map[models.GradeType]bool, len(inputs))
	for _, input := range inputs {
		gradeType := models.GradeType(input.Type)
		if !gradeType.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown grade type %q", input.Type))
		}
		if seen[gradeType] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate grade type %q", input.Type))
		}
		seen[gradeType] = true
		if input.Score != nil && *input.Score < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("negative score for %q", input.Type))
		}
		grades = append(grades, models.Grade{Type: gradeType, Score: input.Score, Weight: input.Weight})
	}
	return grades, nil
}

func floatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
