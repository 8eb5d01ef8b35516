package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/enrollment-api/internal/models"
	"github.com/campushq/enrollment-api/internal/service"
	"github.com/campushq/enrollment-api/pkg/jobs"
	"github.com/campushq/enrollment-api/pkg/response"
)

type stubAttendanceRepo struct {
	records map[string]*models.Attendance
}

func (s *stubAttendanceRepo) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	if a, ok := s.records[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubAttendanceRepo) FindByEnrollment(ctx context.Context, enrollmentID string) ([]models.Attendance, error) {
	return nil, nil
}

func (s *stubAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	return nil, 0, nil
}

func (s *stubAttendanceRepo) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus) (*models.Attendance, error) {
	a, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	a.Status = status
	return a, nil
}

func (s *stubAttendanceRepo) AbsenceCounts(ctx context.Context, enrollmentID string) (int, int, error) {
	return 0, 0, nil
}

type stubQueue struct {
	jobs []jobs.Job
}

func (s *stubQueue) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func newAttendanceRouter(repo *stubAttendanceRepo, queue *stubQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewAttendanceService(repo, queue, nil, nil)
	h := NewAttendanceHandler(svc)
	r := gin.New()
	r.PATCH("/attendances/:id", h.Mark)
	r.GET("/attendances/:id", h.Get)
	return r
}

func TestAttendanceMarkEndpoint(t *testing.T) {
	attendanceID := uuid.NewString()
	repo := &stubAttendanceRepo{records: map[string]*models.Attendance{
		attendanceID: {ID: attendanceID, EnrollmentID: uuid.NewString(), Status: models.AttendanceStatusNotYet},
	}}
	queue := &stubQueue{}
	router := newAttendanceRouter(repo, queue)

	body, _ := json.Marshal(map[string]string{"status": "absent"})
	req := httptest.NewRequest(http.MethodPatch, "/attendances/"+attendanceID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Nil(t, envelope.Error)
	assert.Len(t, queue.jobs, 1)
	assert.Equal(t, models.AttendanceStatusAbsent, repo.records[attendanceID].Status)
}

func TestAttendanceMarkEndpointRejectsUnknownStatus(t *testing.T) {
	attendanceID := uuid.NewString()
	repo := &stubAttendanceRepo{records: map[string]*models.Attendance{
		attendanceID: {ID: attendanceID, Status: models.AttendanceStatusNotYet},
	}}
	router := newAttendanceRouter(repo, &stubQueue{})

	body, _ := json.Marshal(map[string]string{"status": "LATE"})
	req := httptest.NewRequest(http.MethodPatch, "/attendances/"+attendanceID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.AttendanceStatusNotYet, repo.records[attendanceID].Status)
}

func TestAttendanceGetEndpointNotFound(t *testing.T) {
	router := newAttendanceRouter(&stubAttendanceRepo{records: map[string]*models.Attendance{}}, &stubQueue{})

	req := httptest.NewRequest(http.MethodGet, "/attendances/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
