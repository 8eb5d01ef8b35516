package models

import "time"

// AttendanceStatus represents the status of a per-session attendance record.
type AttendanceStatus string

// Possible attendance statuses.
const (
	AttendanceStatusNotYet   AttendanceStatus = "NOT_YET"
	AttendanceStatusAttended AttendanceStatus = "ATTENDED"
	AttendanceStatusAbsent   AttendanceStatus = "ABSENT"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusNotYet, AttendanceStatusAttended, AttendanceStatusAbsent:
		return true
	default:
		return false
	}
}

// Attendance ties one enrollment to one course session. Exactly one record
// exists per (enrollment, session) pair from the moment the enrollment is
// created.
type Attendance struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	SessionID    string           `db:"session_id" json:"session_id"`
	Status       AttendanceStatus `db:"status" json:"status"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter provides filters for listing attendance records.
type AttendanceFilter struct {
	EnrollmentID string
	SessionID    string
	Status       AttendanceStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// AbsenteeismReport summarises absence pressure for one enrollment.
type AbsenteeismReport struct {
	EnrollmentID    string  `json:"enrollment_id"`
	AbsentCount     int     `json:"absent_count"`
	TotalCount      int     `json:"total_count"`
	Rate            float64 `json:"rate"`
	IsOverThreshold bool    `json:"is_over_threshold"`
}
