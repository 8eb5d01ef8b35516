package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EnrollmentStatus is the derived pass/fail/in-progress state of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusInProgress EnrollmentStatus = "IN_PROGRESS"
	EnrollmentStatusNotPassed  EnrollmentStatus = "NOT_PASSED"
	EnrollmentStatusPassed     EnrollmentStatus = "PASSED"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusInProgress, EnrollmentStatusNotPassed, EnrollmentStatusPassed:
		return true
	default:
		return false
	}
}

// AllEnrollmentStatuses lists every status in reporting order.
func AllEnrollmentStatuses() []EnrollmentStatus {
	return []EnrollmentStatus{EnrollmentStatusInProgress, EnrollmentStatusNotPassed, EnrollmentStatusPassed}
}

// GradeType identifies one of the required graded components.
type GradeType string

// Required graded components. A final grade exists only once all four carry a
// score and their weights sum to one.
const (
	GradeTypeProgressTest  GradeType = "progress test"
	GradeTypeAssignment    GradeType = "assignment"
	GradeTypePracticalExam GradeType = "practical exam"
	GradeTypeFinalExam     GradeType = "final exam"
)

// RequiredGradeTypes lists the components a complete grade set must contain.
func RequiredGradeTypes() []GradeType {
	return []GradeType{GradeTypeProgressTest, GradeTypeAssignment, GradeTypePracticalExam, GradeTypeFinalExam}
}

// Valid returns true when the type is a supported component.
func (t GradeType) Valid() bool {
	switch t {
	case GradeTypeProgressTest, GradeTypeAssignment, GradeTypePracticalExam, GradeTypeFinalExam:
		return true
	default:
		return false
	}
}

// Grade is a weighted component score embedded in an enrollment. A nil Score
// marks a component that has not been graded yet.
type Grade struct {
	Type   GradeType `json:"type"`
	Score  *float64  `json:"score"`
	Weight float64   `json:"weight"`
}

// GradeList is the inline grade array stored as a single JSONB column.
type GradeList []Grade

// Value implements driver.Valuer for JSONB storage.
func (g GradeList) Value() (driver.Value, error) {
	if g == nil {
		g = GradeList{}
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal grade list: %w", err)
	}
	return raw, nil
}

// Scan implements sql.Scanner for JSONB storage.
func (g *GradeList) Scan(src interface{}) error {
	if src == nil {
		*g = GradeList{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported grade list source type %T", src)
	}
	if len(raw) == 0 {
		*g = GradeList{}
		return nil
	}
	return json.Unmarshal(raw, g)
}

// Enrollment registers a student in a course. Status and FinalGrade are
// derived from the current grade set and absenteeism rate, never set directly.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Grades         GradeList        `db:"grades" json:"grade"`
	FinalGrade     *float64         `db:"final_grade" json:"final_grade,omitempty"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StatusCount is one row of the per-student status summary.
type StatusCount struct {
	Status EnrollmentStatus `db:"status" json:"status"`
	Count  int              `db:"count" json:"count"`
}

// EnrollmentDeletion reports the result of a cascading enrollment removal.
type EnrollmentDeletion struct {
	Enrollment         Enrollment `json:"enrollment"`
	AttendancesDeleted int        `json:"attendances_deleted"`
}
