package models

import "time"

// Course is a subject offering within a semester. Its session calendar is
// materialized at creation time and SessionCount is immutable thereafter.
type Course struct {
	ID           string    `db:"id" json:"id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	SemesterID   string    `db:"semester_id" json:"semester_id"`
	SessionCount int       `db:"session_count" json:"session_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	SubjectID  string
	SemesterID string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CourseDeletion reports the result of a cascading course removal.
type CourseDeletion struct {
	Course          Course `json:"course"`
	SessionsDeleted int    `json:"sessions_deleted"`
}
