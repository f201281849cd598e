package models

import "time"

// Enrollment registers a student in a section. At most one active
// (non-deleted) enrollment may exist per (student_id, section_id) pair; a
// soft-deleted row for the same pair is reactivated rather than duplicated
// when re-enrollment is requested.
type Enrollment struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	TotalGrade  *float64  `db:"total_grade" json:"total_grade,omitempty"`
	LetterGrade *string   `db:"letter_grade" json:"letter_grade,omitempty"`
	IsDeleted   bool      `db:"is_deleted" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentNo   string `db:"student_no" json:"student_no"`
	StudentName string `db:"student_name" json:"student_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
	SectionCode string `db:"section_code" json:"section_code"`
	TermName    string `db:"term_name" json:"term_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
