package models

import "time"

// Section is a specific offering of a Course in a Term, e.g. CS101 section A
// in 2025 Fall. Students enroll into sections, not courses. The combination
// (course_id, term_id, section_code) is unique among non-deleted rows.
// TeacherID is nullable: deleting a teacher unassigns their sections.
type Section struct {
	ID          string    `db:"id" json:"id"`
	SectionCode string    `db:"section_code" json:"section_code"`
	CourseID    string    `db:"course_id" json:"course_id"`
	TermID      string    `db:"term_id" json:"term_id"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	IsDeleted   bool      `db:"is_deleted" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with related display fields.
type SectionDetail struct {
	Section
	CourseCode  string  `db:"course_code" json:"course_code"`
	CourseTitle string  `db:"course_title" json:"course_title"`
	TermName    string  `db:"term_name" json:"term_name"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// SectionFilter captures filtering options for listing sections.
type SectionFilter struct {
	CourseID  string
	TermID    string
	TeacherID string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
