package models

import "time"

// Student is a learner profile. Every student owns exactly one Account;
// StudentNo is unique among non-deleted rows.
type Student struct {
	ID        string    `db:"id" json:"id"`
	StudentNo string    `db:"student_no" json:"student_no"`
	Name      string    `db:"name" json:"name"`
	Surname   string    `db:"surname" json:"surname"`
	Email     string    `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Major     *string   `db:"major" json:"major,omitempty"`
	GPA       *float64  `db:"gpa" json:"gpa,omitempty"`
	AccountID string    `db:"account_id" json:"account_id"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Major     string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentDetail enriches Student with account state and enrollments.
type StudentDetail struct {
	Student
	MustChangePassword bool               `db:"must_change_password" json:"must_change_password"`
	Enrollments        []EnrollmentDetail `db:"-" json:"enrollments,omitempty"`
}
