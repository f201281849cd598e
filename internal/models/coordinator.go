package models

import "time"

// Coordinator is a program coordinator profile. CoordinatorNo is unique among
// non-deleted rows.
type Coordinator struct {
	ID            string    `db:"id" json:"id"`
	CoordinatorNo string    `db:"coordinator_no" json:"coordinator_no"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         string    `db:"email" json:"email"`
	Department    *string   `db:"department" json:"department,omitempty"`
	AccountID     string    `db:"account_id" json:"account_id"`
	IsDeleted     bool      `db:"is_deleted" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CoordinatorFilter captures filtering options for listing coordinators.
type CoordinatorFilter struct {
	Search     string
	Department string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
