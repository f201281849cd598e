package models

import "time"

// Teacher is an instructor profile. StaffNo is unique among non-deleted rows.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	StaffNo   string    `db:"staff_no" json:"staff_no"`
	Name      string    `db:"name" json:"name"`
	Surname   string    `db:"surname" json:"surname"`
	Email     string    `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	AccountID string    `db:"account_id" json:"account_id"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
