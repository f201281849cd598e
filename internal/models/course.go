package models

import "time"

// Course is a catalog entry (e.g. CS101). Code is unique among non-deleted
// rows; Sections reference courses.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Title     string    `db:"title" json:"title"`
	Credit    int       `db:"credit" json:"credit"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures filtering options for listing courses.
type CourseFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
