package models

import "time"

// Role names assigned by the provisioning workflow.
const (
	RoleAdmin       = "Admin"
	RoleStudent     = "Student"
	RoleTeacher     = "Teacher"
	RoleCoordinator = "Coordinator"
)

// Account is a login identity. Accounts are created by the provisioning
// workflow together with their owning profile and hard-deleted when the
// profile is removed.
type Account struct {
	ID                        string     `db:"id" json:"id"`
	Email                     string     `db:"email" json:"email"`
	PasswordHash              string     `db:"password_hash" json:"-"`
	MustChangePassword        bool       `db:"must_change_password" json:"must_change_password"`
	TemporaryPasswordIssuedAt *time.Time `db:"temp_password_issued_at" json:"temp_password_issued_at,omitempty"`
	CreatedAt                 time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updated_at"`

	Roles []string `db:"-" json:"roles,omitempty"`
}

// HasRole reports whether the account carries the named role.
func (a *Account) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Role is a named role accounts can be assigned to.
type Role struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
