package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studentcrm/studentcrm-api/internal/models"
	"github.com/studentcrm/studentcrm-api/pkg/database"
)

// AccountRepository manages persistence for login accounts and role bindings.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByEmail returns an account by email. Matching is case-insensitive;
// emails are stored lowercased.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, must_change_password, temp_password_issued_at, created_at, updated_at
        FROM accounts WHERE email = LOWER($1) LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &account, nil
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, must_change_password, temp_password_issued_at, created_at, updated_at
        FROM accounts WHERE id = $1 LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return &account, nil
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	const query = `INSERT INTO accounts (id, email, password_hash, must_change_password, temp_password_issued_at, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :must_change_password, :temp_password_issued_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// UpdateEmail changes the account's email address (login name).
func (r *AccountRepository) UpdateEmail(ctx context.Context, id, email string) error {
	const query = `UPDATE accounts SET email = LOWER($2), updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, email, time.Now().UTC()); err != nil {
		return fmt.Errorf("update account email: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash and temporary-password flags.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool, issuedAt *time.Time) error {
	const query = `UPDATE accounts SET password_hash = $2, must_change_password = $3, temp_password_issued_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, mustChange, issuedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update account password: %w", err)
	}
	return nil
}

// Delete hard-deletes the account and its role bindings.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	return database.Transact(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM account_roles WHERE account_id = $1`, id); err != nil {
			return fmt.Errorf("delete account roles: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}

// EnsureRole creates the named role if absent and returns its id.
func (r *AccountRepository) EnsureRole(ctx context.Context, name string) (string, error) {
	const insert = `INSERT INTO roles (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), name); err != nil {
		return "", fmt.Errorf("ensure role: %w", err)
	}
	var id string
	if err := r.db.GetContext(ctx, &id, `SELECT id FROM roles WHERE name = $1`, name); err != nil {
		return "", fmt.Errorf("load role: %w", err)
	}
	return id, nil
}

// AssignRole binds the named role to the account. Idempotent.
func (r *AccountRepository) AssignRole(ctx context.Context, accountID, roleName string) error {
	const query = `INSERT INTO account_roles (account_id, role_id)
        SELECT $1, id FROM roles WHERE name = $2
        ON CONFLICT (account_id, role_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, accountID, roleName)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		// verify the role exists; a zero-row insert may just be a re-assign
		var id string
		if err := r.db.GetContext(ctx, &id, `SELECT id FROM roles WHERE name = $1`, roleName); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("assign role: role %q does not exist", roleName)
			}
			return fmt.Errorf("assign role: %w", err)
		}
	}
	return nil
}

// RolesFor returns the role names assigned to the account.
func (r *AccountRepository) RolesFor(ctx context.Context, accountID string) ([]string, error) {
	const query = `SELECT r.name FROM roles r
        JOIN account_roles ar ON ar.role_id = r.id
        WHERE ar.account_id = $1 ORDER BY r.name`
	var roles []string
	if err := r.db.SelectContext(ctx, &roles, query, accountID); err != nil {
		return nil, fmt.Errorf("load account roles: %w", err)
	}
	return roles, nil
}
