package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestAccountRepositoryFindByEmailLowercases(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "must_change_password", "temp_password_issued_at", "created_at", "updated_at"}).
		AddRow("acc-1", "jane@uni.edu", "hash", true, time.Now(), time.Now(), time.Now())
	mock.ExpectQuery(`SELECT id, email, password_hash, must_change_password, temp_password_issued_at, created_at, updated_at\s+FROM accounts WHERE email = LOWER\(\$1\)`).
		WithArgs("Jane@Uni.edu").
		WillReturnRows(rows)

	account, err := repo.FindByEmail(context.Background(), "Jane@Uni.edu")
	require.NoError(t, err)
	require.Equal(t, "acc-1", account.ID)
	require.True(t, account.MustChangePassword)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryDeleteRemovesRoleBindings(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM account_roles WHERE account_id = $1")).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM accounts WHERE id = $1")).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "acc-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryUpdatePassword(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	issued := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET password_hash = $2, must_change_password = $3, temp_password_issued_at = $4, updated_at = $5 WHERE id = $1")).
		WithArgs("acc-1", "newhash", true, &issued, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdatePassword(context.Background(), "acc-1", "newhash", true, &issued)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
