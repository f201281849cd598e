package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestTeacherRepositorySoftDeleteAndUnassignSections(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1 AND is_deleted = FALSE")).
		WithArgs("tea-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET is_deleted = TRUE, updated_at = $2 WHERE id = $1")).
		WithArgs("tea-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SoftDeleteAndUnassignSections(context.Background(), "tea-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositorySoftDeleteRollsBackOnUnassignFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET teacher_id = NULL")).
		WithArgs("tea-1", sqlmock.AnyArg()).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := repo.SoftDeleteAndUnassignSections(context.Background(), "tea-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
