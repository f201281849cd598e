package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

func newStudentService(repo *mockStudentRepo, ids *mockIdentity, mail *captureMail) *StudentService {
	return NewStudentService(repo, &mockEnrollmentLister{}, ids, mail, 0, nil, nil)
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestCreateStudentProvisionsAccount(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	mail := &captureMail{}
	svc := newStudentService(repo, ids, mail)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-001",
		Name:      "Ada",
		Surname:   "Lovelace",
		Email:     " Ada.Lovelace@Uni.Edu ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, "ada.lovelace@uni.edu", student.Email)
	require.NotEmpty(t, student.AccountID)

	account, err := ids.FindByID(context.Background(), student.AccountID)
	require.NoError(t, err)
	assert.True(t, account.MustChangePassword)
	assert.Contains(t, account.Roles, models.RoleStudent)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "ada.lovelace@uni.edu", mail.sent[0].To)
	assert.True(t, strings.Contains(mail.sent[0].HTMLBody, "Temporary password"))
}

func TestCreateStudentDuplicateStudentNoLeavesNoAccount(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	mail := &captureMail{}
	svc := newStudentService(repo, ids, mail)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-001", Name: "Ada", Surname: "Lovelace", Email: "stu1@example.com",
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-001", Name: "Grace", Surname: "Hopper", Email: "stu2@example.com",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	// only the first student and its account survive the failed attempt
	assert.Len(t, repo.students, 1)
	assert.Len(t, ids.accounts, 1)
	assert.Len(t, mail.sent, 1)
}

func TestCreateStudentDuplicateEmailLeavesNoOrphan(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	svc := newStudentService(repo, ids, &captureMail{})

	_, err := ids.CreateAccount(context.Background(), "taken@example.com", "whatever")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-002", Name: "Grace", Surname: "Hopper", Email: "taken@example.com",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.Empty(t, repo.students)
	assert.Len(t, ids.accounts, 1)
}

func TestCreateStudentRoleAssignFailureCompensates(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	ids.failAssignRole = true
	mail := &captureMail{}
	svc := newStudentService(repo, ids, mail)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-003", Name: "Alan", Surname: "Turing", Email: "alan@example.com",
	})
	require.Error(t, err)
	assert.Empty(t, ids.accounts, "account must be compensated away")
	assert.Empty(t, repo.students, "no profile row may be created")
	assert.Empty(t, mail.sent)
}

func TestCreateStudentProfileInsertFailureCompensates(t *testing.T) {
	repo := newMockStudentRepo()
	repo.failCreate = true
	ids := newMockIdentity()
	mail := &captureMail{}
	svc := newStudentService(repo, ids, mail)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-004", Name: "Edsger", Surname: "Dijkstra", Email: "edsger@example.com",
	})
	require.Error(t, err)
	assert.Empty(t, ids.accounts)
	assert.Empty(t, mail.sent)
}

func TestUpdateStudentEmailOnlyPreservesOtherFields(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	svc := newStudentService(repo, ids, &captureMail{})

	created, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-010",
		Name:      "Ada",
		Surname:   "Lovelace",
		Email:     "before@example.com",
		Major:     strPtr("Mathematics"),
		GPA:       floatPtr(3.8),
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdateStudentRequest{
		Email: strPtr("After@Example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "after@example.com", updated.Email)
	assert.Equal(t, "S-010", updated.StudentNo)
	assert.Equal(t, "Ada", updated.Name)
	assert.Equal(t, "Lovelace", updated.Surname)
	require.NotNil(t, updated.Major)
	assert.Equal(t, "Mathematics", *updated.Major)
	require.NotNil(t, updated.GPA)
	assert.InDelta(t, 3.8, *updated.GPA, 0.001)

	account, err := ids.FindByID(context.Background(), created.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "after@example.com", account.Email)
}

func TestUpdateStudentEmailConflictAbortsProfileChange(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	svc := newStudentService(repo, ids, &captureMail{})

	first, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-011", Name: "Ada", Surname: "Lovelace", Email: "first@example.com",
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-012", Name: "Grace", Surname: "Hopper", Email: "second@example.com",
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), first.ID, UpdateStudentRequest{
		Email: strPtr("second@example.com"),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.Equal(t, "first@example.com", repo.students[first.ID].Email)
}

func TestUpdateStudentProfileFailureRevertsAccountEmail(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	svc := newStudentService(repo, ids, &captureMail{})

	created, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-013", Name: "Ada", Surname: "Lovelace", Email: "stable@example.com",
	})
	require.NoError(t, err)

	repo.failUpdate = true
	_, err = svc.Update(context.Background(), created.ID, UpdateStudentRequest{
		Email: strPtr("moved@example.com"),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))

	// login must keep matching the profile row that never changed
	account, err := ids.FindByID(context.Background(), created.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "stable@example.com", account.Email)
	assert.Equal(t, "stable@example.com", repo.students[created.ID].Email)
}

func TestDeleteStudentRemovesAccount(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	svc := newStudentService(repo, ids, &captureMail{})

	created, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-020", Name: "Ada", Surname: "Lovelace", Email: "ada@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.True(t, repo.students[created.ID].IsDeleted)
	assert.Contains(t, ids.deleted, created.AccountID)

	err = svc.Delete(context.Background(), created.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestDeleteStudentAccountFailureKeepsProfileDeleted(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	svc := newStudentService(repo, ids, &captureMail{})

	created, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-021", Name: "Ada", Surname: "Lovelace", Email: "ada2@example.com",
	})
	require.NoError(t, err)

	ids.failDelete = true
	err = svc.Delete(context.Background(), created.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDependency.Code))
	assert.True(t, repo.students[created.ID].IsDeleted, "profile stays deleted despite account failure")
}

func TestResetPasswordIssuesTemporaryAndNotifies(t *testing.T) {
	repo := newMockStudentRepo()
	ids := newMockIdentity()
	mail := &captureMail{}
	svc := newStudentService(repo, ids, mail)

	created, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-030", Name: "Ada", Surname: "Lovelace", Email: "reset@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, ids.ChangePassword(context.Background(), created.AccountID, extractMockPassword(ids, created.AccountID), "settled-pass"))

	require.NoError(t, svc.ResetPassword(context.Background(), created.ID))

	account, err := ids.FindByID(context.Background(), created.AccountID)
	require.NoError(t, err)
	assert.True(t, account.MustChangePassword)
	require.Len(t, mail.sent, 2)
	assert.Equal(t, "Your password was reset", mail.sent[1].Subject)
}

func extractMockPassword(ids *mockIdentity, accountID string) string {
	return strings.TrimPrefix(ids.accounts[accountID].PasswordHash, "hash:")
}
