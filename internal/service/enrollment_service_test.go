package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

const (
	testStudentID = "11111111-1111-1111-1111-111111111111"
	testSectionID = "22222222-2222-2222-2222-222222222222"
)

type staticStudentFinder struct{ repo *mockStudentRepo }

func (f staticStudentFinder) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	return f.repo.FindByID(ctx, id)
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo) {
	students := newMockStudentRepo()
	students.students[testStudentID] = models.Student{ID: testStudentID, StudentNo: "S-001"}
	sections := newMockSectionRepo()
	sections.sections[testSectionID] = models.Section{ID: testSectionID, SectionCode: "A"}

	repo := newMockEnrollmentRepo()
	svc := NewEnrollmentService(repo, staticStudentFinder{students}, sections, nil, nil)
	return svc, repo
}

func TestEnrollThenDeleteThenEnrollRestoresSameRow(t *testing.T) {
	svc, repo := newEnrollmentFixture()

	first, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:  testStudentID,
		SectionID:  testSectionID,
		TotalGrade: floatPtr(55),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), first.ID))

	second, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:   testStudentID,
		SectionID:   testSectionID,
		TotalGrade:  floatPtr(91),
		LetterGrade: strPtr("aa"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "tombstone must be restored under its original id")
	assert.Equal(t, 1, len(repo.rows), "no duplicate row may be created")
	assert.Equal(t, 1, repo.activeCount(testStudentID, testSectionID))
	require.NotNil(t, second.TotalGrade)
	assert.InDelta(t, 91, *second.TotalGrade, 0.001)
	require.NotNil(t, second.LetterGrade)
	assert.Equal(t, "AA", *second.LetterGrade)
}

func TestEnrollDuplicateActivePairConflicts(t *testing.T) {
	svc, repo := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: testStudentID, SectionID: testSectionID})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: testStudentID, SectionID: testSectionID})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.Equal(t, 1, repo.activeCount(testStudentID, testSectionID))
}

func TestEnrollGradeBounds(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: testStudentID, SectionID: testSectionID, TotalGrade: floatPtr(150),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Enroll(context.Background(), EnrollRequest{
		StudentID: testStudentID, SectionID: testSectionID, LetterGrade: strPtr("ABC"),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	enrolled, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: testStudentID, SectionID: testSectionID, TotalGrade: floatPtr(100),
	})
	require.NoError(t, err)
	require.NotNil(t, enrolled.TotalGrade)
	assert.InDelta(t, 100, *enrolled.TotalGrade, 0.001)
}

func TestEnrollMissingReferences(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "33333333-3333-3333-3333-333333333333", SectionID: testSectionID,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.Enroll(context.Background(), EnrollRequest{
		StudentID: testStudentID, SectionID: "44444444-4444-4444-4444-444444444444",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestUpdateEnrollmentClearsLetterGrade(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	enrolled, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: testStudentID, SectionID: testSectionID, LetterGrade: strPtr("BA"),
	})
	require.NoError(t, err)

	// nil pointer leaves the grade untouched
	updated, err := svc.Update(context.Background(), enrolled.ID, UpdateEnrollmentRequest{TotalGrade: floatPtr(70)})
	require.NoError(t, err)
	require.NotNil(t, updated.LetterGrade)
	assert.Equal(t, "BA", *updated.LetterGrade)

	// present-but-empty clears it
	updated, err = svc.Update(context.Background(), enrolled.ID, UpdateEnrollmentRequest{LetterGrade: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.LetterGrade)
	require.NotNil(t, updated.TotalGrade)
	assert.InDelta(t, 70, *updated.TotalGrade, 0.001)
}

func TestUpdateEnrollmentPairChangeChecksUniqueness(t *testing.T) {
	svc, repo := newEnrollmentFixture()
	otherSection := "55555555-5555-5555-5555-555555555555"

	first, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: testStudentID, SectionID: testSectionID})
	require.NoError(t, err)

	// second enrollment in another section, then try to move it onto the first pair
	repo.rows["enr-other"] = models.Enrollment{ID: "enr-other", StudentID: testStudentID, SectionID: otherSection}

	_, err = svc.Update(context.Background(), "enr-other", UpdateEnrollmentRequest{SectionID: strPtr(testSectionID)})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	// moving the first enrollment onto itself is not a conflict
	_, err = svc.Update(context.Background(), first.ID, UpdateEnrollmentRequest{TotalGrade: floatPtr(50)})
	require.NoError(t, err)
}

func TestDeleteEnrollmentSoftDeletes(t *testing.T) {
	svc, repo := newEnrollmentFixture()

	enrolled, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: testStudentID, SectionID: testSectionID})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), enrolled.ID))
	assert.True(t, repo.rows[enrolled.ID].IsDeleted)
	assert.Equal(t, 0, repo.activeCount(testStudentID, testSectionID))

	_, err = svc.Get(context.Background(), enrolled.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
