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
	testCourseID  = "66666666-6666-6666-6666-666666666666"
	testTermID    = "77777777-7777-7777-7777-777777777777"
	testTeacherID = "88888888-8888-8888-8888-888888888888"
)

func newSectionFixture() (*SectionService, *mockSectionRepo, *mockTeacherRepo) {
	courses := newMockCourseRepo()
	courses.courses[testCourseID] = models.Course{ID: testCourseID, Code: "CS101"}
	terms := newMockTermRepo()
	terms.terms[testTermID] = models.Term{ID: testTermID, Name: "2025 Fall"}
	sections := newMockSectionRepo()
	teachers := newMockTeacherRepo(sections)
	teachers.teachers[testTeacherID] = models.Teacher{ID: testTeacherID, StaffNo: "T-1"}

	svc := NewSectionService(sections, courses, terms, teachers, nil, nil)
	return svc, sections, teachers
}

func TestCreateSectionMissingCourse(t *testing.T) {
	svc, _, _ := newSectionFixture()

	_, err := svc.Create(context.Background(), CreateSectionRequest{
		SectionCode: "A",
		CourseID:    "99999999-9999-9999-9999-999999999999",
		TermID:      testTermID,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestCreateSectionCompositeUniqueness(t *testing.T) {
	svc, _, _ := newSectionFixture()

	_, err := svc.Create(context.Background(), CreateSectionRequest{
		SectionCode: "a", CourseID: testCourseID, TermID: testTermID,
	})
	require.NoError(t, err)

	// same course+term+code, case-normalized
	_, err = svc.Create(context.Background(), CreateSectionRequest{
		SectionCode: "A", CourseID: testCourseID, TermID: testTermID,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	// a different code for the same course+term is fine
	_, err = svc.Create(context.Background(), CreateSectionRequest{
		SectionCode: "B", CourseID: testCourseID, TermID: testTermID,
	})
	require.NoError(t, err)
}

func TestUpdateSectionClearTeacher(t *testing.T) {
	svc, sections, _ := newSectionFixture()

	created, err := svc.Create(context.Background(), CreateSectionRequest{
		SectionCode: "A", CourseID: testCourseID, TermID: testTermID, TeacherID: strPtr(testTeacherID),
	})
	require.NoError(t, err)
	require.NotNil(t, created.TeacherID)

	updated, err := svc.Update(context.Background(), created.ID, UpdateSectionRequest{ClearTeacher: true})
	require.NoError(t, err)
	assert.Nil(t, updated.TeacherID)
	assert.Nil(t, sections.sections[created.ID].TeacherID)
}

func TestUpdateSectionUnknownTeacher(t *testing.T) {
	svc, _, _ := newSectionFixture()

	created, err := svc.Create(context.Background(), CreateSectionRequest{
		SectionCode: "A", CourseID: testCourseID, TermID: testTermID,
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), created.ID, UpdateSectionRequest{
		TeacherID: strPtr("99999999-9999-9999-9999-999999999999"),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
