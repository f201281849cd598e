package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

var (
	fallStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	fallEnd   = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
)

// Walks the full admin flow across services sharing one backing state:
// provisioning, duplicate natural key, a dangling section reference, and
// double enrollment.
func TestAdministrationScenario(t *testing.T) {
	ctx := context.Background()

	ids := newMockIdentity()
	mail := &captureMail{}
	studentRepo := newMockStudentRepo()
	courseRepo := newMockCourseRepo()
	termRepo := newMockTermRepo()
	sectionRepo := newMockSectionRepo()
	enrollmentRepo := newMockEnrollmentRepo()
	teacherRepo := newMockTeacherRepo(sectionRepo)

	students := NewStudentService(studentRepo, &mockEnrollmentLister{}, ids, mail, 0, nil, nil)
	courses := NewCourseService(courseRepo, sectionRepo, nil, nil)
	terms := NewTermService(termRepo, sectionRepo, nil, nil)
	sections := NewSectionService(sectionRepo, courseRepo, termRepo, teacherRepo, nil, nil)
	enrollments := NewEnrollmentService(enrollmentRepo, staticStudentFinder{studentRepo}, sectionRepo, nil, nil)

	// first student provisions cleanly
	student, err := students.Create(ctx, CreateStudentRequest{
		StudentNo: "S-001", Name: "Ada", Surname: "Lovelace", Email: "stu1@example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, student.ID)

	// duplicate StudentNo with a different email is a conflict
	_, err = students.Create(ctx, CreateStudentRequest{
		StudentNo: "S-001", Name: "Grace", Surname: "Hopper", Email: "stu2@example.com",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	// a section cannot reference a course that does not exist
	course, err := courses.Create(ctx, CreateCourseRequest{Code: "CS101", Title: "Intro to CS", Credit: 6})
	require.NoError(t, err)
	term, err := terms.Create(ctx, CreateTermRequest{
		Name: "2025 Fall", StartDate: fallStart, EndDate: fallEnd,
	})
	require.NoError(t, err)

	_, err = sections.Create(ctx, CreateSectionRequest{
		SectionCode: "A",
		CourseID:    "99999999-9999-9999-9999-999999999999",
		TermID:      term.ID,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	section, err := sections.Create(ctx, CreateSectionRequest{
		SectionCode: "A", CourseID: course.ID, TermID: term.ID,
	})
	require.NoError(t, err)

	enrolled, err := enrollments.Enroll(ctx, EnrollRequest{StudentID: student.ID, SectionID: section.ID})
	require.NoError(t, err)
	require.NotEmpty(t, enrolled.ID)

	_, err = enrollments.Enroll(ctx, EnrollRequest{StudentID: student.ID, SectionID: section.ID})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.Equal(t, 1, enrollmentRepo.activeCount(student.ID, section.ID))
}
