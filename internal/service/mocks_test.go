package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
	"github.com/studentcrm/studentcrm-api/pkg/mailer"
)

// mockIdentity emulates the identity store contract: duplicate emails
// conflict, lookups miss with NOT_FOUND, reset tokens are single use.
type mockIdentity struct {
	accounts       map[string]*models.Account
	roles          map[string][]string
	tokens         map[string]string
	seq            int
	failAssignRole bool
	failDelete     bool
	deleted        []string
}

func newMockIdentity() *mockIdentity {
	return &mockIdentity{
		accounts: make(map[string]*models.Account),
		roles:    make(map[string][]string),
		tokens:   make(map[string]string),
	}
}

func (m *mockIdentity) CreateAccount(ctx context.Context, email, passwordPlain string) (*models.Account, error) {
	normalized := normalizeMockEmail(email)
	for _, a := range m.accounts {
		if a.Email == normalized {
			return nil, appErrors.Clone(appErrors.ErrConflict, "this email is already used")
		}
	}
	m.seq++
	account := &models.Account{
		ID:                 "acct-" + strconv.Itoa(m.seq),
		Email:              normalized,
		PasswordHash:       "hash:" + passwordPlain,
		MustChangePassword: true,
	}
	m.accounts[account.ID] = account
	return account, nil
}

func (m *mockIdentity) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	normalized := normalizeMockEmail(email)
	for _, a := range m.accounts {
		if a.Email == normalized {
			copied := *a
			copied.Roles = m.roles[a.ID]
			return &copied, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
}

func (m *mockIdentity) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		copied := *a
		copied.Roles = m.roles[id]
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
}

func (m *mockIdentity) CheckPassword(account *models.Account, passwordPlain string) bool {
	return account.PasswordHash == "hash:"+passwordPlain
}

func (m *mockIdentity) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	account, ok := m.accounts[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "account not found")
	}
	if account.PasswordHash != "hash:"+currentPassword {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password does not match")
	}
	account.PasswordHash = "hash:" + newPassword
	account.MustChangePassword = false
	account.TemporaryPasswordIssuedAt = nil
	return nil
}

func (m *mockIdentity) EnsureRole(ctx context.Context, name string) error { return nil }

func (m *mockIdentity) AssignRole(ctx context.Context, accountID, roleName string) error {
	if m.failAssignRole {
		return appErrors.Clone(appErrors.ErrDependency, "failed to assign role")
	}
	m.roles[accountID] = append(m.roles[accountID], roleName)
	return nil
}

func (m *mockIdentity) UpdateEmail(ctx context.Context, id, newEmail string) error {
	normalized := normalizeMockEmail(newEmail)
	for otherID, a := range m.accounts {
		if otherID != id && a.Email == normalized {
			return appErrors.Clone(appErrors.ErrConflict, "this email is already used")
		}
	}
	account, ok := m.accounts[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "account not found")
	}
	account.Email = normalized
	return nil
}

func (m *mockIdentity) DeleteAccount(ctx context.Context, id string) error {
	if m.failDelete {
		return appErrors.Clone(appErrors.ErrDependency, "failed to delete account")
	}
	delete(m.accounts, id)
	delete(m.roles, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockIdentity) GenerateResetToken(ctx context.Context, accountID string) (string, error) {
	if _, ok := m.accounts[accountID]; !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, "account not found")
	}
	m.seq++
	token := "token-" + strconv.Itoa(m.seq)
	m.tokens[token] = accountID
	return token, nil
}

func (m *mockIdentity) ResetPassword(ctx context.Context, token, newPassword string, temporary bool) error {
	accountID, ok := m.tokens[token]
	if !ok {
		return appErrors.Clone(appErrors.ErrUnauthorized, "reset token is invalid or expired")
	}
	delete(m.tokens, token)
	account := m.accounts[accountID]
	account.PasswordHash = "hash:" + newPassword
	account.MustChangePassword = temporary
	return nil
}

func normalizeMockEmail(email string) string {
	out := make([]byte, 0, len(email))
	for i := 0; i < len(email); i++ {
		c := email[i]
		if c == ' ' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// captureMail records dispatched messages instead of sending them.
type captureMail struct {
	sent []mailer.Message
}

func (c *captureMail) Dispatch(msg mailer.Message) { c.sent = append(c.sent, msg) }

type mockStudentRepo struct {
	students   map[string]models.Student
	failCreate bool
	failUpdate bool
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]models.Student)}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, s := range m.students {
		if !s.IsDeleted {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	s, ok := m.students[id]
	if !ok || s.IsDeleted {
		return nil, sql.ErrNoRows
	}
	return &models.StudentDetail{Student: s}, nil
}

func (m *mockStudentRepo) ExistsByStudentNo(ctx context.Context, studentNo, excludeID string) (bool, error) {
	for id, s := range m.students {
		if !s.IsDeleted && s.StudentNo == studentNo && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.failCreate {
		return errors.New("insert failed")
	}
	student.ID = uuid.NewString()
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if m.failUpdate {
		return errors.New("update failed")
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) SoftDelete(ctx context.Context, id string) error {
	s := m.students[id]
	s.IsDeleted = true
	m.students[id] = s
	return nil
}

type mockEnrollmentLister struct {
	enrollments []models.EnrollmentDetail
}

func (m *mockEnrollmentLister) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return m.enrollments, len(m.enrollments), nil
}

type mockEnrollmentRepo struct {
	rows map[string]models.Enrollment
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{rows: make(map[string]models.Enrollment)}
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.rows {
		if !e.IsDeleted {
			out = append(out, models.EnrollmentDetail{Enrollment: e})
		}
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := m.rows[id]
	if !ok || e.IsDeleted {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.EnrollmentDetail{Enrollment: *e}, nil
}

func (m *mockEnrollmentRepo) FindByPair(ctx context.Context, studentID, sectionID string, deleted bool) (*models.Enrollment, error) {
	for _, e := range m.rows {
		if e.StudentID == studentID && e.SectionID == sectionID && e.IsDeleted == deleted {
			copied := e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsActivePair(ctx context.Context, studentID, sectionID, excludeID string) (bool, error) {
	for id, e := range m.rows {
		if !e.IsDeleted && e.StudentID == studentID && e.SectionID == sectionID && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = uuid.NewString()
	m.rows[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Restore(ctx context.Context, id string, totalGrade *float64, letterGrade *string) error {
	e, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("enrollment %s not found", id)
	}
	e.IsDeleted = false
	e.TotalGrade = totalGrade
	e.LetterGrade = letterGrade
	m.rows[id] = e
	return nil
}

func (m *mockEnrollmentRepo) Update(ctx context.Context, enrollment *models.Enrollment) error {
	m.rows[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) SoftDelete(ctx context.Context, id string) error {
	e := m.rows[id]
	e.IsDeleted = true
	m.rows[id] = e
	return nil
}

func (m *mockEnrollmentRepo) activeCount(studentID, sectionID string) int {
	count := 0
	for _, e := range m.rows {
		if !e.IsDeleted && e.StudentID == studentID && e.SectionID == sectionID {
			count++
		}
	}
	return count
}

type mockSectionRepo struct {
	sections map[string]models.Section
}

func newMockSectionRepo() *mockSectionRepo {
	return &mockSectionRepo{sections: make(map[string]models.Section)}
}

func (m *mockSectionRepo) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	var out []models.SectionDetail
	for _, s := range m.sections {
		if !s.IsDeleted {
			out = append(out, models.SectionDetail{Section: s})
		}
	}
	return out, len(out), nil
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.Section, error) {
	s, ok := m.sections[id]
	if !ok || s.IsDeleted {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *mockSectionRepo) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	s, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.SectionDetail{Section: *s}, nil
}

func (m *mockSectionRepo) ExistsComposite(ctx context.Context, courseID, termID, sectionCode, excludeID string) (bool, error) {
	for id, s := range m.sections {
		if !s.IsDeleted && s.CourseID == courseID && s.TermID == termID && s.SectionCode == sectionCode && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSectionRepo) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	count := 0
	for _, s := range m.sections {
		if !s.IsDeleted && s.CourseID == courseID {
			count++
		}
	}
	return count, nil
}

func (m *mockSectionRepo) CountActiveByTerm(ctx context.Context, termID string) (int, error) {
	count := 0
	for _, s := range m.sections {
		if !s.IsDeleted && s.TermID == termID {
			count++
		}
	}
	return count, nil
}

func (m *mockSectionRepo) Create(ctx context.Context, section *models.Section) error {
	section.ID = uuid.NewString()
	m.sections[section.ID] = *section
	return nil
}

func (m *mockSectionRepo) Update(ctx context.Context, section *models.Section) error {
	m.sections[section.ID] = *section
	return nil
}

func (m *mockSectionRepo) SoftDelete(ctx context.Context, id string) error {
	s := m.sections[id]
	s.IsDeleted = true
	m.sections[id] = s
	return nil
}

type mockCourseRepo struct {
	courses map[string]models.Course
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: make(map[string]models.Course)}
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var out []models.Course
	for _, c := range m.courses {
		if !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok || c.IsDeleted {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m *mockCourseRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for id, c := range m.courses {
		if !c.IsDeleted && c.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = uuid.NewString()
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) SoftDelete(ctx context.Context, id string) error {
	c := m.courses[id]
	c.IsDeleted = true
	m.courses[id] = c
	return nil
}

type mockTermRepo struct {
	terms map[string]models.Term
}

func newMockTermRepo() *mockTermRepo {
	return &mockTermRepo{terms: make(map[string]models.Term)}
}

func (m *mockTermRepo) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	var out []models.Term
	for _, t := range m.terms {
		if !t.IsDeleted {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (m *mockTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	t, ok := m.terms[id]
	if !ok || t.IsDeleted {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (m *mockTermRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	for id, t := range m.terms {
		if !t.IsDeleted && t.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTermRepo) Create(ctx context.Context, term *models.Term) error {
	term.ID = uuid.NewString()
	m.terms[term.ID] = *term
	return nil
}

func (m *mockTermRepo) Update(ctx context.Context, term *models.Term) error {
	m.terms[term.ID] = *term
	return nil
}

func (m *mockTermRepo) SoftDelete(ctx context.Context, id string) error {
	t := m.terms[id]
	t.IsDeleted = true
	m.terms[id] = t
	return nil
}

type mockTeacherRepo struct {
	teachers   map[string]models.Teacher
	sections   *mockSectionRepo
	unassigned []string
}

func newMockTeacherRepo(sections *mockSectionRepo) *mockTeacherRepo {
	return &mockTeacherRepo{teachers: make(map[string]models.Teacher), sections: sections}
}

func (m *mockTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var out []models.Teacher
	for _, t := range m.teachers {
		if !t.IsDeleted {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (m *mockTeacherRepo) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok := m.teachers[id]
	if !ok || t.IsDeleted {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (m *mockTeacherRepo) ExistsByStaffNo(ctx context.Context, staffNo, excludeID string) (bool, error) {
	for id, t := range m.teachers {
		if !t.IsDeleted && t.StaffNo == staffNo && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTeacherRepo) Create(ctx context.Context, teacher *models.Teacher) error {
	teacher.ID = uuid.NewString()
	m.teachers[teacher.ID] = *teacher
	return nil
}

func (m *mockTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	m.teachers[teacher.ID] = *teacher
	return nil
}

func (m *mockTeacherRepo) SoftDeleteAndUnassignSections(ctx context.Context, id string) error {
	t := m.teachers[id]
	t.IsDeleted = true
	m.teachers[id] = t
	m.unassigned = append(m.unassigned, id)
	if m.sections != nil {
		for sid, s := range m.sections.sections {
			if s.TeacherID != nil && *s.TeacherID == id && !s.IsDeleted {
				s.TeacherID = nil
				m.sections.sections[sid] = s
			}
		}
	}
	return nil
}
