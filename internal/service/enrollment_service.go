package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studentcrm/studentcrm-api/internal/models"
	"github.com/studentcrm/studentcrm-api/pkg/database"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindByPair(ctx context.Context, studentID, sectionID string, deleted bool) (*models.Enrollment, error)
	ExistsActivePair(ctx context.Context, studentID, sectionID, excludeID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Restore(ctx context.Context, id string, totalGrade *float64, letterGrade *string) error
	Update(ctx context.Context, enrollment *models.Enrollment) error
	SoftDelete(ctx context.Context, id string) error
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type sectionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

// EnrollRequest holds payload for enrolling a student into a section.
type EnrollRequest struct {
	StudentID   string   `json:"student_id" validate:"required,uuid"`
	SectionID   string   `json:"section_id" validate:"required,uuid"`
	TotalGrade  *float64 `json:"total_grade" validate:"omitempty,gte=0,lte=100"`
	LetterGrade *string  `json:"letter_grade"`
}

// UpdateEnrollmentRequest holds payload for updating an enrollment. Nil
// fields are left unchanged; a present-but-empty letter grade clears it.
type UpdateEnrollmentRequest struct {
	StudentID   *string  `json:"student_id" validate:"omitempty,uuid"`
	SectionID   *string  `json:"section_id" validate:"omitempty,uuid"`
	TotalGrade  *float64 `json:"total_grade" validate:"omitempty,gte=0,lte=100"`
	LetterGrade *string  `json:"letter_grade"`
}

// EnrollmentService keeps the (student, section) registration consistent: at
// most one active enrollment per pair, with soft-deleted rows restored in
// place instead of duplicated.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentFinder
	sections  sectionFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, students studentFinder, sections sectionFinder, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, sections: sections, validator: validate, logger: logger}
}

// List returns enrollments and pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns an enrollment with student and section context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll registers a student in a section. An active enrollment for the pair
// is a conflict; a soft-deleted one is restored under its original id with
// the submitted grades.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	letterGrade, err := normalizeLetterGrade(req.LetterGrade)
	if err != nil {
		return nil, err
	}

	if err := s.checkPairRefs(ctx, req.StudentID, req.SectionID); err != nil {
		return nil, err
	}

	active, err := s.repo.ExistsActivePair(ctx, req.StudentID, req.SectionID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this section")
	}

	tombstone, err := s.repo.FindByPair(ctx, req.StudentID, req.SectionID, true)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if tombstone != nil {
		if err := s.repo.Restore(ctx, tombstone.ID, req.TotalGrade, letterGrade); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore enrollment")
		}
		restored, err := s.repo.FindByID(ctx, tombstone.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		return restored, nil
	}

	enrollment := &models.Enrollment{
		StudentID:   req.StudentID,
		SectionID:   req.SectionID,
		TotalGrade:  req.TotalGrade,
		LetterGrade: letterGrade,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// Update applies a partial update. Changing the pair re-validates references
// and re-checks pair uniqueness against the prospective values.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	pairChanged := false
	if req.StudentID != nil && *req.StudentID != enrollment.StudentID {
		enrollment.StudentID = *req.StudentID
		pairChanged = true
	}
	if req.SectionID != nil && *req.SectionID != enrollment.SectionID {
		enrollment.SectionID = *req.SectionID
		pairChanged = true
	}
	if pairChanged {
		if err := s.checkPairRefs(ctx, enrollment.StudentID, enrollment.SectionID); err != nil {
			return nil, err
		}
		exists, err := s.repo.ExistsActivePair(ctx, enrollment.StudentID, enrollment.SectionID, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this section")
		}
	}

	if req.TotalGrade != nil {
		enrollment.TotalGrade = req.TotalGrade
	}
	if req.LetterGrade != nil {
		letterGrade, err := normalizeLetterGrade(req.LetterGrade)
		if err != nil {
			return nil, err
		}
		enrollment.LetterGrade = letterGrade
	}

	if err := s.repo.Update(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	return enrollment, nil
}

// Delete soft-deletes the enrollment, leaving a tombstone the pair can be
// restored from.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

func (s *EnrollmentService) checkPairRefs(ctx context.Context, studentID, sectionID string) error {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student")
	}
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate section")
	}
	return nil
}

// normalizeLetterGrade trims and uppercases a submitted letter grade. An
// empty value clears the grade; more than two characters is invalid.
func normalizeLetterGrade(letterGrade *string) (*string, error) {
	if letterGrade == nil {
		return nil, nil
	}
	trimmed := strings.ToUpper(strings.TrimSpace(*letterGrade))
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "letter_grade must be at most 2 characters")
	}
	return &trimmed, nil
}
