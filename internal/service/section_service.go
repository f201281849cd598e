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

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	ExistsComposite(ctx context.Context, courseID, termID, sectionCode, excludeID string) (bool, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	SoftDelete(ctx context.Context, id string) error
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type termFinder interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type teacherFinder interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateSectionRequest holds payload for creating sections.
type CreateSectionRequest struct {
	SectionCode string  `json:"section_code" validate:"required"`
	CourseID    string  `json:"course_id" validate:"required,uuid"`
	TermID      string  `json:"term_id" validate:"required,uuid"`
	TeacherID   *string `json:"teacher_id" validate:"omitempty,uuid"`
}

// UpdateSectionRequest holds payload for updating sections. Nil fields are
// left unchanged; ClearTeacher unassigns the instructor.
type UpdateSectionRequest struct {
	SectionCode  *string `json:"section_code" validate:"omitempty,min=1"`
	CourseID     *string `json:"course_id" validate:"omitempty,uuid"`
	TermID       *string `json:"term_id" validate:"omitempty,uuid"`
	TeacherID    *string `json:"teacher_id" validate:"omitempty,uuid"`
	ClearTeacher bool    `json:"clear_teacher"`
}

// SectionService handles course offerings.
type SectionService struct {
	repo      sectionRepository
	courses   courseFinder
	terms     termFinder
	teachers  teacherFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs the section service.
func NewSectionService(repo sectionRepository, courses courseFinder, terms termFinder, teachers teacherFinder, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, courses: courses, terms: terms, teachers: teachers, validator: validate, logger: logger}
}

// List returns sections and pagination metadata.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a section with course, term and teacher context.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return detail, nil
}

// Create registers a new offering of a course in a term.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	req.SectionCode = strings.ToUpper(strings.TrimSpace(req.SectionCode))

	if err := s.checkRefs(ctx, &req.CourseID, &req.TermID, req.TeacherID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsComposite(ctx, req.CourseID, req.TermID, req.SectionCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate section code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section code already used for this course and term")
	}

	section := &models.Section{
		SectionCode: req.SectionCode,
		CourseID:    req.CourseID,
		TermID:      req.TermID,
		TeacherID:   req.TeacherID,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "section code already used for this course and term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return section, nil
}

// Update applies a partial update to a section. Composite uniqueness is
// re-checked whenever any component of (course, term, code) changes.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	compositeChanged := false
	if req.SectionCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.SectionCode))
		if code != section.SectionCode {
			section.SectionCode = code
			compositeChanged = true
		}
	}

	var newCourseID, newTermID *string
	if req.CourseID != nil && *req.CourseID != section.CourseID {
		newCourseID = req.CourseID
		section.CourseID = *req.CourseID
		compositeChanged = true
	}
	if req.TermID != nil && *req.TermID != section.TermID {
		newTermID = req.TermID
		section.TermID = *req.TermID
		compositeChanged = true
	}

	var newTeacherID *string
	if req.ClearTeacher {
		section.TeacherID = nil
	} else if req.TeacherID != nil {
		newTeacherID = req.TeacherID
		section.TeacherID = req.TeacherID
	}

	if err := s.checkRefs(ctx, newCourseID, newTermID, newTeacherID); err != nil {
		return nil, err
	}

	if compositeChanged {
		exists, err := s.repo.ExistsComposite(ctx, section.CourseID, section.TermID, section.SectionCode, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate section code")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "section code already used for this course and term")
		}
	}

	if err := s.repo.Update(ctx, section); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "section code already used for this course and term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	return section, nil
}

// Delete soft-deletes a section.
func (s *SectionService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	return nil
}

// checkRefs verifies each provided reference points at an active row. Nil
// references were not changed and need no check.
func (s *SectionService) checkRefs(ctx context.Context, courseID, termID, teacherID *string) error {
	if courseID != nil {
		if _, err := s.courses.FindByID(ctx, *courseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course")
		}
	}
	if termID != nil {
		if _, err := s.terms.FindByID(ctx, *termID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "term not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate term")
		}
	}
	if teacherID != nil {
		if _, err := s.teachers.FindByID(ctx, *teacherID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate teacher")
		}
	}
	return nil
}
