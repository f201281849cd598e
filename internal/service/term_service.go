package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studentcrm/studentcrm-api/internal/models"
	"github.com/studentcrm/studentcrm-api/pkg/database"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error)
	FindByID(ctx context.Context, id string) (*models.Term, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, term *models.Term) error
	Update(ctx context.Context, term *models.Term) error
	SoftDelete(ctx context.Context, id string) error
}

// CreateTermRequest holds payload for creating terms.
type CreateTermRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// UpdateTermRequest holds payload for updating terms. Nil fields are left
// unchanged.
type UpdateTermRequest struct {
	Name      *string    `json:"name" validate:"omitempty,min=1"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// TermService handles academic terms.
type TermService struct {
	repo      termRepository
	sections  sectionCounter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs the term service.
func NewTermService(repo termRepository, sections sectionCounter, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, sections: sections, validator: validate, logger: logger}
}

// List returns terms and pagination metadata.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.Term, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a term by id.
func (s *TermService) Get(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// Create registers a new term.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	req.Name = strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate term name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "term name already used")
	}

	term := &models.Term{Name: req.Name, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.repo.Create(ctx, term); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "term name already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	return term, nil
}

// Update applies a partial update to a term. The date ordering invariant is
// re-checked against the merged result.
func (s *TermService) Update(ctx context.Context, id string, req UpdateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}

	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != term.Name {
			exists, err := s.repo.ExistsByName(ctx, name, id)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate term name")
			}
			if exists {
				return nil, appErrors.Clone(appErrors.ErrConflict, "term name already used")
			}
			term.Name = name
		}
	}
	if req.StartDate != nil {
		term.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		term.EndDate = *req.EndDate
	}
	if !term.EndDate.After(term.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	if err := s.repo.Update(ctx, term); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "term name already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update term")
	}
	return term, nil
}

// Delete soft-deletes a term. Rejected while active sections still reference
// it.
func (s *TermService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	count, err := s.sections.CountActiveByTerm(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count term sections")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "term has active sections")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete term")
	}
	return nil
}
