package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studentcrm/studentcrm-api/internal/identity"
	"github.com/studentcrm/studentcrm-api/internal/models"
	"github.com/studentcrm/studentcrm-api/pkg/database"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

type coordinatorRepository interface {
	List(ctx context.Context, filter models.CoordinatorFilter) ([]models.Coordinator, int, error)
	FindByID(ctx context.Context, id string) (*models.Coordinator, error)
	ExistsByCoordinatorNo(ctx context.Context, coordinatorNo, excludeID string) (bool, error)
	Create(ctx context.Context, coordinator *models.Coordinator) error
	Update(ctx context.Context, coordinator *models.Coordinator) error
	SoftDelete(ctx context.Context, id string) error
}

// CreateCoordinatorRequest holds payload for creating coordinators.
type CreateCoordinatorRequest struct {
	CoordinatorNo string  `json:"coordinator_no" validate:"required"`
	FullName      string  `json:"full_name" validate:"required"`
	Email         string  `json:"email" validate:"required,email"`
	Department    *string `json:"department"`
}

// UpdateCoordinatorRequest holds payload for updating coordinators. Nil
// fields are left unchanged.
type UpdateCoordinatorRequest struct {
	CoordinatorNo *string `json:"coordinator_no" validate:"omitempty,min=1"`
	FullName      *string `json:"full_name" validate:"omitempty,min=1"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Department    *string `json:"department"`
}

// CoordinatorService handles coordinator profiles and their login accounts.
type CoordinatorService struct {
	repo      coordinatorRepository
	identity  identityStore
	prov      *provisioner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCoordinatorService constructs the coordinator service.
func NewCoordinatorService(repo coordinatorRepository, ids identityStore, mail mailDispatcher, tempLength int, validate *validator.Validate, logger *zap.Logger) *CoordinatorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoordinatorService{
		repo:      repo,
		identity:  ids,
		prov:      newProvisioner(ids, mail, tempLength, logger),
		validator: validate,
		logger:    logger,
	}
}

// List returns coordinators and pagination metadata.
func (s *CoordinatorService) List(ctx context.Context, filter models.CoordinatorFilter) ([]models.Coordinator, *models.Pagination, error) {
	coordinators, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list coordinators")
	}
	return coordinators, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a coordinator by id.
func (s *CoordinatorService) Get(ctx context.Context, id string) (*models.Coordinator, error) {
	coordinator, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coordinator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coordinator")
	}
	return coordinator, nil
}

// Create provisions a login account and registers the coordinator profile.
func (s *CoordinatorService) Create(ctx context.Context, req CreateCoordinatorRequest) (*models.Coordinator, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coordinator payload")
	}

	req.CoordinatorNo = strings.TrimSpace(req.CoordinatorNo)
	exists, err := s.repo.ExistsByCoordinatorNo(ctx, req.CoordinatorNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate coordinator_no")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "coordinator_no already used")
	}

	provisioned, err := s.prov.Provision(ctx, req.Email, models.RoleCoordinator)
	if err != nil {
		return nil, err
	}

	coordinator := &models.Coordinator{
		CoordinatorNo: req.CoordinatorNo,
		FullName:      req.FullName,
		Email:         provisioned.Account.Email,
		Department:    req.Department,
		AccountID:     provisioned.Account.ID,
	}
	if err := s.repo.Create(ctx, coordinator); err != nil {
		s.prov.Compensate(ctx, provisioned.Account.ID)
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "coordinator_no already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create coordinator")
	}

	s.prov.SendCredentials(coordinator.FullName, coordinator.Email, provisioned.TempPassword)
	return coordinator, nil
}

// Update applies a partial update to the profile.
func (s *CoordinatorService) Update(ctx context.Context, id string, req UpdateCoordinatorRequest) (*models.Coordinator, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coordinator payload")
	}

	coordinator, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coordinator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coordinator")
	}

	if req.CoordinatorNo != nil && strings.TrimSpace(*req.CoordinatorNo) != coordinator.CoordinatorNo {
		coordinatorNo := strings.TrimSpace(*req.CoordinatorNo)
		exists, err := s.repo.ExistsByCoordinatorNo(ctx, coordinatorNo, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate coordinator_no")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "coordinator_no already used")
		}
		coordinator.CoordinatorNo = coordinatorNo
	}
	if req.FullName != nil {
		coordinator.FullName = *req.FullName
	}
	if req.Department != nil {
		coordinator.Department = req.Department
	}
	oldEmail := coordinator.Email
	if req.Email != nil {
		newEmail := identity.NormalizeEmail(*req.Email)
		if newEmail != coordinator.Email {
			if err := s.identity.UpdateEmail(ctx, coordinator.AccountID, newEmail); err != nil {
				return nil, err
			}
			coordinator.Email = newEmail
		}
	}

	if err := s.repo.Update(ctx, coordinator); err != nil {
		if coordinator.Email != oldEmail {
			if revertErr := s.identity.UpdateEmail(ctx, coordinator.AccountID, oldEmail); revertErr != nil {
				s.logger.Error("failed to revert account email after profile update error",
					zap.String("coordinator_id", id),
					zap.String("account_id", coordinator.AccountID),
					zap.Error(revertErr),
				)
			}
		}
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "coordinator_no already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update coordinator")
	}
	return coordinator, nil
}

// Delete soft-deletes the profile, then removes the login account.
func (s *CoordinatorService) Delete(ctx context.Context, id string) error {
	coordinator, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coordinator not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coordinator")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete coordinator")
	}
	if err := s.identity.DeleteAccount(ctx, coordinator.AccountID); err != nil {
		s.logger.Warn("coordinator deleted but account removal failed",
			zap.String("coordinator_id", id),
			zap.String("account_id", coordinator.AccountID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ResetPassword issues a fresh temporary password for the coordinator's
// account and emails it.
func (s *CoordinatorService) ResetPassword(ctx context.Context, id string) error {
	coordinator, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coordinator not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coordinator")
	}

	tempPassword, err := s.prov.ResetToTemporary(ctx, coordinator.AccountID)
	if err != nil {
		return err
	}
	s.prov.SendPasswordReset(coordinator.FullName, coordinator.Email, tempPassword)
	return nil
}
