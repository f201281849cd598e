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

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ExistsByStaffNo(ctx context.Context, staffNo, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	SoftDeleteAndUnassignSections(ctx context.Context, id string) error
}

// CreateTeacherRequest holds payload for creating teachers.
type CreateTeacherRequest struct {
	StaffNo string  `json:"staff_no" validate:"required"`
	Name    string  `json:"name" validate:"required"`
	Surname string  `json:"surname" validate:"required"`
	Email   string  `json:"email" validate:"required,email"`
	Phone   *string `json:"phone"`
}

// UpdateTeacherRequest holds payload for updating teachers. Nil fields are
// left unchanged.
type UpdateTeacherRequest struct {
	StaffNo *string `json:"staff_no" validate:"omitempty,min=1"`
	Name    *string `json:"name" validate:"omitempty,min=1"`
	Surname *string `json:"surname" validate:"omitempty,min=1"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone"`
}

// TeacherService handles teacher profiles and their login accounts.
type TeacherService struct {
	repo      teacherRepository
	identity  identityStore
	prov      *provisioner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs the teacher service.
func NewTeacherService(repo teacherRepository, ids identityStore, mail mailDispatcher, tempLength int, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{
		repo:      repo,
		identity:  ids,
		prov:      newProvisioner(ids, mail, tempLength, logger),
		validator: validate,
		logger:    logger,
	}
}

// List returns teachers and pagination metadata.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create provisions a login account and registers the teacher profile.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	req.StaffNo = strings.TrimSpace(req.StaffNo)
	exists, err := s.repo.ExistsByStaffNo(ctx, req.StaffNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate staff_no")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "staff_no already used")
	}

	provisioned, err := s.prov.Provision(ctx, req.Email, models.RoleTeacher)
	if err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		StaffNo:   req.StaffNo,
		Name:      req.Name,
		Surname:   req.Surname,
		Email:     provisioned.Account.Email,
		Phone:     req.Phone,
		AccountID: provisioned.Account.ID,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		s.prov.Compensate(ctx, provisioned.Account.ID)
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "staff_no already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.prov.SendCredentials(teacher.Name+" "+teacher.Surname, teacher.Email, provisioned.TempPassword)
	return teacher, nil
}

// Update applies a partial update to the profile.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if req.StaffNo != nil && strings.TrimSpace(*req.StaffNo) != teacher.StaffNo {
		staffNo := strings.TrimSpace(*req.StaffNo)
		exists, err := s.repo.ExistsByStaffNo(ctx, staffNo, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate staff_no")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "staff_no already used")
		}
		teacher.StaffNo = staffNo
	}
	if req.Name != nil {
		teacher.Name = *req.Name
	}
	if req.Surname != nil {
		teacher.Surname = *req.Surname
	}
	if req.Phone != nil {
		teacher.Phone = req.Phone
	}
	oldEmail := teacher.Email
	if req.Email != nil {
		newEmail := identity.NormalizeEmail(*req.Email)
		if newEmail != teacher.Email {
			if err := s.identity.UpdateEmail(ctx, teacher.AccountID, newEmail); err != nil {
				return nil, err
			}
			teacher.Email = newEmail
		}
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		if teacher.Email != oldEmail {
			if revertErr := s.identity.UpdateEmail(ctx, teacher.AccountID, oldEmail); revertErr != nil {
				s.logger.Error("failed to revert account email after profile update error",
					zap.String("teacher_id", id),
					zap.String("account_id", teacher.AccountID),
					zap.Error(revertErr),
				)
			}
		}
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "staff_no already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// Delete soft-deletes the profile and unassigns the teacher from all active
// sections in the same transaction, then removes the login account.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if err := s.repo.SoftDeleteAndUnassignSections(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	if err := s.identity.DeleteAccount(ctx, teacher.AccountID); err != nil {
		s.logger.Warn("teacher deleted but account removal failed",
			zap.String("teacher_id", id),
			zap.String("account_id", teacher.AccountID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ResetPassword issues a fresh temporary password for the teacher's account
// and emails it.
func (s *TeacherService) ResetPassword(ctx context.Context, id string) error {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	tempPassword, err := s.prov.ResetToTemporary(ctx, teacher.AccountID)
	if err != nil {
		return err
	}
	s.prov.SendPasswordReset(teacher.Name+" "+teacher.Surname, teacher.Email, tempPassword)
	return nil
}
