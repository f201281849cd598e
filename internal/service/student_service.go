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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByStudentNo(ctx context.Context, studentNo, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SoftDelete(ctx context.Context, id string) error
}

type enrollmentLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	StudentNo string   `json:"student_no" validate:"required"`
	Name      string   `json:"name" validate:"required"`
	Surname   string   `json:"surname" validate:"required"`
	Email     string   `json:"email" validate:"required,email"`
	Phone     *string  `json:"phone"`
	Major     *string  `json:"major"`
	GPA       *float64 `json:"gpa" validate:"omitempty,gte=0,lte=4"`
}

// UpdateStudentRequest holds payload for updating students. Nil fields are
// left unchanged.
type UpdateStudentRequest struct {
	StudentNo *string  `json:"student_no" validate:"omitempty,min=1"`
	Name      *string  `json:"name" validate:"omitempty,min=1"`
	Surname   *string  `json:"surname" validate:"omitempty,min=1"`
	Email     *string  `json:"email" validate:"omitempty,email"`
	Phone     *string  `json:"phone"`
	Major     *string  `json:"major"`
	GPA       *float64 `json:"gpa" validate:"omitempty,gte=0,lte=4"`
}

// StudentService handles student profiles and their login accounts.
type StudentService struct {
	repo        studentRepository
	enrollments enrollmentLister
	identity    identityStore
	prov        *provisioner
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, enrollments enrollmentLister, ids identityStore, mail mailDispatcher, tempLength int, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:        repo,
		enrollments: enrollments,
		identity:    ids,
		prov:        newProvisioner(ids, mail, tempLength, logger),
		validator:   validate,
		logger:      logger,
	}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a student with account state and current enrollments.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: id, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	detail.Enrollments = enrollments
	return detail, nil
}

// Create provisions a login account and registers the student profile. The
// credentials email goes out only after the profile insert succeeded.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	req.StudentNo = strings.TrimSpace(req.StudentNo)
	exists, err := s.repo.ExistsByStudentNo(ctx, req.StudentNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student_no")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student_no already used")
	}

	provisioned, err := s.prov.Provision(ctx, req.Email, models.RoleStudent)
	if err != nil {
		return nil, err
	}

	student := &models.Student{
		StudentNo: req.StudentNo,
		Name:      req.Name,
		Surname:   req.Surname,
		Email:     provisioned.Account.Email,
		Phone:     req.Phone,
		Major:     req.Major,
		GPA:       req.GPA,
		AccountID: provisioned.Account.ID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		s.prov.Compensate(ctx, provisioned.Account.ID)
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student_no already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.prov.SendCredentials(student.Name+" "+student.Surname, student.Email, provisioned.TempPassword)
	return student, nil
}

// Update applies a partial update to the profile, keeping the login email in
// sync when it changes.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	student := detail.Student

	if req.StudentNo != nil && strings.TrimSpace(*req.StudentNo) != student.StudentNo {
		studentNo := strings.TrimSpace(*req.StudentNo)
		exists, err := s.repo.ExistsByStudentNo(ctx, studentNo, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student_no")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student_no already used")
		}
		student.StudentNo = studentNo
	}
	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.Surname != nil {
		student.Surname = *req.Surname
	}
	if req.Phone != nil {
		student.Phone = req.Phone
	}
	if req.Major != nil {
		student.Major = req.Major
	}
	if req.GPA != nil {
		student.GPA = req.GPA
	}
	oldEmail := student.Email
	if req.Email != nil {
		newEmail := identity.NormalizeEmail(*req.Email)
		if newEmail != student.Email {
			// Account email first: its unique index guards the address, and a
			// conflict there must abort before the profile row changes.
			if err := s.identity.UpdateEmail(ctx, student.AccountID, newEmail); err != nil {
				return nil, err
			}
			student.Email = newEmail
		}
	}

	if err := s.repo.Update(ctx, &student); err != nil {
		if student.Email != oldEmail {
			// Put the login email back so the account keeps matching the
			// profile row that is still on the old address.
			if revertErr := s.identity.UpdateEmail(ctx, student.AccountID, oldEmail); revertErr != nil {
				s.logger.Error("failed to revert account email after profile update error",
					zap.String("student_id", id),
					zap.String("account_id", student.AccountID),
					zap.Error(revertErr),
				)
			}
		}
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student_no already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &student, nil
}

// Delete soft-deletes the profile, then removes the login account. A failed
// account removal is reported but does not resurrect the profile.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if err := s.identity.DeleteAccount(ctx, detail.AccountID); err != nil {
		s.logger.Warn("student deleted but account removal failed",
			zap.String("student_id", id),
			zap.String("account_id", detail.AccountID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ResetPassword issues a fresh temporary password for the student's account
// and emails it.
func (s *StudentService) ResetPassword(ctx context.Context, id string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	tempPassword, err := s.prov.ResetToTemporary(ctx, detail.AccountID)
	if err != nil {
		return err
	}
	s.prov.SendPasswordReset(detail.Name+" "+detail.Surname, detail.Email, tempPassword)
	return nil
}
