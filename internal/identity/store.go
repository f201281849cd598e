package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/studentcrm/studentcrm-api/internal/models"
	"github.com/studentcrm/studentcrm-api/pkg/database"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

type accountRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	UpdateEmail(ctx context.Context, id, email string) error
	UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool, issuedAt *time.Time) error
	Delete(ctx context.Context, id string) error
	EnsureRole(ctx context.Context, name string) (string, error)
	AssignRole(ctx context.Context, accountID, roleName string) error
	RolesFor(ctx context.Context, accountID string) ([]string, error)
}

// TokenStore persists one-shot password-reset tokens.
type TokenStore interface {
	Save(ctx context.Context, token, accountID string, ttl time.Duration) error
	// Claim consumes the token, returning the bound account id. A token can
	// be claimed at most once.
	Claim(ctx context.Context, token string) (string, error)
}

// Store owns login accounts and role assignment. It is a resource separate
// from the domain store: its single-call operations are individually atomic,
// and cross-store consistency is achieved by explicit compensation in the
// provisioning workflow, not by a shared transaction.
type Store struct {
	accounts accountRepository
	tokens   TokenStore
	tokenTTL time.Duration
	logger   *zap.Logger
}

// NewStore constructs the identity store.
func NewStore(accounts accountRepository, tokens TokenStore, tokenTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = 30 * time.Minute
	}
	return &Store{accounts: accounts, tokens: tokens, tokenTTL: tokenTTL, logger: logger}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount registers a new login identity with a temporary password. The
// account starts with mustChangePassword set and the issuance timestamp
// recorded.
func (s *Store) CreateAccount(ctx context.Context, email, passwordPlain string) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passwordPlain), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	account := &models.Account{
		Email:                     NormalizeEmail(email),
		PasswordHash:              string(hash),
		MustChangePassword:        true,
		TemporaryPasswordIssuedAt: &now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "this email is already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to create account")
	}
	return account, nil
}

// FindByEmail returns the account holding the address, or a not-found error.
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to look up account")
	}
	return s.withRoles(ctx, account)
}

// FindByID returns the account by id, or a not-found error.
func (s *Store) FindByID(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to look up account")
	}
	return s.withRoles(ctx, account)
}

// CheckPassword verifies a plaintext password against the stored hash.
func (s *Store) CheckPassword(account *models.Account, passwordPlain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(passwordPlain)) == nil
}

// ChangePassword replaces the password after verifying the current one and
// clears the temporary-password state.
func (s *Store) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	account, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.CheckPassword(account, currentPassword) {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password does not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.accounts.UpdatePassword(ctx, id, string(hash), false, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to update password")
	}
	return nil
}

// GenerateResetToken issues a one-shot reset token for the account.
func (s *Store) GenerateResetToken(ctx context.Context, accountID string) (string, error) {
	if _, err := s.FindByID(ctx, accountID); err != nil {
		return "", err
	}
	token := newResetToken()
	if err := s.tokens.Save(ctx, token, accountID, s.tokenTTL); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to store reset token")
	}
	return token, nil
}

// ResetPassword consumes a reset token and sets a new password. When
// temporary is true the account is flagged for a forced change on next login
// and the issuance timestamp is refreshed.
func (s *Store) ResetPassword(ctx context.Context, token, newPassword string, temporary bool) error {
	accountID, err := s.tokens.Claim(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "reset token is invalid or expired")
		}
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to claim reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	var issuedAt *time.Time
	if temporary {
		now := time.Now().UTC()
		issuedAt = &now
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, string(hash), temporary, issuedAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to update password")
	}
	return nil
}

// EnsureRole creates the named role if it does not exist yet.
func (s *Store) EnsureRole(ctx context.Context, name string) error {
	if _, err := s.accounts.EnsureRole(ctx, name); err != nil {
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to ensure role")
	}
	return nil
}

// AssignRole binds the named role to the account.
func (s *Store) AssignRole(ctx context.Context, accountID, roleName string) error {
	if err := s.accounts.AssignRole(ctx, accountID, roleName); err != nil {
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to assign role")
	}
	return nil
}

// UpdateEmail changes the account's login address.
func (s *Store) UpdateEmail(ctx context.Context, id, newEmail string) error {
	if err := s.accounts.UpdateEmail(ctx, id, NormalizeEmail(newEmail)); err != nil {
		if database.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "this email is already used")
		}
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to update account email")
	}
	return nil
}

// DeleteAccount hard-deletes the account. Used both for profile deletion and
// as compensation when provisioning fails after the account was created.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to delete account")
	}
	return nil
}

func (s *Store) withRoles(ctx context.Context, account *models.Account) (*models.Account, error) {
	roles, err := s.accounts.RolesFor(ctx, account.ID)
	if err != nil {
		s.logger.Warn("failed to load account roles", zap.String("account_id", account.ID), zap.Error(err))
		return account, nil
	}
	account.Roles = roles
	return account, nil
}
