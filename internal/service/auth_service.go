package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
	"github.com/studentcrm/studentcrm-api/pkg/mailer"
)

type authIdentity interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	CheckPassword(account *models.Account, passwordPlain string) bool
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error
	GenerateResetToken(ctx context.Context, accountID string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string, temporary bool) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService provides login and password self-service on top of the
// identity store.
type AuthService struct {
	identity  authIdentity
	mail      mailDispatcher
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(ids authIdentity, mail mailDispatcher, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if mail == nil {
		mail = noopDispatcher{}
	}
	return &AuthService{identity: ids, mail: mail, validator: validate, logger: logger, config: config}
}

// Login authenticates an account and returns an access token. The response
// carries the must-change-password flag so clients can force the password
// screen before anything else.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	account, err := s.identity.FindByEmail(ctx, req.Email)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, err
	}
	if !s.identity.CheckPassword(account, req.Password) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	accessToken, issuedAt, err := s.generateAccessToken(account)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	return &models.LoginResponse{
		AccessToken:        accessToken,
		ExpiresIn:          int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:           issuedAt,
		MustChangePassword: account.MustChangePassword,
		Account: models.AccountInfo{
			ID:    account.ID,
			Email: account.Email,
			Roles: account.Roles,
		},
	}, nil
}

// ChangePassword replaces the caller's password after verifying the current
// one, clearing any forced-change state.
func (s *AuthService) ChangePassword(ctx context.Context, accountID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}
	return s.identity.ChangePassword(ctx, accountID, req.CurrentPassword, req.NewPassword)
}

// ForgotPassword emails a reset token to the account holding the address.
// Responds identically whether or not the address exists, so the endpoint
// cannot be used to probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	account, err := s.identity.FindByEmail(ctx, req.Email)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			return nil
		}
		return err
	}

	token, err := s.identity.GenerateResetToken(ctx, account.ID)
	if err != nil {
		return err
	}
	s.mail.Dispatch(resetTokenMessage(account.Email, token))
	return nil
}

// ResetPassword completes the token-based reset flow with a password the
// account holder chose; the result is not a temporary password.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return s.identity.ResetPassword(ctx, req.Token, req.NewPassword, false)
}

// Me returns the public account info for the given id.
func (s *AuthService) Me(ctx context.Context, accountID string) (*models.AccountInfo, error) {
	account, err := s.identity.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &models.AccountInfo{ID: account.ID, Email: account.Email, Roles: account.Roles}, nil
}

// ValidateToken parses a bearer token and returns its claims when valid.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(account *models.Account) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		AccountID: account.ID,
		Email:     account.Email,
		Roles:     account.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}

func resetTokenMessage(email, token string) mailer.Message {
	return mailer.Message{
		To:      email,
		Subject: "Password reset requested",
		HTMLBody: fmt.Sprintf(
			"<p>A password reset was requested for your account.</p><p>Reset token: <b>%s</b></p><p>If you did not request this, you can ignore this message.</p>",
			token,
		),
	}
}
