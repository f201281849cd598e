package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
	"github.com/studentcrm/studentcrm-api/pkg/mailer"
	"github.com/studentcrm/studentcrm-api/pkg/password"
)

// identityStore is the slice of the identity subsystem the profile services
// depend on. Identity writes are individually atomic but do not share a
// transaction with the domain store; provisioning compensates explicitly.
type identityStore interface {
	CreateAccount(ctx context.Context, email, passwordPlain string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	EnsureRole(ctx context.Context, name string) error
	AssignRole(ctx context.Context, accountID, roleName string) error
	UpdateEmail(ctx context.Context, id, newEmail string) error
	DeleteAccount(ctx context.Context, id string) error
	GenerateResetToken(ctx context.Context, accountID string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string, temporary bool) error
}

// mailDispatcher enqueues a notification for async delivery. Enqueueing never
// fails; delivery errors are logged by the pool.
type mailDispatcher interface {
	Dispatch(msg mailer.Message)
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(mailer.Message) {}

// provisioner runs the account half of creating a profile: role, temporary
// password, account, role assignment. The caller inserts the profile row and
// invokes Compensate if that insert fails.
type provisioner struct {
	identity   identityStore
	mail       mailDispatcher
	tempLength int
	logger     *zap.Logger
}

type provisionedAccount struct {
	Account      *models.Account
	TempPassword string
}

func newProvisioner(identity identityStore, mail mailDispatcher, tempLength int, logger *zap.Logger) *provisioner {
	if mail == nil {
		mail = noopDispatcher{}
	}
	if tempLength <= 0 {
		tempLength = password.DefaultTempLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &provisioner{identity: identity, mail: mail, tempLength: tempLength, logger: logger}
}

// Provision creates a login account with the given role and a generated
// temporary password. Natural-key uniqueness of the profile is the caller's
// concern and must be checked before this runs.
func (p *provisioner) Provision(ctx context.Context, email, role string) (*provisionedAccount, error) {
	if _, err := p.identity.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "this email is already used")
	} else if !appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
		return nil, err
	}

	if err := p.identity.EnsureRole(ctx, role); err != nil {
		return nil, err
	}

	tempPassword, err := password.Temporary(p.tempLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate temporary password")
	}

	account, err := p.identity.CreateAccount(ctx, email, tempPassword)
	if err != nil {
		return nil, err
	}

	if err := p.identity.AssignRole(ctx, account.ID, role); err != nil {
		p.Compensate(ctx, account.ID)
		return nil, err
	}

	return &provisionedAccount{Account: account, TempPassword: tempPassword}, nil
}

// Compensate removes an account created earlier in the workflow after a
// later step failed. A failed compensation leaves an orphan login with no
// profile; it is logged loudly but cannot fail the caller any further.
func (p *provisioner) Compensate(ctx context.Context, accountID string) {
	if err := p.identity.DeleteAccount(ctx, accountID); err != nil {
		p.logger.Error("provisioning compensation failed, orphan account left behind",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}

// ResetToTemporary issues a fresh temporary password through the token-based
// reset flow and flags the account for a forced change on next login.
func (p *provisioner) ResetToTemporary(ctx context.Context, accountID string) (string, error) {
	tempPassword, err := password.Temporary(p.tempLength)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate temporary password")
	}
	token, err := p.identity.GenerateResetToken(ctx, accountID)
	if err != nil {
		return "", err
	}
	if err := p.identity.ResetPassword(ctx, token, tempPassword, true); err != nil {
		return "", err
	}
	return tempPassword, nil
}

// SendCredentials dispatches the welcome email carrying the temporary
// password. Runs after the profile insert committed; never rolls it back.
func (p *provisioner) SendCredentials(name, email, tempPassword string) {
	p.mail.Dispatch(mailer.Message{
		To:      email,
		Subject: "Your account is ready",
		HTMLBody: fmt.Sprintf(
			"<p>Hello %s,</p><p>Your account has been created.</p><p>Login: <b>%s</b><br>Temporary password: <b>%s</b></p><p>You will be asked to choose a new password on first login.</p>",
			name, email, tempPassword,
		),
	})
}

// SendPasswordReset dispatches the notification for an admin-issued reset.
func (p *provisioner) SendPasswordReset(name, email, tempPassword string) {
	p.mail.Dispatch(mailer.Message{
		To:      email,
		Subject: "Your password was reset",
		HTMLBody: fmt.Sprintf(
			"<p>Hello %s,</p><p>Your password has been reset.</p><p>Temporary password: <b>%s</b></p><p>You will be asked to choose a new password on next login.</p>",
			name, tempPassword,
		),
	})
}
