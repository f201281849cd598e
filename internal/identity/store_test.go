package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

type mockAccountRepo struct {
	accounts map[string]models.Account
	roles    map[string][]string
	deleted  []string
	nextID   string
}

func (m *mockAccountRepo) ensure() {
	if m.accounts == nil {
		m.accounts = make(map[string]models.Account)
	}
	if m.roles == nil {
		m.roles = make(map[string][]string)
	}
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.ensure()
	for _, a := range m.accounts {
		if a.Email == email {
			account := a
			return &account, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	m.ensure()
	if a, ok := m.accounts[id]; ok {
		account := a
		return &account, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRepo) Create(ctx context.Context, account *models.Account) error {
	m.ensure()
	for _, a := range m.accounts {
		if a.Email == account.Email {
			return errDuplicate
		}
	}
	if account.ID == "" {
		account.ID = m.nextID
		if account.ID == "" {
			account.ID = "acct-1"
		}
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *mockAccountRepo) UpdateEmail(ctx context.Context, id, email string) error {
	m.ensure()
	a := m.accounts[id]
	a.Email = email
	m.accounts[id] = a
	return nil
}

func (m *mockAccountRepo) UpdatePassword(ctx context.Context, id, hash string, mustChange bool, issuedAt *time.Time) error {
	m.ensure()
	a, ok := m.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.PasswordHash = hash
	a.MustChangePassword = mustChange
	a.TemporaryPasswordIssuedAt = issuedAt
	m.accounts[id] = a
	return nil
}

func (m *mockAccountRepo) Delete(ctx context.Context, id string) error {
	m.ensure()
	delete(m.accounts, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAccountRepo) EnsureRole(ctx context.Context, name string) (string, error) {
	return "role-" + name, nil
}

func (m *mockAccountRepo) AssignRole(ctx context.Context, accountID, roleName string) error {
	m.ensure()
	m.roles[accountID] = append(m.roles[accountID], roleName)
	return nil
}

func (m *mockAccountRepo) RolesFor(ctx context.Context, accountID string) ([]string, error) {
	m.ensure()
	return m.roles[accountID], nil
}

var errDuplicate = &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}

func TestCreateAccountSetsTemporaryFlags(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo, NewMemoryTokenStore(), time.Minute, nil)

	account, err := store.CreateAccount(context.Background(), "  Ada.Lovelace@Uni.Edu ", "Temp-Pass-1")
	require.NoError(t, err)
	assert.Equal(t, "ada.lovelace@uni.edu", account.Email)
	assert.True(t, account.MustChangePassword)
	require.NotNil(t, account.TemporaryPasswordIssuedAt)
	assert.True(t, store.CheckPassword(account, "Temp-Pass-1"))
	assert.False(t, store.CheckPassword(account, "wrong"))
}

func TestCreateAccountDuplicateEmailConflicts(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo, NewMemoryTokenStore(), time.Minute, nil)

	_, err := store.CreateAccount(context.Background(), "taken@uni.edu", "pass-one")
	require.NoError(t, err)

	_, err = store.CreateAccount(context.Background(), "TAKEN@uni.edu", "pass-two")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo, NewMemoryTokenStore(), time.Minute, nil)
	account, err := store.CreateAccount(context.Background(), "student@uni.edu", "initial-pass")
	require.NoError(t, err)

	err = store.ChangePassword(context.Background(), account.ID, "bad-guess", "new-password")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials.Code))

	err = store.ChangePassword(context.Background(), account.ID, "initial-pass", "new-password")
	require.NoError(t, err)

	stored := repo.accounts[account.ID]
	assert.False(t, stored.MustChangePassword)
	assert.Nil(t, stored.TemporaryPasswordIssuedAt)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("new-password")))
}

func TestResetTokenIsSingleUse(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo, NewMemoryTokenStore(), time.Minute, nil)
	account, err := store.CreateAccount(context.Background(), "student@uni.edu", "initial-pass")
	require.NoError(t, err)

	token, err := store.GenerateResetToken(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, store.ResetPassword(context.Background(), token, "fresh-password", false))
	stored := repo.accounts[account.ID]
	assert.False(t, stored.MustChangePassword)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("fresh-password")))

	err = store.ResetPassword(context.Background(), token, "again", false)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}

func TestResetPasswordTemporaryFlagsAccount(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo, NewMemoryTokenStore(), time.Minute, nil)
	account, err := store.CreateAccount(context.Background(), "teacher@uni.edu", "initial-pass")
	require.NoError(t, err)
	require.NoError(t, store.ChangePassword(context.Background(), account.ID, "initial-pass", "settled-pass"))

	token, err := store.GenerateResetToken(context.Background(), account.ID)
	require.NoError(t, err)
	require.NoError(t, store.ResetPassword(context.Background(), token, "temp-again", true))

	stored := repo.accounts[account.ID]
	assert.True(t, stored.MustChangePassword)
	require.NotNil(t, stored.TemporaryPasswordIssuedAt)
}

func TestMemoryTokenStoreExpiry(t *testing.T) {
	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(context.Background(), "tok", "acct-1", -time.Second))

	_, err := store.Claim(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
