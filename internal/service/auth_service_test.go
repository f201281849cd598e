package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

func newAuthFixture(mail *captureMail) (*AuthService, *mockIdentity) {
	ids := newMockIdentity()
	svc := NewAuthService(ids, mail, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: 15 * time.Minute,
		Issuer:            "studentcrm",
	})
	return svc, ids
}

func TestLoginIssuesTokenWithClaims(t *testing.T) {
	svc, ids := newAuthFixture(&captureMail{})
	account, err := ids.CreateAccount(context.Background(), "admin@uni.edu", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, ids.AssignRole(context.Background(), account.ID, models.RoleAdmin))

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@uni.edu", Password: "secret-pass"})
	require.NoError(t, err)
	assert.True(t, resp.MustChangePassword, "fresh accounts carry the forced-change flag")
	assert.Equal(t, account.ID, resp.Account.ID)
	assert.Contains(t, resp.Account.Roles, models.RoleAdmin)

	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(resp.AccessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, account.ID, claims.AccountID)
	assert.Contains(t, claims.Roles, models.RoleAdmin)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, ids := newAuthFixture(&captureMail{})
	_, err := ids.CreateAccount(context.Background(), "admin@uni.edu", "secret-pass")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "admin@uni.edu", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials.Code))

	// unknown address reports the same error as a bad password
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@uni.edu", Password: "whatever"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials.Code))
}

func TestChangePasswordClearsForcedFlag(t *testing.T) {
	svc, ids := newAuthFixture(&captureMail{})
	account, err := ids.CreateAccount(context.Background(), "student@uni.edu", "temp-pass")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), account.ID, models.ChangePasswordRequest{
		CurrentPassword: "temp-pass",
		NewPassword:     "my-own-password",
	})
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@uni.edu", Password: "my-own-password"})
	require.NoError(t, err)
	assert.False(t, resp.MustChangePassword)
}

func TestForgotPasswordDoesNotLeakAccounts(t *testing.T) {
	mail := &captureMail{}
	svc, ids := newAuthFixture(mail)
	_, err := ids.CreateAccount(context.Background(), "known@uni.edu", "pass")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "known@uni.edu"}))
	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "unknown@uni.edu"}))

	require.Len(t, mail.sent, 1, "only the real account gets a token")
	assert.Equal(t, "known@uni.edu", mail.sent[0].To)
}

func TestResetPasswordWithTokenFromMailFlow(t *testing.T) {
	mail := &captureMail{}
	svc, ids := newAuthFixture(mail)
	account, err := ids.CreateAccount(context.Background(), "known@uni.edu", "old-pass")
	require.NoError(t, err)

	token, err := ids.GenerateResetToken(context.Background(), account.ID)
	require.NoError(t, err)

	err = svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "chosen-pass"})
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "known@uni.edu", Password: "chosen-pass"})
	require.NoError(t, err)
	assert.False(t, resp.MustChangePassword, "a self-chosen password is not temporary")

	err = svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "again"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}
