package login

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/audit"
	"github.com/tendant/simple-lms/pkg/device"
	"github.com/tendant/simple-lms/pkg/devicepolicy"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/sessions"
	"github.com/tendant/simple-lms/pkg/settings"
	"github.com/tendant/simple-lms/pkg/tokengenerator"
)

const password = "correct-horse"

type fixture struct {
	accounts *account.Service
	devices  *device.InMemRepository
	creds    *sessions.InMemRepository
	settings *settings.Service
	audit    *audit.MemorySink
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: account.NewService(account.NewInMemRepository(), account.WithBcryptCost(4)),
		devices:  device.NewInMemRepository(),
		creds:    sessions.NewInMemRepository(),
		settings: settings.NewService(settings.NewInMemStore(), settings.Policy{MaxDevicesPerStudent: 2, EnforcementEnabled: true}),
		audit:    &audit.MemorySink{},
	}
	issuer := sessions.NewIssuer(f.creds, tokengenerator.NewJwtTokenGenerator("secret", "simple-lms", "simple-lms"))
	engine := devicepolicy.NewEngine(f.devices, f.settings, issuer, devicepolicy.WithAudit(f.audit))
	f.service = NewService(f.accounts, engine, issuer, WithAudit(f.audit))
	return f
}

func (f *fixture) createAccount(t *testing.T, email string, role account.Role) account.Account {
	t.Helper()
	acct, err := f.accounts.CreateAccount(context.Background(), email, password, role)
	require.NoError(t, err)
	return acct
}

func TestLogin_Student(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.createAccount(t, "kid@school.test", account.RoleStudent)

	res, err := f.service.Login(ctx, LoginRequest{Email: "Kid@School.test", Password: password, Fingerprint: "fp-a", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, student.ID, res.Account.ID)
	assert.True(t, res.Admission.NewDevice)
	assert.NotEmpty(t, res.AccessToken.Token)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Contains(t, f.audit.Types(), audit.EventLoginSucceeded)

	records, err := f.devices.ListByAccount(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.0.1", records[0].IPAddress)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, "kid@school.test", account.RoleStudent)

	_, err := f.service.Login(ctx, LoginRequest{Email: "kid@school.test", Password: "wrong-password", Fingerprint: "fp-a"})
	assert.ErrorIs(t, err, lmserrors.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, LoginRequest{Email: "nobody@school.test", Password: password, Fingerprint: "fp-a"})
	assert.ErrorIs(t, err, lmserrors.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, LoginRequest{Email: " ", Password: password})
	assert.ErrorIs(t, err, lmserrors.ErrInvalidCredentials)
}

func TestLogin_RejectedByPolicyIssuesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.settings.SetMaxDevicesPerStudent(ctx, 1))
	student := f.createAccount(t, "kid@school.test", account.RoleStudent)

	_, err := f.service.Login(ctx, LoginRequest{Email: "kid@school.test", Password: password, Fingerprint: "fp-a"})
	require.NoError(t, err)

	_, err = f.service.Login(ctx, LoginRequest{Email: "kid@school.test", Password: password, Fingerprint: "fp-b"})
	assert.ErrorIs(t, err, lmserrors.ErrDeviceLimitExceeded)
	assert.Equal(t, 1, f.creds.Count(student.ID))
	assert.Equal(t, 1, f.creds.CountLive(student.ID, time.Now()), "a rejected login keeps the existing session")
}

func TestRefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAccount(t, "kid@school.test", account.RoleStudent)

	res, err := f.service.Login(ctx, LoginRequest{Email: "kid@school.test", Password: password, Fingerprint: "fp-a"})
	require.NoError(t, err)

	access, err := f.service.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access.Token)

	require.NoError(t, f.service.Logout(ctx, res.RefreshToken))
	_, err = f.service.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, lmserrors.ErrSessionExpired)

	_, err = f.service.Refresh(ctx, "")
	assert.ErrorIs(t, err, lmserrors.ErrSessionExpired)
	assert.NoError(t, f.service.Logout(ctx, ""))
}
