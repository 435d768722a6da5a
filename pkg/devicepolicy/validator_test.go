package devicepolicy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/audit"
	"github.com/tendant/simple-lms/pkg/client"
	"github.com/tendant/simple-lms/pkg/device"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
)

func TestValidate_SessionExpiredElsewhere(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.login(accountID, account.RoleStudent, "fp-0")
	require.NoError(t, err)
	subj := Subject{AccountID: accountID, Role: account.RoleStudent, Fingerprint: "fp-0"}
	require.NoError(t, f.validator.Validate(ctx, subj, "fp-0"))

	_, err = f.issuer.RevokeAll(ctx, accountID)
	require.NoError(t, err)

	err = f.validator.Validate(ctx, subj, "fp-0")
	assert.ErrorIs(t, err, lmserrors.ErrSessionExpiredElsewhere)
}

func TestValidate_NewestSessionPasses(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.login(accountID, account.RoleStudent, "fp-0")
	require.NoError(t, err)
	_, err = f.login(accountID, account.RoleStudent, "fp-1")
	require.NoError(t, err)

	err = f.validator.Validate(ctx, Subject{AccountID: accountID, Role: account.RoleStudent, Fingerprint: "fp-1"}, "fp-1")
	assert.NoError(t, err)
}

func TestValidate_FingerprintMissing(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.login(accountID, account.RoleStudent, "fp-0")
	require.NoError(t, err)

	err = f.validator.Validate(ctx, Subject{AccountID: accountID, Role: account.RoleStudent, Fingerprint: "fp-0"}, "")
	assert.ErrorIs(t, err, lmserrors.ErrDeviceSessionInvalid)

	// absent fingerprint does not revoke
	assert.Equal(t, 1, f.creds.CountLive(accountID, time.Now()))
}

func TestValidate_FingerprintMismatchRevokesAll(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	accountID := uuid.New()

	pair, err := f.login(accountID, account.RoleStudent, "fp-0")
	require.NoError(t, err)

	err = f.validator.Validate(ctx, Subject{AccountID: accountID, Role: account.RoleStudent, Fingerprint: "fp-0"}, "fp-other")
	assert.ErrorIs(t, err, lmserrors.ErrDeviceSessionInvalid)
	assert.Equal(t, 0, f.creds.CountLive(accountID, time.Now()))
	assert.Contains(t, f.audit.Types(), audit.EventDeviceMismatch)

	_, err = f.issuer.Renew(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, lmserrors.ErrSessionExpired)
}

func TestValidate_EnforcementDisabledSkipsFingerprint(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.login(accountID, account.RoleStudent, "fp-0")
	require.NoError(t, err)
	require.NoError(t, f.settings.SetEnforcementEnabled(ctx, false))

	subj := Subject{AccountID: accountID, Role: account.RoleStudent, Fingerprint: "fp-0"}
	assert.NoError(t, f.validator.Validate(ctx, subj, "fp-other"))
	assert.NoError(t, f.validator.Validate(ctx, subj, ""))

	// liveness still applies to students
	_, err = f.issuer.RevokeAll(ctx, accountID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.validator.Validate(ctx, subj, "fp-0"), lmserrors.ErrSessionExpiredElsewhere)
}

func TestValidate_UnboundClaimPasses(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.login(accountID, account.RoleStudent, "fp-0")
	require.NoError(t, err)

	err = f.validator.Validate(ctx, Subject{AccountID: accountID, Role: account.RoleStudent}, "anything")
	assert.NoError(t, err)
}

type brokenSessions struct{ revoked int }

func (b *brokenSessions) RevokeAll(context.Context, uuid.UUID) (int64, error) {
	b.revoked++
	return 0, errors.New("db down")
}

func (b *brokenSessions) HasLiveSession(context.Context, uuid.UUID) (bool, error) {
	return false, errors.New("db down")
}

func TestValidate_InfrastructureErrorsFailOpen(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	subj := Subject{AccountID: uuid.New(), Role: account.RoleStudent, Fingerprint: "fp-0"}

	t.Run("session store down", func(t *testing.T) {
		v := NewValidator(f.settings, &brokenSessions{})
		assert.NoError(t, v.Validate(ctx, subj, "fp-0"))
	})

	t.Run("settings store down", func(t *testing.T) {
		v := NewValidator(failingPolicy{}, f.issuer)
		_, err := f.login(subj.AccountID, account.RoleStudent, "fp-0")
		require.NoError(t, err)
		assert.NoError(t, v.Validate(ctx, subj, "fp-other"))
	})

	t.Run("policy failure still closed when revoke fails", func(t *testing.T) {
		sessions := &brokenSessions{}
		v := NewValidator(f.settings, sessions)
		err := v.Validate(ctx, subj, "fp-other")
		assert.ErrorIs(t, err, lmserrors.ErrDeviceSessionInvalid)
		assert.Equal(t, 1, sessions.revoked)
	})
}

func newMiddlewareRouter(v *Validator, devices ActivityToucher, user *client.AuthUser) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != nil {
				r = r.WithContext(client.WithAuthUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(v.Middleware(device.DefaultDeviceHeader, devices))
	r.Get("/protected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.login(accountID, account.RoleStudent, "fp-0")
	require.NoError(t, err)
	user := &client.AuthUser{AccountID: accountID, Role: account.RoleStudent, Fingerprint: "fp-0"}

	t.Run("no subject", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newMiddlewareRouter(f.validator, f.devices, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("matching header touches activity", func(t *testing.T) {
		records, err := f.devices.ListByAccount(ctx, accountID)
		require.NoError(t, err)
		before := records[0].LastActiveAt

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(device.DefaultDeviceHeader, "fp-0")
		rec := httptest.NewRecorder()
		newMiddlewareRouter(f.validator, f.devices, user).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		records, err = f.devices.ListByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.False(t, records[0].LastActiveAt.Before(before))
	})

	t.Run("no device information", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.RemoteAddr = ""
		rec := httptest.NewRecorder()
		newMiddlewareRouter(f.validator, f.devices, user).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), string(lmserrors.ErrCodeDeviceSessionInvalid))
		assert.Equal(t, 1, f.creds.CountLive(accountID, time.Now()))
	})

	t.Run("derived fingerprint accepted without header", func(t *testing.T) {
		other := uuid.New()
		derived := device.DeriveFingerprint("agent", "192.0.2.1")
		_, err := f.login(other, account.RoleStudent, derived)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("User-Agent", "agent")
		req.RemoteAddr = "192.0.2.1:4000"
		rec := httptest.NewRecorder()
		bound := &client.AuthUser{AccountID: other, Role: account.RoleStudent, Fingerprint: derived}
		newMiddlewareRouter(f.validator, f.devices, bound).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("derived fingerprint from another device revokes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("User-Agent", "curl/8.0")
		req.RemoteAddr = "203.0.113.9:5000"
		rec := httptest.NewRecorder()
		newMiddlewareRouter(f.validator, f.devices, user).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), string(lmserrors.ErrCodeDeviceSessionInvalid))
		assert.Equal(t, 0, f.creds.CountLive(accountID, time.Now()))
	})

	t.Run("different header", func(t *testing.T) {
		_, err := f.login(accountID, account.RoleStudent, "fp-0")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(device.DefaultDeviceHeader, "fp-stolen")
		rec := httptest.NewRecorder()
		newMiddlewareRouter(f.validator, f.devices, user).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), string(lmserrors.ErrCodeDeviceSessionInvalid))
		assert.Equal(t, 0, f.creds.CountLive(accountID, time.Now()))
	})
}
