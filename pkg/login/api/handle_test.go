package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/client"
	"github.com/tendant/simple-lms/pkg/device"
	"github.com/tendant/simple-lms/pkg/devicepolicy"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/login"
	"github.com/tendant/simple-lms/pkg/sessions"
	"github.com/tendant/simple-lms/pkg/settings"
	"github.com/tendant/simple-lms/pkg/tokengenerator"
)

const (
	secret   = "test-secret"
	password = "correct-horse"
)

type testServer struct {
	router   chi.Router
	accounts *account.Service
	settings *settings.Service
	devices  *device.InMemRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		accounts: account.NewService(account.NewInMemRepository(), account.WithBcryptCost(4)),
		settings: settings.NewService(settings.NewInMemStore(), settings.Policy{MaxDevicesPerStudent: 2, EnforcementEnabled: true}),
		devices:  device.NewInMemRepository(),
	}
	issuer := sessions.NewIssuer(sessions.NewInMemRepository(), tokengenerator.NewJwtTokenGenerator(secret, "simple-lms", "simple-lms"))
	engine := devicepolicy.NewEngine(ts.devices, ts.settings, issuer)
	validator := devicepolicy.NewValidator(ts.settings, issuer)
	h := NewHandle(login.NewService(ts.accounts, engine, issuer))

	r := chi.NewRouter()
	r.Mount("/api/auth", h.Routes(nil))
	r.Group(func(r chi.Router) {
		r.Use(client.Authenticator(client.NewJWTAuth(secret, "simple-lms", "simple-lms")))
		r.Use(validator.Middleware(device.DefaultDeviceHeader, ts.devices))
		r.Get("/api/me", h.Me)
	})
	ts.router = r
	return ts
}

func (ts *testServer) createAccount(t *testing.T, email string, role account.Role) {
	t.Helper()
	_, err := ts.accounts.CreateAccount(context.Background(), email, password, role)
	require.NoError(t, err)
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) login(t *testing.T, email, deviceID string) (LoginResponse, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+email+`","password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	if deviceID != "" {
		req.Header.Set(device.DefaultDeviceHeader, deviceID)
	}
	rr := ts.do(req)
	var resp LoginResponse
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return resp, rr
}

func (ts *testServer) me(accessToken, deviceID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if deviceID != "" {
		req.Header.Set(device.DefaultDeviceHeader, deviceID)
	}
	return ts.do(req)
}

func (ts *testServer) refresh(refreshToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token":"`+refreshToken+`"}`))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) lmserrors.ErrorCode {
	t.Helper()
	var resp lmserrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Code
}

func TestLogin_SetsCookies(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)

	resp, rr := ts.login(t, "kid@school.test", "tablet-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "student", resp.Role)
	assert.True(t, resp.NewDevice)

	names := map[string]bool{}
	for _, c := range rr.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	assert.True(t, names[client.ACCESS_TOKEN_NAME])
	assert.True(t, names[REFRESH_TOKEN_NAME])
}

func TestLogin_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	rr := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"kid@school.test","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeInvalidCredentials, errorCode(t, rr))
}

// A credential works only from the device it was issued to. Presenting it from another
// device revokes the whole session family, so the refresh token dies with it.
func TestFingerprintRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)

	resp, rr := ts.login(t, "kid@school.test", "tablet-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.me(resp.AccessToken, "tablet-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.me(resp.AccessToken, "laptop-9")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeDeviceSessionInvalid, errorCode(t, rr))

	rr = ts.refresh(resp.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeSessionExpired, errorCode(t, rr))

	rr = ts.me(resp.AccessToken, "tablet-1")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeSessionExpiredElsewhere, errorCode(t, rr))
}

func TestDerivedFingerprintRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)

	resp, rr := ts.login(t, "kid@school.test", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// httptest requests share the same remote address and no user agent
	rr = ts.me(resp.AccessToken, "")
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

// Without a device header the user-agent and IP are the fingerprint, so a token replayed
// from another machine is a device change and kills the session family.
func TestDerivedFingerprintMismatchRevokes(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"kid@school.test","password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) Safari")
	rr := ts.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	req.Header.Set("User-Agent", "curl/8.0")
	req.RemoteAddr = "203.0.113.9:41000"
	rr = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeDeviceSessionInvalid, errorCode(t, rr))

	rr = ts.refresh(resp.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeSessionExpired, errorCode(t, rr))
}

func TestStudentSingleSession(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)

	first, rr := ts.login(t, "kid@school.test", "tablet-1")
	require.Equal(t, http.StatusOK, rr.Code)
	second, rr := ts.login(t, "kid@school.test", "laptop-2")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.refresh(first.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeSessionExpired, errorCode(t, rr))

	rr = ts.refresh(second.RefreshToken)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.me(second.AccessToken, "laptop-2")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNonStudentsAreExempt(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "teacher@school.test", account.RoleTeacher)
	require.NoError(t, ts.settings.SetMaxDevicesPerStudent(context.Background(), 1))

	var logins []LoginResponse
	for _, dev := range []string{"desk", "phone", "tablet"} {
		resp, rr := ts.login(t, "teacher@school.test", dev)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		logins = append(logins, resp)
	}

	for _, resp := range logins {
		assert.Equal(t, http.StatusOK, ts.refresh(resp.RefreshToken).Code)
		assert.Equal(t, http.StatusOK, ts.me(resp.AccessToken, "some-other-device").Code)
	}
}

func TestDeviceLimitOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)
	require.NoError(t, ts.settings.SetMaxDevicesPerStudent(context.Background(), 1))

	_, rr := ts.login(t, "kid@school.test", "tablet-1")
	require.Equal(t, http.StatusOK, rr.Code)

	_, rr = ts.login(t, "kid@school.test", "laptop-2")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, lmserrors.ErrCodeDeviceLimitExceeded, errorCode(t, rr))
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "kid@school.test", account.RoleStudent)

	resp, rr := ts.login(t, "kid@school.test", "tablet-1")
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: REFRESH_TOKEN_NAME, Value: resp.RefreshToken})
	rr = ts.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, http.StatusUnauthorized, ts.refresh(resp.RefreshToken).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.me(resp.AccessToken, "tablet-1").Code)
}
