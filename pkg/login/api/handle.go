package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/client"
	"github.com/tendant/simple-lms/pkg/device"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/login"
)

const (
	REFRESH_TOKEN_NAME = "refresh_token"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Status           string    `json:"status"`
	AccountID        uuid.UUID `json:"account_id"`
	Role             string    `json:"role"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	NewDevice        bool      `json:"new_device,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type Handle struct {
	loginService *login.Service
	deviceHeader string
	cookieSecure bool
}

type Option func(*Handle)

// WithDeviceHeader sets the header clients send their device identifier in
func WithDeviceHeader(header string) Option {
	return func(h *Handle) { h.deviceHeader = header }
}

// WithSecureCookies marks token cookies Secure
func WithSecureCookies(secure bool) Option {
	return func(h *Handle) { h.cookieSecure = secure }
}

func NewHandle(loginService *login.Service, opts ...Option) Handle {
	h := Handle{
		loginService: loginService,
		deviceHeader: device.DefaultDeviceHeader,
	}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// Routes returns the /api/auth routes. throttle, when not nil, wraps the login route.
func (h Handle) Routes(throttle func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	if throttle != nil {
		r.With(throttle).Post("/login", h.PostLogin)
	} else {
		r.Post("/login", h.PostLogin)
	}
	r.Post("/refresh", h.PostRefresh)
	r.Post("/logout", h.PostLogout)
	return r
}

func (h Handle) setTokenCookie(w http.ResponseWriter, tokenName, tokenValue string, expire time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenName,
		Path:     "/",
		Value:    tokenValue,
		Expires:  expire,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h Handle) clearTokenCookie(w http.ResponseWriter, tokenName string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenName,
		Path:     "/",
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshTokenFromRequest reads the refresh token from the body, falling back to the cookie
func refreshTokenFromRequest(r *http.Request) string {
	var data RefreshRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &data); err != nil {
			slog.Debug("Failed to decode refresh request body", "err", err)
		}
	}
	if data.RefreshToken != "" {
		return data.RefreshToken
	}
	if cookie, err := r.Cookie(REFRESH_TOKEN_NAME); err == nil {
		return cookie.Value
	}
	return ""
}

// Login a user
// (POST /login)
func (h Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	var data LoginRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		lmserrors.RenderError(w, r, lmserrors.InvalidInput("body", "unable to parse request body"))
		return
	}

	res, err := h.loginService.Login(r.Context(), login.LoginRequest{
		Email:       data.Email,
		Password:    data.Password,
		Fingerprint: device.FingerprintFromRequest(r, h.deviceHeader),
		UserAgent:   r.UserAgent(),
		IP:          device.ClientIP(r),
	})
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	h.setTokenCookie(w, client.ACCESS_TOKEN_NAME, res.AccessToken.Token, res.AccessToken.ExpiresAt)
	h.setTokenCookie(w, REFRESH_TOKEN_NAME, res.RefreshToken, res.RefreshExpiresAt)

	render.JSON(w, r, LoginResponse{
		Status:           "success",
		AccountID:        res.Account.ID,
		Role:             res.Account.Role.String(),
		AccessToken:      res.AccessToken.Token,
		AccessExpiresAt:  res.AccessToken.ExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		NewDevice:        res.Admission.NewDevice,
	})
}

// Refresh an access token
// (POST /refresh)
func (h Handle) PostRefresh(w http.ResponseWriter, r *http.Request) {
	access, err := h.loginService.Refresh(r.Context(), refreshTokenFromRequest(r))
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	h.setTokenCookie(w, client.ACCESS_TOKEN_NAME, access.Token, access.ExpiresAt)
	render.JSON(w, r, RefreshResponse{
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
	})
}

// Logout revokes the refresh token and clears the cookies
// (POST /logout)
func (h Handle) PostLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.loginService.Logout(r.Context(), refreshTokenFromRequest(r)); err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	h.clearTokenCookie(w, client.ACCESS_TOKEN_NAME)
	h.clearTokenCookie(w, REFRESH_TOKEN_NAME)
	render.JSON(w, r, map[string]string{"status": "success"})
}

// Me returns the authenticated subject
// (GET /api/me)
func (h Handle) Me(w http.ResponseWriter, r *http.Request) {
	user := client.MustAuthUser(r.Context())
	render.JSON(w, r, user)
}
