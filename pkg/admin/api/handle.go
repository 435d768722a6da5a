package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-lms/pkg/admin"
	"github.com/tendant/simple-lms/pkg/client"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
)

type Handle struct {
	adminService *admin.Service
}

func NewHandle(adminService *admin.Service) Handle {
	return Handle{
		adminService: adminService,
	}
}

// DeviceView is the admin facing representation of a device record
type DeviceView struct {
	ID                 uuid.UUID `json:"id"`
	DeviceName         string    `json:"device_name"`
	UserAgent          string    `json:"user_agent"`
	IPAddress          string    `json:"ip_address"`
	FirstSeenAt        time.Time `json:"first_seen_at"`
	LastLoginAt        time.Time `json:"last_login_at"`
	LastActiveAt       time.Time `json:"last_active_at"`
	LoginCount         int       `json:"login_count"`
	DeviceChangesCount int       `json:"device_changes_count"`
	IsBlocked          bool      `json:"is_blocked"`
}

type DeviceLimitRequest struct {
	MaxDevicesPerStudent *int `json:"max_devices_per_student"`
}

type DeviceLimitResponse struct {
	MaxDevicesPerStudent int `json:"max_devices_per_student"`
}

type EnforcementRequest struct {
	Enabled *bool `json:"enabled"`
}

type EnforcementResponse struct {
	Enabled bool `json:"enabled"`
}

type AccountDevicesResponse struct {
	AccountID uuid.UUID    `json:"account_id"`
	Devices   []DeviceView `json:"devices"`
}

type ForceLogoutResponse struct {
	SessionsRevoked int64 `json:"sessions_revoked"`
}

type BlockRequest struct {
	Blocked *bool `json:"blocked"`
}

// Routes returns the admin device routes. Callers mount it behind authentication
// and client.RequireRole(account.RoleAdmin).
func (h Handle) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/limit", h.GetDeviceLimit)
	r.Put("/limit", h.PutDeviceLimit)
	r.Get("/enforcement", h.GetEnforcement)
	r.Put("/enforcement", h.PutEnforcement)
	r.Get("/accounts/{accountID}", h.ListAccountDevices)
	r.Post("/accounts/{accountID}/reset", h.ResetAccountDevices)
	r.Post("/accounts/{accountID}/logout", h.ForceLogout)
	r.Post("/reset-all", h.ResetAllDevices)
	r.Post("/records/{deviceID}/block", h.BlockDevice)
	return r
}

func parseID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, lmserrors.InvalidInput(param, "must be a UUID")
	}
	return id, nil
}

// (GET /limit)
func (h Handle) GetDeviceLimit(w http.ResponseWriter, r *http.Request) {
	n, err := h.adminService.GetGlobalDeviceLimit(r.Context())
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, DeviceLimitResponse{MaxDevicesPerStudent: n})
}

// (PUT /limit)
func (h Handle) PutDeviceLimit(w http.ResponseWriter, r *http.Request) {
	actor := client.MustAuthUser(r.Context())

	var data DeviceLimitRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		slog.Error("Failed to decode request body", "err", err)
		lmserrors.RenderError(w, r, lmserrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if data.MaxDevicesPerStudent == nil {
		lmserrors.RenderError(w, r, lmserrors.InvalidInput("max_devices_per_student", "is required"))
		return
	}

	if err := h.adminService.SetGlobalDeviceLimit(r.Context(), actor.AccountID, *data.MaxDevicesPerStudent); err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, DeviceLimitResponse{MaxDevicesPerStudent: *data.MaxDevicesPerStudent})
}

// (GET /enforcement)
func (h Handle) GetEnforcement(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.adminService.GetEnforcement(r.Context())
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, EnforcementResponse{Enabled: enabled})
}

// (PUT /enforcement)
func (h Handle) PutEnforcement(w http.ResponseWriter, r *http.Request) {
	actor := client.MustAuthUser(r.Context())

	var data EnforcementRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil || data.Enabled == nil {
		lmserrors.RenderError(w, r, lmserrors.InvalidInput("enabled", "boolean is required"))
		return
	}

	if err := h.adminService.SetEnforcement(r.Context(), actor.AccountID, *data.Enabled); err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, EnforcementResponse{Enabled: *data.Enabled})
}

// (GET /accounts/{accountID})
func (h Handle) ListAccountDevices(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseID(r, "accountID")
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	records, err := h.adminService.ListDevices(r.Context(), accountID)
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	views := []DeviceView{}
	if err := copier.Copy(&views, &records); err != nil {
		slog.Error("Failed to copy device records", "err", err)
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, AccountDevicesResponse{AccountID: accountID, Devices: views})
}

// (POST /accounts/{accountID}/reset)
func (h Handle) ResetAccountDevices(w http.ResponseWriter, r *http.Request) {
	actor := client.MustAuthUser(r.Context())
	accountID, err := parseID(r, "accountID")
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	res, err := h.adminService.ResetDevices(r.Context(), actor.AccountID, accountID)
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// (POST /accounts/{accountID}/logout)
func (h Handle) ForceLogout(w http.ResponseWriter, r *http.Request) {
	actor := client.MustAuthUser(r.Context())
	accountID, err := parseID(r, "accountID")
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	n, err := h.adminService.ForceLogout(r.Context(), actor.AccountID, accountID)
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, ForceLogoutResponse{SessionsRevoked: n})
}

// (POST /reset-all)
func (h Handle) ResetAllDevices(w http.ResponseWriter, r *http.Request) {
	actor := client.MustAuthUser(r.Context())

	summary, err := h.adminService.ResetAllDevices(r.Context(), actor.AccountID)
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// BlockDevice sets or clears the block flag. An empty body blocks.
// (POST /records/{deviceID}/block)
func (h Handle) BlockDevice(w http.ResponseWriter, r *http.Request) {
	actor := client.MustAuthUser(r.Context())
	deviceID, err := parseID(r, "deviceID")
	if err != nil {
		lmserrors.RenderError(w, r, err)
		return
	}

	blocked := true
	if r.ContentLength > 0 {
		var data BlockRequest
		if err := render.DecodeJSON(r.Body, &data); err != nil {
			lmserrors.RenderError(w, r, lmserrors.InvalidInput("body", "malformed JSON"))
			return
		}
		if data.Blocked != nil {
			blocked = *data.Blocked
		}
	}

	var rec DeviceView
	if blocked {
		updated, err := h.adminService.BlockDevice(r.Context(), actor.AccountID, deviceID)
		if err != nil {
			lmserrors.RenderError(w, r, err)
			return
		}
		copier.Copy(&rec, &updated)
	} else {
		updated, err := h.adminService.UnblockDevice(r.Context(), actor.AccountID, deviceID)
		if err != nil {
			lmserrors.RenderError(w, r, err)
			return
		}
		copier.Copy(&rec, &updated)
	}
	render.JSON(w, r, rec)
}
