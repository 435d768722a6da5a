package devicepolicy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/client"
	"github.com/tendant/simple-lms/pkg/device"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
)

// ActivityToucher records device activity
type ActivityToucher interface {
	TouchActivity(ctx context.Context, accountID uuid.UUID, fingerprint string, at time.Time) error
}

// Middleware validates every request behind client.AuthUserMiddleware.
// header names the device header clients send their fingerprint in.
func (v *Validator) Middleware(header string, activity ActivityToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := client.AuthUserFromContext(r.Context())
			if !ok {
				lmserrors.RenderError(w, r, lmserrors.ErrUnauthorized)
				return
			}

			fp := requestFingerprint(r, header)
			subj := Subject{AccountID: user.AccountID, Role: user.Role, Fingerprint: user.Fingerprint}
			if err := v.Validate(r.Context(), subj, fp); err != nil {
				lmserrors.RenderError(w, r, err)
				return
			}

			if activity != nil && fp != "" && user.Role.IsDeviceBound() {
				if err := activity.TouchActivity(r.Context(), user.AccountID, fp, v.now()); err != nil {
					slog.Warn("Failed to record device activity", "accountID", user.AccountID, "error", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestFingerprint returns the fingerprint presented with r: the device header when set,
// otherwise the user-agent and IP derivation used at login. It is empty only when the
// request carries neither.
func requestFingerprint(r *http.Request, header string) string {
	if fp := device.HeaderFingerprint(r, header); fp != "" {
		return fp
	}
	ua, ip := r.UserAgent(), device.ClientIP(r)
	if ua == "" && ip == "" {
		return ""
	}
	return device.DeriveFingerprint(ua, ip)
}
