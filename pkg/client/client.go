package client

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/account"
)

// AuthUser is the authenticated subject of a request, taken from a verified access token
type AuthUser struct {
	AccountID   uuid.UUID    `json:"account_id"`
	Role        account.Role `json:"role"`
	Fingerprint string       `json:"fingerprint,omitempty"` // device binding claim, students only
	TokenID     string       `json:"-"`
}

func (u AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account", u.AccountID.String()),
		slog.String("role", u.Role.String()),
		slog.Bool("device_bound", u.Fingerprint != ""),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "lms context value " + k.name
}

const (
	ACCESS_TOKEN_NAME = "access_token"
)

var (
	AuthUserKey = &contextKey{"AuthUser"}
)

// WithAuthUser returns a copy of ctx carrying u
func WithAuthUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, u)
}

// AuthUserFromContext returns the authenticated subject, if any
func AuthUserFromContext(ctx context.Context) (*AuthUser, bool) {
	u, ok := ctx.Value(AuthUserKey).(*AuthUser)
	return u, ok && u != nil
}
