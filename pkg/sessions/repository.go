package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no credential matches
var ErrNotFound = errors.New("refresh credential not found")

// Repository defines the interface for refresh credential storage
type Repository interface {
	Create(ctx context.Context, cred RefreshCredential) (RefreshCredential, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (RefreshCredential, error)

	// HasLive reports whether the account holds at least one credential live at now
	HasLive(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error)

	// RevokeAllByAccount revokes the account's credentials created at or before asOf.
	// Credentials created after asOf are left alone.
	RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, asOf time.Time) (int64, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string, at time.Time) error
	DeleteAllByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)

	// DeleteExpired removes credentials whose expiry is before now (maintenance)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
