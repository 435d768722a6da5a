package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no account matches
var ErrNotFound = errors.New("account not found")

// Repository defines the interface for account storage operations
type Repository interface {
	Create(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	ListIDsByRole(ctx context.Context, role Role) ([]uuid.UUID, error)
}
