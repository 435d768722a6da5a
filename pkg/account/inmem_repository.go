package account

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository implements Repository using an in-memory map
type InMemRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

// NewInMemRepository creates a new in-memory account repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		accounts: make(map[uuid.UUID]Account),
	}
}

func (r *InMemRepository) Create(ctx context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account.Email = NormalizeEmail(account.Email)
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return Account{}, fmt.Errorf("account with email %s already exists", account.Email)
		}
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Status == "" {
		account.Status = StatusActive
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.ID] = account
	return account, nil
}

func (r *InMemRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (r *InMemRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = NormalizeEmail(email)
	for _, account := range r.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *InMemRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	account.Status = status
	account.UpdatedAt = time.Now().UTC()
	r.accounts[id] = account
	return nil
}

func (r *InMemRepository) ListIDsByRole(ctx context.Context, role Role) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0)
	for id, account := range r.accounts {
		if account.Role == role {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
