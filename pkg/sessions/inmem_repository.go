package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository implements Repository using an in-memory map keyed by token hash
type InMemRepository struct {
	mu          sync.Mutex
	credentials map[string]RefreshCredential
}

// NewInMemRepository creates a new in-memory refresh credential repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{credentials: make(map[string]RefreshCredential)}
}

func (r *InMemRepository) Create(ctx context.Context, cred RefreshCredential) (RefreshCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.credentials[cred.TokenHash]; exists {
		return RefreshCredential{}, fmt.Errorf("refresh credential already exists")
	}
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	r.credentials[cred.TokenHash] = cred
	return cred, nil
}

func (r *InMemRepository) GetByTokenHash(ctx context.Context, tokenHash string) (RefreshCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.credentials[tokenHash]
	if !ok {
		return RefreshCredential{}, ErrNotFound
	}
	return cred, nil
}

func (r *InMemRepository) HasLive(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cred := range r.credentials {
		if cred.AccountID == accountID && cred.IsLive(now) {
			return true, nil
		}
	}
	return false, nil
}

// CountLive returns the number of live credentials for an account
func (r *InMemRepository) CountLive(accountID uuid.UUID, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, cred := range r.credentials {
		if cred.AccountID == accountID && cred.IsLive(now) {
			n++
		}
	}
	return n
}

// Count returns the number of stored credentials for an account, revoked or not
func (r *InMemRepository) Count(accountID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, cred := range r.credentials {
		if cred.AccountID == accountID {
			n++
		}
	}
	return n
}

func (r *InMemRepository) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, asOf time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, cred := range r.credentials {
		if cred.AccountID != accountID || cred.Revoked || cred.CreatedAt.After(asOf) {
			continue
		}
		at := asOf
		cred.Revoked = true
		cred.RevokedAt = &at
		r.credentials[hash] = cred
		n++
	}
	return n, nil
}

func (r *InMemRepository) RevokeByTokenHash(ctx context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.credentials[tokenHash]
	if !ok || cred.Revoked {
		return nil
	}
	cred.Revoked = true
	cred.RevokedAt = &at
	r.credentials[tokenHash] = cred
	return nil
}

func (r *InMemRepository) DeleteAllByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, cred := range r.credentials {
		if cred.AccountID == accountID {
			delete(r.credentials, hash)
			n++
		}
	}
	return n, nil
}

func (r *InMemRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, cred := range r.credentials {
		if cred.ExpiresAt.Before(now) {
			delete(r.credentials, hash)
			n++
		}
	}
	return n, nil
}
