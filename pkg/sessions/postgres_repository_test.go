package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/db/dbtest"
)

func TestPostgresRepository(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool)

	acct, err := account.NewPostgresRepository(pool).Create(ctx, account.Account{
		Email:        "kid@school.test",
		PasswordHash: []byte("hash"),
		Role:         account.RoleStudent,
	})
	require.NoError(t, err)
	now := time.Now().UTC()

	newCred := func(hash, fp string, createdAt, expiresAt time.Time) RefreshCredential {
		cred, err := repo.Create(ctx, RefreshCredential{
			AccountID:   acct.ID,
			TokenHash:   hash,
			Fingerprint: fp,
			CreatedAt:   createdAt,
			ExpiresAt:   expiresAt,
		})
		require.NoError(t, err)
		return cred
	}

	live, err := repo.HasLive(ctx, acct.ID, now)
	require.NoError(t, err)
	assert.False(t, live)

	bound := newCred("hash-a", "fp-a", now.Add(-time.Minute), now.Add(time.Hour))
	unbound := newCred("hash-b", "", now.Add(-time.Minute), now.Add(time.Hour))
	newCred("hash-old", "", now.Add(-48*time.Hour), now.Add(-time.Hour))

	got, err := repo.GetByTokenHash(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, bound.ID, got.ID)
	assert.Equal(t, "fp-a", got.Fingerprint)

	got, err = repo.GetByTokenHash(ctx, "hash-b")
	require.NoError(t, err)
	assert.Equal(t, unbound.ID, got.ID)
	assert.Empty(t, got.Fingerprint)

	_, err = repo.GetByTokenHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	live, err = repo.HasLive(ctx, acct.ID, now)
	require.NoError(t, err)
	assert.True(t, live)

	// credentials minted after the snapshot survive a revoke-all
	newCred("hash-future", "", now.Add(time.Minute), now.Add(time.Hour))
	n, err := repo.RevokeAllByAccount(ctx, acct.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err = repo.GetByTokenHash(ctx, "hash-future")
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	require.NoError(t, repo.RevokeByTokenHash(ctx, "hash-future", now))
	require.NoError(t, repo.RevokeByTokenHash(ctx, "unknown", now))
	live, err = repo.HasLive(ctx, acct.ID, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, live)

	n, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeleteAllByAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repo.Create(ctx, RefreshCredential{AccountID: uuid.New(), TokenHash: "orphan", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	assert.Error(t, err, "credentials require an account")
}
