package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL refresh credential repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const credentialColumns = `id, account_id, token_hash, fingerprint, expires_at, revoked, revoked_at, created_at`

func scanCredential(row pgx.Row) (RefreshCredential, error) {
	var cred RefreshCredential
	var fingerprint *string
	err := row.Scan(
		&cred.ID,
		&cred.AccountID,
		&cred.TokenHash,
		&fingerprint,
		&cred.ExpiresAt,
		&cred.Revoked,
		&cred.RevokedAt,
		&cred.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshCredential{}, ErrNotFound
	}
	if fingerprint != nil {
		cred.Fingerprint = *fingerprint
	}
	return cred, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create persists a new credential
func (r *PostgresRepository) Create(ctx context.Context, cred RefreshCredential) (RefreshCredential, error) {
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	created, err := scanCredential(r.db.QueryRow(ctx, `
		INSERT INTO refresh_credentials (id, account_id, token_hash, fingerprint, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING `+credentialColumns,
		cred.ID, cred.AccountID, cred.TokenHash, nullable(cred.Fingerprint), cred.ExpiresAt, cred.CreatedAt,
	))
	if err != nil {
		return RefreshCredential{}, fmt.Errorf("failed to create refresh credential: %w", err)
	}
	return created, nil
}

// GetByTokenHash retrieves a credential by its token hash
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (RefreshCredential, error) {
	cred, err := scanCredential(r.db.QueryRow(ctx, `
		SELECT `+credentialColumns+` FROM refresh_credentials WHERE token_hash = $1
	`, tokenHash))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return RefreshCredential{}, fmt.Errorf("failed to get refresh credential: %w", err)
	}
	return cred, err
}

func (r *PostgresRepository) HasLive(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	var live bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM refresh_credentials
			WHERE account_id = $1 AND revoked = FALSE AND expires_at > $2
		)
	`, accountID, now).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("failed to check live credentials: %w", err)
	}
	return live, nil
}

func (r *PostgresRepository) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, asOf time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_credentials
		SET revoked = TRUE, revoked_at = $2
		WHERE account_id = $1 AND revoked = FALSE AND created_at <= $2
	`, accountID, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeByTokenHash revokes one credential. Unknown or already revoked hashes are a no-op.
func (r *PostgresRepository) RevokeByTokenHash(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE refresh_credentials SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash, at)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh credential: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAllByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_credentials WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete refresh credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_credentials WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}
