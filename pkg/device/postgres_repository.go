package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Pool is a DBTX that can also open transactions, satisfied by *pgxpool.Pool
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db   DBTX
	pool Pool // nil when bound to a transaction
}

// NewPostgresRepository creates a new PostgreSQL device repository
func NewPostgresRepository(pool Pool) *PostgresRepository {
	return &PostgresRepository{db: pool, pool: pool}
}

const recordColumns = `id, account_id, fingerprint, device_name, user_agent, ip_address,
	first_seen_at, last_login_at, last_active_at, login_count, device_changes_count, is_blocked`

func scanRecord(row pgx.Row) (DeviceRecord, error) {
	var rec DeviceRecord
	err := row.Scan(
		&rec.ID,
		&rec.AccountID,
		&rec.Fingerprint,
		&rec.DeviceName,
		&rec.UserAgent,
		&rec.IPAddress,
		&rec.FirstSeenAt,
		&rec.LastLoginAt,
		&rec.LastActiveAt,
		&rec.LoginCount,
		&rec.DeviceChangesCount,
		&rec.IsBlocked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceRecord{}, ErrNotFound
	}
	return rec, err
}

// ListByAccount returns all records for an account, oldest first
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]DeviceRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM device_records
		WHERE account_id = $1
		ORDER BY first_seen_at, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device records: %w", err)
	}
	defer rows.Close()

	records := []DeviceRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device records: %w", err)
	}
	return records, nil
}

// GetByID retrieves a record by id
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (DeviceRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM device_records WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return DeviceRecord{}, fmt.Errorf("failed to get device record: %w", err)
	}
	return rec, err
}

// Create inserts a record, falling back to a login update on (account_id, fingerprint) conflict
func (r *PostgresRepository) Create(ctx context.Context, rec DeviceRecord) (DeviceRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.DeviceName == "" {
		rec.DeviceName = determineDeviceName(rec.UserAgent)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO device_records (
			id, account_id, fingerprint, device_name, user_agent, ip_address,
			first_seen_at, last_login_at, last_active_at, login_count, device_changes_count, is_blocked
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, fingerprint) DO UPDATE SET
			user_agent = EXCLUDED.user_agent,
			ip_address = EXCLUDED.ip_address,
			last_login_at = EXCLUDED.last_login_at,
			last_active_at = EXCLUDED.last_active_at,
			login_count = device_records.login_count + 1
		RETURNING `+recordColumns,
		rec.ID, rec.AccountID, rec.Fingerprint, rec.DeviceName, rec.UserAgent, rec.IPAddress,
		rec.FirstSeenAt, rec.LastLoginAt, rec.LastActiveAt, rec.LoginCount, rec.DeviceChangesCount, rec.IsBlocked,
	)
	created, err := scanRecord(row)
	if err != nil {
		return DeviceRecord{}, fmt.Errorf("failed to create device record: %w", err)
	}
	slog.Debug("Device record stored", "accountID", created.AccountID, "deviceID", created.ID)
	return created, nil
}

// TouchLogin records a login from a known device
func (r *PostgresRepository) TouchLogin(ctx context.Context, id uuid.UUID, meta Meta, at time.Time) (DeviceRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `
		UPDATE device_records
		SET login_count = login_count + 1,
			last_login_at = $2,
			last_active_at = $2,
			user_agent = COALESCE(NULLIF($3, ''), user_agent),
			ip_address = COALESCE(NULLIF($4, ''), ip_address)
		WHERE id = $1
		RETURNING `+recordColumns,
		id, at, meta.UserAgent, meta.IPAddress,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return DeviceRecord{}, fmt.Errorf("failed to update device login: %w", err)
	}
	return rec, err
}

// TouchActivity refreshes last_active_at. A missing record is not an error.
func (r *PostgresRepository) TouchActivity(ctx context.Context, accountID uuid.UUID, fingerprint string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE device_records SET last_active_at = $3
		WHERE account_id = $1 AND fingerprint = $2
	`, accountID, fingerprint, at)
	if err != nil {
		return fmt.Errorf("failed to update device activity: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IncrementDeviceChanges(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE device_records SET device_changes_count = device_changes_count + 1
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("failed to increment device changes: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (DeviceRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `
		UPDATE device_records SET is_blocked = $2 WHERE id = $1
		RETURNING `+recordColumns,
		id, blocked,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return DeviceRecord{}, fmt.Errorf("failed to update device block flag: %w", err)
	}
	return rec, err
}

// DeleteByAccount removes every record of the account and reports how many were deleted
func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM device_records WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete device records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// WithAccountLock runs fn in a transaction holding a transaction-scoped advisory lock on the account.
// Nested calls reuse the enclosing transaction.
func (r *PostgresRepository) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context, repo Repository) error) error {
	if r.pool == nil {
		if err := lockAccount(ctx, r.db, accountID); err != nil {
			return err
		}
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("Failed to roll back device transaction", "accountID", accountID, "error", rbErr)
		}
	}()

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return err
	}
	if err := fn(ctx, &PostgresRepository{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit device transaction: %w", err)
	}
	return nil
}

func lockAccount(ctx context.Context, db DBTX, accountID uuid.UUID) error {
	if _, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, accountID.String()); err != nil {
		return fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}
	return nil
}
