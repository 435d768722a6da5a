package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a device record does not exist
var ErrNotFound = errors.New("device record not found")

// DeviceRecord binds one fingerprint to one account
type DeviceRecord struct {
	ID                 uuid.UUID `json:"id"`
	AccountID          uuid.UUID `json:"account_id"`
	Fingerprint        string    `json:"fingerprint"`
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

// Meta is the descriptive request data recorded on login
type Meta struct {
	UserAgent string
	IPAddress string
}

// NewRecord builds the record created on the first login from a fingerprint
func NewRecord(accountID uuid.UUID, fingerprint string, meta Meta, now time.Time) DeviceRecord {
	return DeviceRecord{
		ID:           uuid.New(),
		AccountID:    accountID,
		Fingerprint:  fingerprint,
		DeviceName:   determineDeviceName(meta.UserAgent),
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
		FirstSeenAt:  now,
		LastLoginAt:  now,
		LastActiveAt: now,
		LoginCount:   1,
	}
}

// FindByFingerprint returns the record in records matching fingerprint
func FindByFingerprint(records []DeviceRecord, fingerprint string) (DeviceRecord, bool) {
	for _, rec := range records {
		if rec.Fingerprint == fingerprint {
			return rec, true
		}
	}
	return DeviceRecord{}, false
}

// Repository defines the interface for device record storage
type Repository interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]DeviceRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (DeviceRecord, error)

	// Create inserts rec. On an (account, fingerprint) conflict the existing row is
	// treated as a login instead: counters and timestamps are refreshed.
	Create(ctx context.Context, rec DeviceRecord) (DeviceRecord, error)
	TouchLogin(ctx context.Context, id uuid.UUID, meta Meta, at time.Time) (DeviceRecord, error)
	TouchActivity(ctx context.Context, accountID uuid.UUID, fingerprint string, at time.Time) error
	// IncrementDeviceChanges bumps the account-wide device change counter carried on every record
	IncrementDeviceChanges(ctx context.Context, accountID uuid.UUID) error
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (DeviceRecord, error)
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)

	// WithAccountLock runs fn while holding an exclusive lock on accountID.
	// fn must use the Repository it is given.
	WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context, repo Repository) error) error
}
