package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository implements Repository using an in-memory map
type InMemRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]DeviceRecord

	locksMu sync.Mutex
	locks   map[uuid.UUID]*accountLock
}

// NewInMemRepository creates a new in-memory device repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		records: make(map[uuid.UUID]DeviceRecord),
		locks:   make(map[uuid.UUID]*accountLock),
	}
}

func (r *InMemRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []DeviceRecord{}
	for _, rec := range r.records {
		if rec.AccountID == accountID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].FirstSeenAt.Equal(records[j].FirstSeenAt) {
			return records[i].ID.String() < records[j].ID.String()
		}
		return records[i].FirstSeenAt.Before(records[j].FirstSeenAt)
	})
	return records, nil
}

func (r *InMemRepository) GetByID(ctx context.Context, id uuid.UUID) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return DeviceRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *InMemRepository) Create(ctx context.Context, rec DeviceRecord) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.records {
		if existing.AccountID == rec.AccountID && existing.Fingerprint == rec.Fingerprint {
			existing.UserAgent = rec.UserAgent
			existing.IPAddress = rec.IPAddress
			existing.LastLoginAt = rec.LastLoginAt
			existing.LastActiveAt = rec.LastActiveAt
			existing.LoginCount++
			r.records[id] = existing
			return existing, nil
		}
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.DeviceName == "" {
		rec.DeviceName = determineDeviceName(rec.UserAgent)
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *InMemRepository) TouchLogin(ctx context.Context, id uuid.UUID, meta Meta, at time.Time) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return DeviceRecord{}, ErrNotFound
	}
	rec.LoginCount++
	rec.LastLoginAt = at
	rec.LastActiveAt = at
	if meta.UserAgent != "" {
		rec.UserAgent = meta.UserAgent
	}
	if meta.IPAddress != "" {
		rec.IPAddress = meta.IPAddress
	}
	r.records[id] = rec
	return rec, nil
}

func (r *InMemRepository) TouchActivity(ctx context.Context, accountID uuid.UUID, fingerprint string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if rec.AccountID == accountID && rec.Fingerprint == fingerprint {
			rec.LastActiveAt = at
			r.records[id] = rec
		}
	}
	return nil
}

func (r *InMemRepository) IncrementDeviceChanges(ctx context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if rec.AccountID == accountID {
			rec.DeviceChangesCount++
			r.records[id] = rec
		}
	}
	return nil
}

func (r *InMemRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return DeviceRecord{}, ErrNotFound
	}
	rec.IsBlocked = blocked
	r.records[id] = rec
	return rec, nil
}

func (r *InMemRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, rec := range r.records {
		if rec.AccountID == accountID {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// accountLock is dropped from the map once no caller holds or waits on it
type accountLock struct {
	mu   sync.Mutex
	refs int
}

// WithAccountLock serializes fn with any other call for the same account.
// Nested calls for the same account on the same goroutine deadlock.
func (r *InMemRepository) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context, repo Repository) error) error {
	r.locksMu.Lock()
	l, ok := r.locks[accountID]
	if !ok {
		l = &accountLock{}
		r.locks[accountID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	defer func() {
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, accountID)
		}
		r.locksMu.Unlock()
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx, r)
}
