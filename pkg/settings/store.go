package settings

import (
	"context"
	"sync"
)

// Setting keys persisted in the shared store
const (
	KeyMaxDevicesPerStudent  = "max_devices_per_student"
	KeyDeviceTrackingEnabled = "device_tracking_enabled"
)

// Store is a string key/value store shared by all server instances.
// Get reports found=false when the key has never been set.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// InMemStore implements Store with a map. Suitable for tests and single-instance setups.
type InMemStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemStore creates an empty in-memory settings store
func NewInMemStore() *InMemStore {
	return &InMemStore{values: make(map[string]string)}
}

func (s *InMemStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *InMemStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
