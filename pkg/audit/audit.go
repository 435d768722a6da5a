// Package audit records security relevant events without ever failing the caller.
//
// Producers call Recorder.Record, which returns immediately. AsyncRecorder hands
// events to a single background writer; if the buffer is full the event is dropped
// and logged. Sink errors are logged and swallowed.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventLoginSucceeded           = "login_succeeded"
	EventDeviceRegistered         = "device_registered"
	EventDeviceLogin              = "device_login"
	EventDeviceLimitExceeded      = "device_limit_exceeded"
	EventDeviceBlockedLogin       = "device_blocked_login"
	EventDeviceMismatch           = "device_mismatch"
	EventDeviceLimitChanged       = "device_limit_changed"
	EventDeviceEnforcementChanged = "device_enforcement_changed"
	EventDevicesReset             = "devices_reset"
	EventAllDevicesReset          = "all_devices_reset"
	EventDeviceBlocked            = "device_blocked"
	EventForceLogout              = "force_logout"
)

// Event is one audit log entry. AccountID is uuid.Nil for system wide events.
type Event struct {
	AccountID   uuid.UUID
	EventType   string
	Description string
	Metadata    map[string]interface{}
	CreatedAt   time.Time
}

// Sink persists events
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Recorder is the fire-and-forget producer interface
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Nop discards every event
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// OrNop returns r, or Nop when r is nil
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

const defaultWriteTimeout = 5 * time.Second

// AsyncRecorder buffers events and writes them from one goroutine
type AsyncRecorder struct {
	sink         Sink
	events       chan Event
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncRecorder starts the background writer. buffer <= 0 uses 256.
func NewAsyncRecorder(sink Sink, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &AsyncRecorder{
		sink:         sink,
		events:       make(chan Event, buffer),
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e without blocking. The caller's context is not used for the write.
func (r *AsyncRecorder) Record(ctx context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		slog.Warn("Audit recorder closed, dropping event", "eventType", e.EventType, "accountID", e.AccountID)
		return
	}
	select {
	case r.events <- e:
	default:
		slog.Warn("Audit buffer full, dropping event", "eventType", e.EventType, "accountID", e.AccountID)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for e := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		if err := r.sink.Write(ctx, e); err != nil {
			slog.Error("Failed to write audit event", "eventType", e.EventType, "accountID", e.AccountID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffer is drained or ctx ends
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SlogSink writes events to the default logger
type SlogSink struct{}

func (SlogSink) Write(ctx context.Context, e Event) error {
	slog.InfoContext(ctx, "audit",
		"eventType", e.EventType,
		"accountID", e.AccountID,
		"description", e.Description,
		"metadata", e.Metadata,
	)
	return nil
}

// MemorySink keeps events in memory, for tests
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Write(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Record lets a MemorySink be used directly as a synchronous Recorder
func (s *MemorySink) Record(ctx context.Context, e Event) {
	_ = s.Write(ctx, e)
}

// Events returns a copy of everything written so far
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the event types written so far, in order
func (s *MemorySink) Types() []string {
	events := s.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	return types
}
