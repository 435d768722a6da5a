package devicepolicy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/audit"
	"github.com/tendant/simple-lms/pkg/device"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/metrics"
)

// PolicySource provides the global device policy, read fresh on every call
type PolicySource interface {
	EnforcementEnabled(ctx context.Context) (bool, error)
	MaxDevicesPerStudent(ctx context.Context) (int, error)
}

// SessionStore is the part of the credential issuer the policy needs
type SessionStore interface {
	RevokeAll(ctx context.Context, accountID uuid.UUID) (int64, error)
	HasLiveSession(ctx context.Context, accountID uuid.UUID) (bool, error)
}

// ErrDeviceIdentifierRequired is returned when a student logs in under enforcement without a fingerprint
var ErrDeviceIdentifierRequired = lmserrors.New(lmserrors.ErrCodeDeviceSessionInvalid, "device identifier required")

// Admission describes an admitted login
type Admission struct {
	// Exempt is true for roles the device policy does not apply to
	Exempt bool
	// Enforced is false when the enforcement toggle was off
	Enforced        bool
	Device          *device.DeviceRecord
	NewDevice       bool
	SessionsRevoked int64
}

// Option configures an Engine or Validator
type Option func(*options)

type options struct {
	audit   audit.Recorder
	metrics *metrics.Metrics
	now     func() time.Time
}

func WithAudit(r audit.Recorder) Option {
	return func(o *options) { o.audit = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	o.audit = audit.OrNop(o.audit)
	return o
}

// Engine decides whether a login may proceed
type Engine struct {
	devices  device.Repository
	policy   PolicySource
	sessions SessionStore
	options
}

func NewEngine(devices device.Repository, policy PolicySource, sessions SessionStore, opts ...Option) *Engine {
	return &Engine{
		devices:  devices,
		policy:   policy,
		sessions: sessions,
		options:  buildOptions(opts),
	}
}

// AdmitLogin runs the device policy for a subject whose password has already been verified.
// On success every refresh credential the account held is revoked; the caller issues the new pair.
func (e *Engine) AdmitLogin(ctx context.Context, accountID uuid.UUID, role account.Role, fingerprint string, meta device.Meta) (Admission, error) {
	return e.AdmitAndIssue(ctx, accountID, role, fingerprint, meta, nil)
}

// AdmitAndIssue is AdmitLogin with issue run before the account lock is released, so a
// concurrent login for the same student cannot revoke or issue in between.
// A nil issue only admits.
func (e *Engine) AdmitAndIssue(ctx context.Context, accountID uuid.UUID, role account.Role, fingerprint string, meta device.Meta, issue func(ctx context.Context) error) (Admission, error) {
	if !role.IsDeviceBound() {
		e.metrics.Admission(metrics.AdmissionExempt)
		if issue != nil {
			if err := issue(ctx); err != nil {
				return Admission{}, err
			}
		}
		return Admission{Exempt: true}, nil
	}

	enabled, err := e.policy.EnforcementEnabled(ctx)
	if err != nil {
		e.metrics.Admission(metrics.AdmissionError)
		return Admission{}, fmt.Errorf("failed to read enforcement setting: %w", err)
	}
	if enabled && fingerprint == "" {
		return Admission{}, ErrDeviceIdentifierRequired
	}

	adm := Admission{Enforced: enabled}
	var check deviceCheck
	err = e.devices.WithAccountLock(ctx, accountID, func(ctx context.Context, repo device.Repository) error {
		if enabled {
			if err := e.admitDevice(ctx, repo, accountID, fingerprint, meta, &adm, &check); err != nil {
				return err
			}
		}

		// Single active session: runs for every admitted student, enforced or not
		n, err := e.sessions.RevokeAll(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to revoke previous sessions: %w", err)
		}
		adm.SessionsRevoked = n

		if issue != nil {
			return issue(ctx)
		}
		return nil
	})
	if err != nil {
		e.reportRefusal(ctx, accountID, fingerprint, meta, check, err)
		return Admission{}, err
	}

	e.reportAdmission(ctx, accountID, meta, adm, check)
	slog.Info("Login admitted", "accountID", accountID, "enforced", enabled, "newDevice", adm.NewDevice, "revoked", adm.SessionsRevoked)
	return adm, nil
}

// deviceCheck carries what admitDevice saw, for reporting after the lock is released
type deviceCheck struct {
	limit      int
	registered int
	changed    bool
}

func (e *Engine) admitDevice(ctx context.Context, repo device.Repository, accountID uuid.UUID, fingerprint string, meta device.Meta, adm *Admission, check *deviceCheck) error {
	records, err := repo.ListByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	check.registered = len(records)

	if rec, ok := device.FindByFingerprint(records, fingerprint); ok {
		// an admin block wins over being a known device
		if rec.IsBlocked {
			return lmserrors.ErrDeviceBlocked.WithDetail("device_id", rec.ID.String())
		}
		updated, err := repo.TouchLogin(ctx, rec.ID, meta, e.now())
		if err != nil {
			return fmt.Errorf("failed to record device login: %w", err)
		}
		adm.Device = &updated
		return nil
	}

	check.limit, err = e.policy.MaxDevicesPerStudent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read device limit: %w", err)
	}
	if check.registered >= check.limit {
		return lmserrors.ErrDeviceLimitExceeded.
			WithDetail("limit", check.limit).
			WithDetail("registered", check.registered)
	}

	rec := device.NewRecord(accountID, fingerprint, meta, e.now())
	rec.DeviceChangesCount = maxDeviceChanges(records)
	created, err := repo.Create(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	if check.registered > 0 {
		if err := repo.IncrementDeviceChanges(ctx, accountID); err != nil {
			return err
		}
		created.DeviceChangesCount++
		check.changed = true
	}
	adm.Device = &created
	adm.NewDevice = true
	return nil
}

func (e *Engine) reportRefusal(ctx context.Context, accountID uuid.UUID, fingerprint string, meta device.Meta, check deviceCheck, err error) {
	switch {
	case lmserrors.IsCode(err, lmserrors.ErrCodeDeviceBlocked):
		e.metrics.Admission(metrics.AdmissionBlocked)
		e.audit.Record(ctx, audit.Event{
			AccountID:   accountID,
			EventType:   audit.EventDeviceBlockedLogin,
			Description: "Login refused from a blocked device",
			Metadata:    map[string]interface{}{"fingerprint": fingerprint, "ip": meta.IPAddress},
		})
	case lmserrors.IsCode(err, lmserrors.ErrCodeDeviceLimitExceeded):
		e.metrics.Admission(metrics.AdmissionLimitExceeded)
		e.audit.Record(ctx, audit.Event{
			AccountID:   accountID,
			EventType:   audit.EventDeviceLimitExceeded,
			Description: fmt.Sprintf("Login refused: %d of %d devices registered", check.registered, check.limit),
			Metadata:    map[string]interface{}{"fingerprint": fingerprint, "limit": check.limit, "registered": check.registered},
		})
	default:
		e.metrics.Admission(metrics.AdmissionError)
	}
}

func (e *Engine) reportAdmission(ctx context.Context, accountID uuid.UUID, meta device.Meta, adm Admission, check deviceCheck) {
	e.metrics.SessionsRevoked(metrics.RevokedLogin, adm.SessionsRevoked)
	switch {
	case !adm.Enforced:
		e.metrics.Admission(metrics.AdmissionUnenforced)
	case adm.NewDevice:
		e.metrics.Admission(metrics.AdmissionNewDevice)
		if check.changed {
			e.metrics.DeviceChange()
		}
		e.audit.Record(ctx, audit.Event{
			AccountID:   accountID,
			EventType:   audit.EventDeviceRegistered,
			Description: "New device registered: " + adm.Device.DeviceName,
			Metadata: map[string]interface{}{
				"device_id":            adm.Device.ID.String(),
				"device_changes_count": adm.Device.DeviceChangesCount,
				"ip":                   meta.IPAddress,
			},
		})
	default:
		e.metrics.Admission(metrics.AdmissionKnownDevice)
		e.audit.Record(ctx, audit.Event{
			AccountID:   accountID,
			EventType:   audit.EventDeviceLogin,
			Description: "Login from known device: " + adm.Device.DeviceName,
			Metadata:    map[string]interface{}{"device_id": adm.Device.ID.String(), "login_count": adm.Device.LoginCount},
		})
	}
}

func maxDeviceChanges(records []device.DeviceRecord) int {
	n := 0
	for _, rec := range records {
		if rec.DeviceChangesCount > n {
			n = rec.DeviceChangesCount
		}
	}
	return n
}
