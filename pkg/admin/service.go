package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/audit"
	"github.com/tendant/simple-lms/pkg/device"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/metrics"
)

// ErrNotStudent is returned when an operation targets a teacher or admin account
var ErrNotStudent = lmserrors.New(lmserrors.ErrCodeInvalidInput, "device policy applies to student accounts only")

// AccountStore looks up and reactivates accounts
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (account.Account, error)
	Activate(ctx context.Context, id uuid.UUID) error
	ListStudentIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CredentialStore revokes and deletes refresh credentials
type CredentialStore interface {
	RevokeAll(ctx context.Context, accountID uuid.UUID) (int64, error)
	DeleteAll(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// PolicyStore reads and writes the global device policy
type PolicyStore interface {
	MaxDevicesPerStudent(ctx context.Context) (int, error)
	EnforcementEnabled(ctx context.Context) (bool, error)
	SetMaxDevicesPerStudent(ctx context.Context, n int) error
	SetEnforcementEnabled(ctx context.Context, enabled bool) error
}

// ResetResult reports what a single account reset removed
type ResetResult struct {
	DevicesDeleted  int64 `json:"devices_deleted"`
	SessionsDeleted int64 `json:"sessions_deleted"`
}

// ResetSummary reports a bulk reset. AccountsAffected counts student accounts whose
// device records were deleted successfully.
type ResetSummary struct {
	AccountsAffected int   `json:"accounts_affected"`
	AccountsFailed   int   `json:"accounts_failed"`
	DevicesDeleted   int64 `json:"devices_deleted"`
}

// Service implements the administrator overrides of the device policy
type Service struct {
	accounts AccountStore
	devices  device.Repository
	sessions CredentialStore
	policy   PolicyStore
	audit    audit.Recorder
	metrics  *metrics.Metrics
}

// Option configures a Service
type Option func(*Service)

func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(accounts AccountStore, devices device.Repository, sessions CredentialStore, policy PolicyStore, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		devices:  devices,
		sessions: sessions,
		policy:   policy,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.OrNop(s.audit)
	return s
}

func (s *Service) GetGlobalDeviceLimit(ctx context.Context) (int, error) {
	return s.policy.MaxDevicesPerStudent(ctx)
}

// SetGlobalDeviceLimit accepts 1 or 2; anything else fails with InvalidPolicyValue
func (s *Service) SetGlobalDeviceLimit(ctx context.Context, actor uuid.UUID, n int) error {
	if err := s.policy.SetMaxDevicesPerStudent(ctx, n); err != nil {
		return err
	}
	slog.Info("Device limit changed", "actor", actor, "limit", n)
	s.audit.Record(ctx, audit.Event{
		AccountID:   actor,
		EventType:   audit.EventDeviceLimitChanged,
		Description: fmt.Sprintf("Maximum devices per student set to %d", n),
		Metadata:    map[string]interface{}{"limit": n},
	})
	return nil
}

func (s *Service) GetEnforcement(ctx context.Context) (bool, error) {
	return s.policy.EnforcementEnabled(ctx)
}

func (s *Service) SetEnforcement(ctx context.Context, actor uuid.UUID, enabled bool) error {
	if err := s.policy.SetEnforcementEnabled(ctx, enabled); err != nil {
		return err
	}
	slog.Info("Device enforcement changed", "actor", actor, "enabled", enabled)
	s.audit.Record(ctx, audit.Event{
		AccountID:   actor,
		EventType:   audit.EventDeviceEnforcementChanged,
		Description: fmt.Sprintf("Device enforcement enabled: %t", enabled),
		Metadata:    map[string]interface{}{"enabled": enabled},
	})
	return nil
}

// requireStudent loads the target account and rejects non-students
func (s *Service) requireStudent(ctx context.Context, accountID uuid.UUID) error {
	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.Role.IsDeviceBound() {
		return ErrNotStudent.WithDetail("role", acct.Role.String())
	}
	return nil
}

// ListDevices returns the device records of a student
func (s *Service) ListDevices(ctx context.Context, accountID uuid.UUID) ([]device.DeviceRecord, error) {
	if err := s.requireStudent(ctx, accountID); err != nil {
		return nil, err
	}
	return s.devices.ListByAccount(ctx, accountID)
}

// ResetDevices deletes every device record and refresh credential of a student and
// reactivates the account. Only the device deletion can fail the call; the other two
// steps are logged and skipped on error.
func (s *Service) ResetDevices(ctx context.Context, actor, accountID uuid.UUID) (ResetResult, error) {
	if err := s.requireStudent(ctx, accountID); err != nil {
		return ResetResult{}, err
	}
	res, err := s.reset(ctx, accountID)
	if err != nil {
		return ResetResult{}, err
	}
	s.audit.Record(ctx, audit.Event{
		AccountID:   accountID,
		EventType:   audit.EventDevicesReset,
		Description: "Devices and sessions reset by administrator",
		Metadata: map[string]interface{}{
			"admin_id":         actor.String(),
			"devices_deleted":  res.DevicesDeleted,
			"sessions_deleted": res.SessionsDeleted,
		},
	})
	return res, nil
}

func (s *Service) reset(ctx context.Context, accountID uuid.UUID) (ResetResult, error) {
	var res ResetResult

	n, err := s.devices.DeleteByAccount(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("failed to delete devices for %s: %w", accountID, err)
	}
	res.DevicesDeleted = n

	if n, err := s.sessions.DeleteAll(ctx, accountID); err != nil {
		slog.Error("Device reset: failed to delete sessions", "accountID", accountID, "error", err)
	} else {
		res.SessionsDeleted = n
		s.metrics.SessionsRevoked(metrics.RevokedReset, n)
	}

	if err := s.accounts.Activate(ctx, accountID); err != nil {
		slog.Error("Device reset: failed to reactivate account", "accountID", accountID, "error", err)
	}
	return res, nil
}

// ResetAllDevices resets every student account. Failures for one account do not stop the others.
func (s *Service) ResetAllDevices(ctx context.Context, actor uuid.UUID) (ResetSummary, error) {
	ids, err := s.accounts.ListStudentIDs(ctx)
	if err != nil {
		return ResetSummary{}, fmt.Errorf("failed to list student accounts: %w", err)
	}

	var summary ResetSummary
	for _, id := range ids {
		res, err := s.reset(ctx, id)
		if err != nil {
			slog.Error("Bulk device reset failed for account", "accountID", id, "error", err)
			summary.AccountsFailed++
			continue
		}
		summary.AccountsAffected++
		summary.DevicesDeleted += res.DevicesDeleted
	}

	slog.Info("All student devices reset", "actor", actor, "affected", summary.AccountsAffected, "failed", summary.AccountsFailed)
	s.audit.Record(ctx, audit.Event{
		AccountID:   actor,
		EventType:   audit.EventAllDevicesReset,
		Description: fmt.Sprintf("Devices reset for %d student accounts", summary.AccountsAffected),
		Metadata: map[string]interface{}{
			"accounts_affected": summary.AccountsAffected,
			"accounts_failed":   summary.AccountsFailed,
			"devices_deleted":   summary.DevicesDeleted,
		},
	})
	return summary, nil
}

// BlockDevice flags one device record. Live sessions from that device are not revoked;
// the block applies to future logins.
func (s *Service) BlockDevice(ctx context.Context, actor, deviceID uuid.UUID) (device.DeviceRecord, error) {
	return s.setBlocked(ctx, actor, deviceID, true)
}

// UnblockDevice clears the block flag on one device record
func (s *Service) UnblockDevice(ctx context.Context, actor, deviceID uuid.UUID) (device.DeviceRecord, error) {
	return s.setBlocked(ctx, actor, deviceID, false)
}

func (s *Service) setBlocked(ctx context.Context, actor, deviceID uuid.UUID, blocked bool) (device.DeviceRecord, error) {
	rec, err := s.devices.SetBlocked(ctx, deviceID, blocked)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return device.DeviceRecord{}, lmserrors.NotFound("device", deviceID.String())
		}
		return device.DeviceRecord{}, err
	}

	desc := "Device blocked by administrator: "
	if !blocked {
		desc = "Device unblocked by administrator: "
	}
	s.audit.Record(ctx, audit.Event{
		AccountID:   rec.AccountID,
		EventType:   audit.EventDeviceBlocked,
		Description: desc + rec.DeviceName,
		Metadata: map[string]interface{}{
			"admin_id":  actor.String(),
			"device_id": rec.ID.String(),
			"blocked":   blocked,
		},
	})
	return rec, nil
}

// ForceLogout revokes every refresh credential of a student. Device records are kept.
func (s *Service) ForceLogout(ctx context.Context, actor, accountID uuid.UUID) (int64, error) {
	if err := s.requireStudent(ctx, accountID); err != nil {
		return 0, err
	}
	n, err := s.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.metrics.SessionsRevoked(metrics.RevokedForceLogout, n)
	s.audit.Record(ctx, audit.Event{
		AccountID:   accountID,
		EventType:   audit.EventForceLogout,
		Description: "All sessions revoked by administrator",
		Metadata:    map[string]interface{}{"admin_id": actor.String(), "revoked": n},
	})
	return n, nil
}
