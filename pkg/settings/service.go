package settings

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	lmserrors "github.com/tendant/simple-lms/pkg/errors"
)

// Policy is a snapshot of the global device policy
type Policy struct {
	MaxDevicesPerStudent int  `json:"max_devices_per_student"`
	EnforcementEnabled   bool `json:"device_enforcement_enabled"`
}

// ValidDeviceLimit reports whether n is an accepted per-student device cap
func ValidDeviceLimit(n int) bool {
	return n == 1 || n == 2
}

// Service reads and writes the global device policy
type Service struct {
	store    Store
	defaults Policy
}

// NewService creates a policy settings service. defaults apply only to keys never written.
func NewService(store Store, defaults Policy) *Service {
	if !ValidDeviceLimit(defaults.MaxDevicesPerStudent) {
		defaults.MaxDevicesPerStudent = 2
	}
	return &Service{store: store, defaults: defaults}
}

// MaxDevicesPerStudent returns the current device cap. Unparseable stored values fall back to the default.
func (s *Service) MaxDevicesPerStudent(ctx context.Context) (int, error) {
	raw, found, err := s.store.Get(ctx, KeyMaxDevicesPerStudent)
	if err != nil {
		return 0, err
	}
	if !found {
		return s.defaults.MaxDevicesPerStudent, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !ValidDeviceLimit(n) {
		slog.Warn("Ignoring invalid stored device limit", "value", raw, "default", s.defaults.MaxDevicesPerStudent)
		return s.defaults.MaxDevicesPerStudent, nil
	}
	return n, nil
}

// EnforcementEnabled returns whether student device enforcement is on
func (s *Service) EnforcementEnabled(ctx context.Context) (bool, error) {
	raw, found, err := s.store.Get(ctx, KeyDeviceTrackingEnabled)
	if err != nil {
		return false, err
	}
	if !found {
		return s.defaults.EnforcementEnabled, nil
	}
	enabled, err := parseBool(raw)
	if err != nil {
		slog.Warn("Ignoring invalid stored enforcement flag", "value", raw, "default", s.defaults.EnforcementEnabled)
		return s.defaults.EnforcementEnabled, nil
	}
	return enabled, nil
}

// Current reads both settings
func (s *Service) Current(ctx context.Context) (Policy, error) {
	limit, err := s.MaxDevicesPerStudent(ctx)
	if err != nil {
		return Policy{}, err
	}
	enabled, err := s.EnforcementEnabled(ctx)
	if err != nil {
		return Policy{}, err
	}
	return Policy{MaxDevicesPerStudent: limit, EnforcementEnabled: enabled}, nil
}

// SetMaxDevicesPerStudent persists a new cap. Values outside {1,2} fail with InvalidPolicyValue.
func (s *Service) SetMaxDevicesPerStudent(ctx context.Context, n int) error {
	if !ValidDeviceLimit(n) {
		return lmserrors.ErrInvalidPolicyValue.WithDetail("value", n)
	}
	return s.store.Set(ctx, KeyMaxDevicesPerStudent, strconv.Itoa(n))
}

// SetEnforcementEnabled persists the enforcement toggle
func (s *Service) SetEnforcementEnabled(ctx context.Context, enabled bool) error {
	return s.store.Set(ctx, KeyDeviceTrackingEnabled, strconv.FormatBool(enabled))
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}
