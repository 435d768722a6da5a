package config

import (
	"fmt"
	"time"
)

// Settings backends accepted by DevicePolicyConfig.SettingsBackend
const (
	SettingsBackendPostgres = "postgres"
	SettingsBackendRedis    = "redis"
	SettingsBackendMemory   = "memory"
)

// DevicePolicyConfig configures the student device policy.
//
// DefaultMaxDevices and DefaultEnforcement are only used when the shared settings
// store has no value for the key yet; administrators change the live values through
// the admin API.
type DevicePolicyConfig struct {
	SettingsBackend    string        `env:"SETTINGS_BACKEND" env-default:"postgres"`
	DefaultMaxDevices  int           `env:"DEFAULT_MAX_DEVICES" env-default:"2"`
	DefaultEnforcement bool          `env:"DEFAULT_DEVICE_ENFORCEMENT" env-default:"true"`
	DeviceHeader       string        `env:"DEVICE_HEADER" env-default:"X-Device-Id"`
	AuditBuffer        int           `env:"AUDIT_BUFFER" env-default:"256"`
	SweepInterval      time.Duration `env:"CREDENTIAL_SWEEP_INTERVAL" env-default:"1h"`
}

// Validate checks the static parts of the device policy configuration
func (c DevicePolicyConfig) Validate() error {
	switch c.SettingsBackend {
	case SettingsBackendPostgres, SettingsBackendRedis, SettingsBackendMemory:
	default:
		return fmt.Errorf("unsupported SETTINGS_BACKEND %q (supported: postgres, redis, memory)", c.SettingsBackend)
	}
	if c.DefaultMaxDevices != 1 && c.DefaultMaxDevices != 2 {
		return fmt.Errorf("DEFAULT_MAX_DEVICES must be 1 or 2, got %d", c.DefaultMaxDevices)
	}
	if c.DeviceHeader == "" {
		return fmt.Errorf("DEVICE_HEADER must not be empty")
	}
	return nil
}
