package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// env returns the trimmed value of key; blank counts as unset
func env(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// GetEnvOrDefault returns key from the environment, or defaultValue when it is unset or blank.
// Used by the binaries that read config without cleanenv.
func GetEnvOrDefault(key, defaultValue string) string {
	if v, ok := env(key); ok {
		return v
	}
	return defaultValue
}

// GetEnvUint16 parses key as a port-sized integer. An unparsable value is logged and ignored.
func GetEnvUint16(key string, defaultValue uint16) uint16 {
	v, ok := env(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		slog.Warn("Ignoring invalid environment value", "key", key, "value", v, "default", defaultValue)
		return defaultValue
	}
	return uint16(n)
}
