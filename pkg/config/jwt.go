package config

import (
	"fmt"
	"time"
)

// JWTConfig holds credential signing configuration
type JWTConfig struct {
	Secret             string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	AccessTokenExpiry  string `env:"ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshTokenExpiry string `env:"REFRESH_TOKEN_EXPIRY" env-default:"168h"`
	Issuer             string `env:"JWT_ISSUER" env-default:"simple-lms"`
	Audience           string `env:"JWT_AUDIENCE" env-default:"simple-lms"`
}

// ParseAccessTokenExpiry parses the access token expiry duration
func (j JWTConfig) ParseAccessTokenExpiry() (time.Duration, error) {
	return parsePositiveDuration("ACCESS_TOKEN_EXPIRY", j.AccessTokenExpiry)
}

// ParseRefreshTokenExpiry parses the refresh token expiry duration
func (j JWTConfig) ParseRefreshTokenExpiry() (time.Duration, error) {
	return parsePositiveDuration("REFRESH_TOKEN_EXPIRY", j.RefreshTokenExpiry)
}

// NewJWTConfigFromEnv creates a JWTConfig from environment variables
func NewJWTConfigFromEnv() JWTConfig {
	return JWTConfig{
		Secret:             GetEnvOrDefault("JWT_SECRET", "very-secure-jwt-secret"),
		AccessTokenExpiry:  GetEnvOrDefault("ACCESS_TOKEN_EXPIRY", "15m"),
		RefreshTokenExpiry: GetEnvOrDefault("REFRESH_TOKEN_EXPIRY", "168h"),
		Issuer:             GetEnvOrDefault("JWT_ISSUER", "simple-lms"),
		Audience:           GetEnvOrDefault("JWT_AUDIENCE", "simple-lms"),
	}
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return d, nil
}
