package config

// RateLimitConfig contains login throttling settings
type RateLimitConfig struct {
	LoginEnabled   bool    `env:"LOGIN_RATE_LIMIT_ENABLED" env-default:"true"`
	LoginPerMinute float64 `env:"LOGIN_RATE_PER_MINUTE" env-default:"10"`
	LoginBurst     int     `env:"LOGIN_BURST" env-default:"5"`
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		LoginEnabled:   true,
		LoginPerMinute: 10,
		LoginBurst:     5,
	}
}
