package config

// RedisConfig holds the connection settings for the optional Redis settings backend.
// An empty Addr means Redis is not configured.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:""`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// Enabled reports whether a Redis address was supplied
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}
