// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Session store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config holds service configuration.
type Config struct {
	ServerAddr  string `mapstructure:"SERVER_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	// RunMigrations applies the embedded schema at startup.
	RunMigrations bool `mapstructure:"RUN_MIGRATIONS"`

	// SessionStore selects where sessions live: postgres, redis or memory.
	// Users live in Postgres unless the store is memory.
	SessionStore          string        `mapstructure:"SESSION_STORE"`
	SessionTTL            time.Duration `mapstructure:"SESSION_TTL"`
	SessionRollingRefresh time.Duration `mapstructure:"SESSION_ROLLING_REFRESH"`
	// SessionSweepInterval is how often expired sessions are purged; 0 disables the sweeper.
	SessionSweepInterval time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL"`
	SessionCookieName    string        `mapstructure:"SESSION_COOKIE_NAME"`
	SessionCookieSecure  bool          `mapstructure:"SESSION_COOKIE_SECURE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
}

// Load reads .env (if present), then the environment, and validates the result.
// Environment variables override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("SERVER_ADDR", "0.0.0.0:8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("POSTGRES_USER", "session_hub")
	v.SetDefault("POSTGRES_PASSWORD", "session_hub_pass")
	v.SetDefault("POSTGRES_DB", "session_hub")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("SESSION_STORE", StorePostgres)
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("SESSION_ROLLING_REFRESH", "12h")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")
	v.SetDefault("SESSION_COOKIE_NAME", "session")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			v.GetString("POSTGRES_USER"),
			v.GetString("POSTGRES_PASSWORD"),
			v.GetString("POSTGRES_HOST"),
			v.GetString("POSTGRES_PORT"),
			v.GetString("POSTGRES_DB"),
			v.GetString("DATABASE_SSLMODE"),
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the session tunables and the store selection.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return errors.New("config: SERVER_ADDR must be set")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.SessionRollingRefresh <= 0 || c.SessionRollingRefresh >= c.SessionTTL {
		return errors.New("config: SESSION_ROLLING_REFRESH must be positive and shorter than SESSION_TTL")
	}
	if c.SessionSweepInterval < 0 {
		return errors.New("config: SESSION_SWEEP_INTERVAL must not be negative")
	}
	if c.SessionCookieName == "" {
		return errors.New("config: SESSION_COOKIE_NAME must be set")
	}
	switch c.SessionStore {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("config: unknown SESSION_STORE %q", c.SessionStore)
	}
	return nil
}
