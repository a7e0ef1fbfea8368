package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the loaded configuration. Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range (got %d)", c.Server.Port)
	}
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.RateLimit.validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if c.Throttle.RPS <= 0 || c.Throttle.Burst < 1 {
		return fmt.Errorf("throttle: rps must be > 0 and burst >= 1 (got %v, %d)", c.Throttle.RPS, c.Throttle.Burst)
	}
	if err := c.Captcha.validate(); err != nil {
		return fmt.Errorf("captcha: %w", err)
	}
	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		return errors.New("discord: token and channel_id must be set together")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case DriverSQLite:
		if s.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if s.PostgresDSN == "" {
			return errors.New("postgres_dsn is required for the postgres driver")
		}
		if s.MaxConns < 1 || s.MinConns < 0 || s.MinConns > s.MaxConns {
			return fmt.Errorf("invalid pool size min=%d max=%d", s.MinConns, s.MaxConns)
		}
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	if s.QueryTimeout <= 0 {
		return errors.New("query_timeout must be > 0")
	}
	return nil
}

func (r RateLimitConfig) validate() error {
	if r.HourlyLimit < 1 || r.HourlyWindow <= 0 {
		return fmt.Errorf("hourly limit and window must be positive (got %d, %s)", r.HourlyLimit, r.HourlyWindow)
	}
	if r.DailyLimit < 0 {
		return fmt.Errorf("daily_limit must be >= 0 (got %d)", r.DailyLimit)
	}
	if r.DailyLimit > 0 && r.DailyWindow <= 0 {
		return errors.New("daily_window must be positive when daily_limit is set")
	}
	if r.MaxKeys < 1 {
		return fmt.Errorf("max_keys must be >= 1 (got %d)", r.MaxKeys)
	}
	if len(r.KeySecret) > 64 {
		return errors.New("key_secret must be at most 64 bytes")
	}
	return nil
}

func (c CaptchaConfig) validate() error {
	if c.Min < 1 {
		return fmt.Errorf("min must be >= 1 (got %d)", c.Min)
	}
	if c.Min > c.Max {
		return fmt.Errorf("min %d is greater than max %d", c.Min, c.Max)
	}
	if c.Secret != "" && len(c.Secret) < 16 {
		return fmt.Errorf("secret must be at least 16 characters (got %d)", len(c.Secret))
	}
	if c.RequireToken && c.Secret == "" {
		return errors.New("require_token needs a secret")
	}
	return nil
}
