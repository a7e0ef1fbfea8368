// Package config loads the server configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
	Discord   DiscordConfig   `yaml:"discord"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"PORT"                    env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects and configures the motto store.
type StorageConfig struct {
	Driver          string        `yaml:"driver"             env:"STORAGE_DRIVER"             env-default:"sqlite"`
	SQLitePath      string        `yaml:"sqlite_path"        env:"DB_PATH"                    env-default:"data/mottos.db"`
	PostgresDSN     string        `yaml:"postgres_dsn"       env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"         env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"         env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE"     env-default:"30m"`
	QueryTimeout    time.Duration `yaml:"query_timeout"      env:"STORAGE_QUERY_TIMEOUT"      env-default:"5s"`
}

// RateLimitConfig holds the submission limits. The hourly window is always
// enforced in process; the daily window uses Redis when RedisAddr is set.
type RateLimitConfig struct {
	HourlyLimit   int           `yaml:"hourly_limit"   env:"RATE_LIMIT_HOURLY"         env-default:"3"`
	HourlyWindow  time.Duration `yaml:"hourly_window"  env:"RATE_LIMIT_HOURLY_WINDOW"  env-default:"1h"`
	DailyLimit    int           `yaml:"daily_limit"    env:"RATE_LIMIT_DAILY"          env-default:"10"`
	DailyWindow   time.Duration `yaml:"daily_window"   env:"RATE_LIMIT_DAILY_WINDOW"   env-default:"24h"`
	MaxKeys       int           `yaml:"max_keys"       env:"RATE_LIMIT_MAX_KEYS"       env-default:"100000"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"RATE_LIMIT_SWEEP_INTERVAL" env-default:"5m"`
	RedisAddr     string        `yaml:"redis_addr"     env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db"       env:"REDIS_DB"                  env-default:"0"`
	RedisPrefix   string        `yaml:"redis_prefix"   env:"REDIS_PREFIX"              env-default:"motto:ratelimit"`
	KeySecret     string        `yaml:"key_secret"     env:"RATE_LIMIT_KEY_SECRET"`
}

// ThrottleConfig limits read endpoints per client.
type ThrottleConfig struct {
	RPS     float64       `yaml:"rps"      env:"THROTTLE_RPS"      env-default:"10"`
	Burst   int           `yaml:"burst"    env:"THROTTLE_BURST"    env-default:"20"`
	IdleTTL time.Duration `yaml:"idle_ttl" env:"THROTTLE_IDLE_TTL" env-default:"15m"`
}

// CaptchaConfig configures the arithmetic challenge.
type CaptchaConfig struct {
	Min          int           `yaml:"min"           env:"CAPTCHA_MIN"           env-default:"1"`
	Max          int           `yaml:"max"           env:"CAPTCHA_MAX"           env-default:"10"`
	Secret       string        `yaml:"secret"        env:"CAPTCHA_SECRET"`
	TTL          time.Duration `yaml:"ttl"           env:"CAPTCHA_TTL"           env-default:"10m"`
	RequireToken bool          `yaml:"require_token" env:"CAPTCHA_REQUIRE_TOKEN" env-default:"false"`
}

// CORSConfig holds CORS settings. Lists are comma separated.
type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	AllowedHeaders string `yaml:"allowed_headers" env:"CORS_ALLOWED_HEADERS" env-default:"authorization,x-client-info,apikey,content-type"`
	MaxAge         int    `yaml:"max_age"         env:"CORS_MAX_AGE"         env-default:"86400"`
}

// Origins returns AllowedOrigins as a list.
func (c CORSConfig) Origins() []string { return splitList(c.AllowedOrigins) }

// Headers returns AllowedHeaders as a list.
func (c CORSConfig) Headers() []string { return splitList(c.AllowedHeaders) }

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// DiscordConfig enables the new-motto feed when Token and ChannelID are set.
type DiscordConfig struct {
	Token     string `yaml:"token"      env:"DISCORD_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"DISCORD_CHANNEL_ID"`
	QueueSize int    `yaml:"queue_size" env:"DISCORD_QUEUE_SIZE" env-default:"64"`
}

// Enabled reports whether notifications should be sent.
func (d DiscordConfig) Enabled() bool {
	return d.Token != "" && d.ChannelID != ""
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
