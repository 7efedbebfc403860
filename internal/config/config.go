// Package config loads and validates spider configuration via Viper.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Pool    PoolConfig    `mapstructure:"pool"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PoolConfig selects and sizes the worker pool.
type PoolConfig struct {
	// Kind is "fixed" or "renewable".
	Kind string `mapstructure:"kind"`
	// Workers <= 0 picks one less than the CPU count.
	Workers int `mapstructure:"workers"`
	// Overflow is "block" or "reject"; renewable pools only.
	Overflow        string        `mapstructure:"overflow"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RatePerDomain  float64 `mapstructure:"rate_per_domain"`
	Burst          int     `mapstructure:"burst"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
}

// DBConfig controls access to Postgres. An explicit DSN wins over the parts.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Name         string `mapstructure:"name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// SweepConfig drives the periodic re-crawl timer.
type SweepConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Deferred bool          `mapstructure:"deferred"`
	URLs     []string      `mapstructure:"urls"`
}

// PubSubConfig holds metadata for link notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is empty for the encoder's default.
	Level string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("pool.kind", "fixed")
	v.SetDefault("pool.workers", 0)
	v.SetDefault("pool.overflow", "block")
	v.SetDefault("pool.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "spider/0.1")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.rate_per_domain", 2.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "0.0.0.0")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("sweep.enabled", false)
	v.SetDefault("sweep.interval", 20*time.Minute)
	v.SetDefault("sweep.deferred", false)
	v.SetDefault("sweep.urls", []string{})
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// bindLegacyEnv accepts the unprefixed variable names used by existing
// deployments alongside the SPIDER_* ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"pool.workers": {"SPIDER_POOL_WORKERS", "WORKERS"},
		"db.host":      {"SPIDER_DB_HOST", "POSTGRES_HOST"},
		"db.port":      {"SPIDER_DB_PORT", "POSTGRES_PORT"},
		"db.name":      {"SPIDER_DB_NAME", "POSTGRES_DB"},
		"db.user":      {"SPIDER_DB_USER", "POSTGRES_USER"},
		"db.password":  {"SPIDER_DB_PASSWORD", "POSTGRES_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Pool.Kind {
	case "fixed", "renewable":
	default:
		return fmt.Errorf("pool.kind must be fixed or renewable, got %q", c.Pool.Kind)
	}
	switch c.Pool.Overflow {
	case "", "block", "reject":
	default:
		return fmt.Errorf("pool.overflow must be block or reject, got %q", c.Pool.Overflow)
	}
	if c.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RatePerDomain < 0 {
		return fmt.Errorf("http.rate_per_domain must be >= 0")
	}
	if c.Sweep.Enabled {
		if c.Sweep.Interval <= 0 {
			return fmt.Errorf("sweep.interval must be > 0 when sweep is enabled")
		}
		if len(c.Sweep.URLs) == 0 {
			return fmt.Errorf("sweep.urls must not be empty when sweep is enabled")
		}
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// DSN returns the Postgres connection string, or "" when no database is
// configured and an in-memory sink should be used.
func (c Config) DSN() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	if c.DB.Name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:   "/" + c.DB.Name,
	}
	if c.DB.Password != "" {
		u.User = url.UserPassword(c.DB.User, c.DB.Password)
	} else if c.DB.User != "" {
		u.User = url.User(c.DB.User)
	}
	return u.String()
}

// FetchTimeout converts http.timeout_seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
