// Package config loads the YAML configuration of the apictl and stubapi
// commands. The library itself is configured with functional options only.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root command configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	Stub    StubConfig    `mapstructure:"stub"`
}

// APIConfig maps onto the apiclient options.
type APIConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	RefreshPath      string        `mapstructure:"refresh_path"`
	RefreshTimeout   time.Duration `mapstructure:"refresh_timeout"`
	ProactiveRefresh time.Duration `mapstructure:"proactive_refresh"`
	UserAgent        string        `mapstructure:"user_agent"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// SessionConfig selects where tokens are persisted between runs.
type SessionConfig struct {
	// Store: memory or redis
	Store     string        `mapstructure:"store"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Tenant    string        `mapstructure:"tenant"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StubConfig configures cmd/stubapi.
type StubConfig struct {
	Listen    string        `mapstructure:"listen"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`
	Secret    string        `mapstructure:"secret"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			MaxRetries:     3,
			RetryDelay:     time.Second,
			RefreshPath:    "/auth/refresh",
			RefreshTimeout: 10 * time.Second,
			UserAgent:      "apictl",
			RateBurst:      1,
		},
		Session: SessionConfig{
			Store:     "memory",
			RedisAddr: "localhost:6379",
			Tenant:    "default",
			KeyPrefix: "apiclient:session",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/apictl.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Stub: StubConfig{
			Listen:    ":8080",
			AccessTTL: 15 * time.Minute,
			Username:  "demo",
			Password:  "demo",
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise it searches
// common locations. Environment variables use the prefix APICLIENT and
// `.`/`-` are replaced with `_`, e.g. APICLIENT_API_BASE_URL.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APICLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("api.retry_delay", cfg.API.RetryDelay)
	v.SetDefault("api.refresh_path", cfg.API.RefreshPath)
	v.SetDefault("api.refresh_timeout", cfg.API.RefreshTimeout)
	v.SetDefault("api.proactive_refresh", cfg.API.ProactiveRefresh)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.rate_limit", cfg.API.RateLimit)
	v.SetDefault("api.rate_burst", cfg.API.RateBurst)
	v.SetDefault("session.store", cfg.Session.Store)
	v.SetDefault("session.redis_addr", cfg.Session.RedisAddr)
	v.SetDefault("session.tenant", cfg.Session.Tenant)
	v.SetDefault("session.key_prefix", cfg.Session.KeyPrefix)
	v.SetDefault("session.ttl", cfg.Session.TTL)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("stub.listen", cfg.Stub.Listen)
	v.SetDefault("stub.access_ttl", cfg.Stub.AccessTTL)
	v.SetDefault("stub.secret", cfg.Stub.Secret)
	v.SetDefault("stub.username", cfg.Stub.Username)
	v.SetDefault("stub.password", cfg.Stub.Password)

	if path == "" {
		path = os.Getenv("APICLIENT_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("apiclient")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".apiclient"))
		}
	}

	// a missing config file is fine; defaults and env still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("invalid api.max_retries: %d", c.API.MaxRetries)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("invalid api.rate_limit: %v", c.API.RateLimit)
	}
	if c.API.RateBurst < 1 {
		c.API.RateBurst = 1
	}

	c.Session.Store = strings.ToLower(strings.TrimSpace(c.Session.Store))
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return errors.New("session.redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("invalid session.store: %q", c.Session.Store)
	}
	return nil
}
