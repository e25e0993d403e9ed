// Package config provides environment-based configuration for the marketplace.
//
// Values are resolved in order of increasing precedence: built-in defaults,
// an optional YAML file named by CONFIG_FILE, a .env file in the working
// directory, and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the marketplace binaries.
type Config struct {
	// Database configuration
	DatabaseURL string `yaml:"database_url"`
	StoreDriver string `yaml:"store_driver"`

	// Redis backs the dispatcher lock and the link rate limiter; optional.
	Redis RedisConfig `yaml:"redis"`

	// Authentication
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`

	// Server configuration
	APIHost       string `yaml:"api_host"`
	APIPort       int    `yaml:"api_port"`
	PublicBaseURL string `yaml:"public_base_url"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Marketplace windows
	PaymentWindow time.Duration `yaml:"payment_window"`
	TokenTTL      time.Duration `yaml:"token_ttl"`

	SMTP     SMTPConfig     `yaml:"smtp"`
	Notify   NotifyConfig   `yaml:"notify"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Links    LinkConfig     `yaml:"links"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// RedisConfig holds the optional Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SMTPConfig holds outgoing mail settings. Mail is disabled when Host is empty.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// NotifyConfig selects additional notification channels.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	// Events limits which event kinds are delivered. Empty means all.
	Events []string `yaml:"events"`
}

// DispatchConfig holds notification worker settings.
type DispatchConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// VisibilityTimeout is how long a claimed event may go unacknowledged
	// before another worker takes it over.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
}

// LinkConfig keys the one-time links and rate-limits their public endpoints
// per client IP.
type LinkConfig struct {
	// Secret derives raw links from token IDs. Defaults to JWTSecret.
	Secret     string        `yaml:"secret"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// CleanupConfig sets how long spent link tokens and read notifications are kept.
type CleanupConfig struct {
	TokenRetention        time.Duration `yaml:"token_retention"`
	NotificationRetention time.Duration `yaml:"notification_retention"`
	Interval              time.Duration `yaml:"interval"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DatabaseURL:     "postgres://localhost:5432/factorhub?sslmode=disable",
		StoreDriver:     StoreDriverPostgres,
		JWTExpiry:       24 * time.Hour,
		APIHost:         "0.0.0.0",
		APIPort:         8080,
		PublicBaseURL:   "http://localhost:8080",
		ShutdownTimeout: 30 * time.Second,
		PaymentWindow:   24 * time.Hour,
		TokenTTL:        7 * 24 * time.Hour,
		SMTP:            SMTPConfig{Port: 587},
		Dispatch: DispatchConfig{
			Concurrency:       4,
			MaxAttempts:       5,
			PollInterval:      time.Second,
			VisibilityTimeout: 5 * time.Minute,
		},
		Links: LinkConfig{
			RateLimit:  30,
			RateWindow: time.Minute,
		},
		Cleanup: CleanupConfig{
			TokenRetention:        30 * 24 * time.Hour,
			NotificationRetention: 90 * 24 * time.Hour,
			Interval:              time.Hour,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads configuration and validates it.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing and dev tools.
func LoadWithDefaults() *Config {
	cfg, err := load()
	if err != nil {
		cfg = Defaults()
		applyEnv(cfg)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret-key-min-32-chars"
	}
	return cfg
}

func load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getIntEnv("REDIS_DB", cfg.Redis.DB)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpiry = getDurationEnv("JWT_EXPIRY", cfg.JWTExpiry)

	cfg.APIHost = getEnv("API_HOST", cfg.APIHost)
	cfg.APIPort = getIntEnv("API_PORT", cfg.APIPort)
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.PaymentWindow = getDurationEnv("PAYMENT_WINDOW", cfg.PaymentWindow)
	cfg.TokenTTL = getDurationEnv("TOKEN_TTL", cfg.TokenTTL)

	cfg.SMTP.Host = getEnv("SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = getIntEnv("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", cfg.SMTP.Password)
	cfg.SMTP.From = getEnv("SMTP_FROM", cfg.SMTP.From)

	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Events = getListEnv("NOTIFY_EVENTS", cfg.Notify.Events)

	cfg.Dispatch.Concurrency = getIntEnv("DISPATCH_CONCURRENCY", cfg.Dispatch.Concurrency)
	cfg.Dispatch.MaxAttempts = getIntEnv("DISPATCH_MAX_ATTEMPTS", cfg.Dispatch.MaxAttempts)
	cfg.Dispatch.PollInterval = getDurationEnv("DISPATCH_POLL_INTERVAL", cfg.Dispatch.PollInterval)
	cfg.Dispatch.VisibilityTimeout = getDurationEnv("DISPATCH_VISIBILITY_TIMEOUT", cfg.Dispatch.VisibilityTimeout)

	cfg.Links.Secret = getEnv("LINK_SECRET", cfg.Links.Secret)
	cfg.Links.RateLimit = getIntEnv("LINK_RATE_LIMIT", cfg.Links.RateLimit)
	cfg.Links.RateWindow = getDurationEnv("LINK_RATE_WINDOW", cfg.Links.RateWindow)

	cfg.Cleanup.TokenRetention = getDurationEnv("CLEANUP_TOKEN_RETENTION", cfg.Cleanup.TokenRetention)
	cfg.Cleanup.NotificationRetention = getDurationEnv("CLEANUP_NOTIFICATION_RETENTION", cfg.Cleanup.NotificationRetention)
	cfg.Cleanup.Interval = getDurationEnv("CLEANUP_INTERVAL", cfg.Cleanup.Interval)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Links.Secret != "" && len(c.Links.Secret) < 32 {
		return fmt.Errorf("LINK_SECRET must be at least 32 characters")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW must be positive")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}

// LinkSecret returns the key for one-time links. The API and the worker
// must resolve the same value.
func (c *Config) LinkSecret() []byte {
	if c.Links.Secret != "" {
		return []byte(c.Links.Secret)
	}
	return []byte(c.JWTSecret)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
