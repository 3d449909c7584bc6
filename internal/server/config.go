// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the NexChat service.
package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`

	// IdleTimeout closes a connection that sent no traffic (including pongs)
	// for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// TypingTimeout is how long a typing signal stays active without refresh.
	TypingTimeout time.Duration `yaml:"typing_timeout"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer   int    `yaml:"send_buffer"`
	DatabasePath string `yaml:"database_path"`
}

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 16 * 1024
	defaultBurst          = 5
	defaultRefillInterval = time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultTypingTimeout  = 3 * time.Second
	defaultSendBuffer     = 256
	defaultDatabasePath   = "nexchat.db"
)

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		IdleTimeout:   defaultIdleTimeout,
		TypingTimeout: defaultTypingTimeout,
		SendBuffer:    defaultSendBuffer,
		DatabasePath:  defaultDatabasePath,
	}
	return &cfg
}

// LoadConfig builds a Config from defaults, the optional YAML file at path and
// then environment variables. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	cfg.Sanitize()
	return cfg, nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()
	applyEnv(cfg)
	cfg.Sanitize()
	return cfg
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if idle := os.Getenv("IDLE_TIMEOUT"); idle != "" {
		cfg.IdleTimeout = parseDuration(idle, cfg.IdleTimeout)
	}

	if typing := os.Getenv("TYPING_TIMEOUT"); typing != "" {
		cfg.TypingTimeout = parseDuration(typing, cfg.TypingTimeout)
	}

	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}
}

// Sanitize replaces unset or invalid values with defaults and normalizes the
// port to ":port" form.
func (c *Config) Sanitize() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultBurst
	}

	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}

	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}

	if c.TypingTimeout <= 0 {
		c.TypingTimeout = defaultTypingTimeout
	}

	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}

	if c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath
	}
}

// PingPeriod is how often the server pings an idle connection. It stays below
// IdleTimeout so a healthy peer's pong arrives before the read deadline.
func (c *Config) PingPeriod() time.Duration {
	return c.IdleTimeout * 9 / 10
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// parseDuration accepts Go durations ("3s") or bare seconds ("3").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return parseRefillInterval(value, defaultValue)
}
