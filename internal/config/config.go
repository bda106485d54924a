package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/loomworks/loom/pkg/util"
)

type (
	// Config holds configuration settings for the runtime
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// State store
		StateBackend   string
		StateDir       string
		StateBucketURL string
		Redis          RedisConfig

		// Engine
		StateSweepInterval time.Duration
		ShutdownTimeout    time.Duration
		MaxEmitDepth       int
	}

	// RedisConfig configures the Redis state backend
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"

	DefaultAPIHost = "0.0.0.0"
	DefaultAPIPort = 8080
	MaxTCPPort     = 65535

	DefaultStateDir      = "data/state"
	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisDB       = 0

	DefaultStateSweepInterval = time.Minute
	DefaultShutdownTimeout    = 10 * time.Second

	// MaxEmitDepth of zero disables the cascade depth guard
	DefaultMaxEmitDepth = 0
	MaxEmitDepthLimit   = 10_000
)

var (
	ErrInvalidAPIPort       = errors.New("invalid API port")
	ErrInvalidStateBackend  = errors.New("invalid state backend")
	ErrInvalidSweepInterval = errors.New(
		"state sweep interval must be positive",
	)
	ErrNegativeEmitDepth = errors.New("max emit depth cannot be negative")
)

var validBackends = util.SetOf(BackendMemory, BackendFile, BackendRedis)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, state store, and engine settings
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",

		StateBackend: BackendMemory,
		StateDir:     DefaultStateDir,
		Redis: RedisConfig{
			Addr: DefaultRedisEndpoint,
			DB:   DefaultRedisDB,
		},

		StateSweepInterval: DefaultStateSweepInterval,
		ShutdownTimeout:    DefaultShutdownTimeout,
		MaxEmitDepth:       DefaultMaxEmitDepth,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	if host := os.Getenv("API_HOST"); host != "" {
		c.APIHost = host
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if backend := os.Getenv("STATE_BACKEND"); backend != "" {
		c.StateBackend = backend
	}
	if dir := os.Getenv("STATE_DIR"); dir != "" {
		c.StateDir = dir
	}
	if bucketURL := os.Getenv("STATE_BUCKET_URL"); bucketURL != "" {
		c.StateBucketURL = bucketURL
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		c.Redis.Prefix = prefix
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt("REDIS_DB", &c.Redis.DB, -1, 15); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_EMIT_DEPTH", &c.MaxEmitDepth, -1, MaxEmitDepthLimit,
	); err != nil {
		return err
	}

	if err := loadEnvDuration(
		"STATE_SWEEP_INTERVAL", &c.StateSweepInterval,
	); err != nil {
		return err
	}
	return loadEnvDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if !validBackends.Contains(c.StateBackend) {
		return fmt.Errorf("%w: %s", ErrInvalidStateBackend, c.StateBackend)
	}

	if c.StateSweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}

	if c.MaxEmitDepth < 0 {
		return ErrNegativeEmitDepth
	}
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt(key string, dst *int, min, max int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, v, min+1, max)
	}
	*dst = v
	return nil
}

func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = d
	return nil
}
