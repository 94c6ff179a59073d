package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel host configuration.
type Config struct {
	Server    ServerConfig
	Kernel    KernelConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds introspection HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// KernelConfig holds object-layer tunables.
type KernelConfig struct {
	// HandleCapacity bounds the global arena; zero means the maximum.
	HandleCapacity int `envconfig:"KERNEL_HANDLE_CAPACITY" default:"0"`
	// MaxMessageBytes bounds one message-pipe write payload.
	MaxMessageBytes int `envconfig:"KERNEL_MAX_MESSAGE_BYTES" default:"65536"`
	// MaxMessageHandles bounds the handles carried by one message.
	MaxMessageHandles int `envconfig:"KERNEL_MAX_MESSAGE_HANDLES" default:"64"`
	// MaxWaitHandles bounds a single wait_many call.
	MaxWaitHandles int `envconfig:"KERNEL_MAX_WAIT_HANDLES" default:"256"`
	// BadHandlePolicy is "ignore", "log", or "exit".
	BadHandlePolicy string `envconfig:"KERNEL_BAD_HANDLE_POLICY" default:"log"`
	// DebugLogCapacity is the record capacity of the shared debuglog ring.
	DebugLogCapacity int `envconfig:"KERNEL_DEBUGLOG_CAPACITY" default:"1024"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds introspection API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Kernel: KernelConfig{
			HandleCapacity:    0,
			MaxMessageBytes:   65536,
			MaxMessageHandles: 64,
			MaxWaitHandles:    256,
			BadHandlePolicy:   "log",
			DebugLogCapacity:  1024,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
