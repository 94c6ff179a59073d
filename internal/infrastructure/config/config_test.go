package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaults verifies the built-in configuration.
func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 0, cfg.Kernel.HandleCapacity)
	assert.Equal(t, 65536, cfg.Kernel.MaxMessageBytes)
	assert.Equal(t, "log", cfg.Kernel.BadHandlePolicy)
	assert.Equal(t, 1024, cfg.Kernel.DebugLogCapacity)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
}

// TestLoadFromEnvironment verifies env overrides land in the right
// fields.
func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("KERNEL_HANDLE_CAPACITY", "128")
	t.Setenv("KERNEL_BAD_HANDLE_POLICY", "exit")
	t.Setenv("LOG_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 128, cfg.Kernel.HandleCapacity)
	assert.Equal(t, "exit", cfg.Kernel.BadHandlePolicy)
	assert.True(t, cfg.Logging.Development)

	// Untouched fields keep their defaults.
	assert.Equal(t, 64, cfg.Kernel.MaxMessageHandles)
}
