package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "browserd", cfg.Logger.ServiceName)
	assert.Equal(t, ":8843", cfg.Server.Addr)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.LaunchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.QuietPeriod)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Session.CleanupInterval)
	assert.Equal(t, 5000, cfg.Page.MaxContentChars)
	assert.Equal(t, 100, cfg.Page.MaxLinks)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, NewDefaultConfig().Validate())
	})

	t.Run("empty listen address", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Server.Addr = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.addr")
	})

	t.Run("invalid viewport", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.ViewportWidth = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "viewport")
	})

	t.Run("non-positive timeouts", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.LaunchTimeout = 0
		assert.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.Browser.NavigationTimeout = -time.Second
		assert.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.Session.IdleTimeout = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive page caps", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Page.MaxLinks = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page.max_links")
	})
}

// -- Loading Tests --

func TestLoad(t *testing.T) {
	t.Run("no config file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		// A named-but-missing file is an error; only discovery misses fall back.
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte("server:\n  addr: \":9000\"\nsession:\n  idle_timeout: 10m\n")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
		// Untouched keys keep defaults.
		assert.Equal(t, 30*time.Second, cfg.Browser.LaunchTimeout)
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte("page:\n  max_links: 0\n")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("BROWSERD_SERVER_ADDR", ":7777")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":7777", cfg.Server.Addr)
	})
}
