package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.False(t, cfg.Standalone)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "bigfin", cfg.Database.Database)
	assert.Equal(t, 15*time.Second, cfg.Provider.CallTimeout)
	assert.Equal(t, "America/New_York", cfg.Routing.Timezone)
	assert.Equal(t, "platform", cfg.Transfer.PlatformAccountRef)
	assert.True(t, cfg.Transfer.Holds.Enabled)
	assert.Equal(t, int64(500_000), cfg.Transfer.Holds.ThresholdCents)
	assert.Equal(t, 7*24*time.Hour, cfg.Reconciliation.Window)
	assert.True(t, cfg.Reconciliation.AutoResolve)
	assert.False(t, cfg.Reconciliation.DryRun)
	assert.Empty(t, cfg.GetConfigPath())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bigfind.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
standalone = true

[routing]
timezone = "America/Chicago"

[transfer.holds]
enabled = false

[reconciliation]
window = "48h"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Standalone)
	assert.Equal(t, "America/Chicago", cfg.Routing.Timezone)
	assert.False(t, cfg.Transfer.Holds.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Reconciliation.Window)
	// Untouched sections keep their defaults.
	assert.Equal(t, "platform", cfg.Transfer.PlatformAccountRef)
	assert.Equal(t, path, cfg.GetConfigPath())
}

func TestMissingFileRejected(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BIGFIND_STANDALONE", "true")
	t.Setenv("BIGFIND_ROUTING_TIMEZONE", "UTC")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Standalone)
	assert.Equal(t, "UTC", cfg.Routing.Timezone)
}

func TestValidation(t *testing.T) {
	base := func() *Config {
		c := DefaultConfig()
		c.Standalone = true
		return c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero provider timeout", func(c *Config) { c.Provider.CallTimeout = 0 }},
		{"bad timezone", func(c *Config) { c.Routing.Timezone = "Mars/Olympus" }},
		{"empty platform ref", func(c *Config) { c.Transfer.PlatformAccountRef = "" }},
		{"negative hold threshold", func(c *Config) { c.Transfer.Holds.ThresholdCents = -1 }},
		{"enabled holds need a duration", func(c *Config) { c.Transfer.Holds.Duration = 0 }},
		{"zero recon window", func(c *Config) { c.Reconciliation.Window = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			require.Error(t, c.Validate())
		})
	}

	require.NoError(t, base().Validate())
}

func TestSQLiteForcesSingleConnection(t *testing.T) {
	d := DatabaseConfig{Driver: "sqlite", ConnectionString: "file:test.db", MaxOpenConns: 25}
	cfg := d.ToStorage()
	assert.Equal(t, 1, cfg.MaxOpenConns)
	assert.Equal(t, 1, cfg.MaxIdleConns)
}
