// Package config loads and validates the bigfind configuration from
// bigfind.toml, environment variables (BIGFIND_ prefix) and built-in
// defaults.
package config

import (
	"time"

	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// Config is the complete bigfind configuration.
type Config struct {
	// Standalone runs everything in-process: in-memory repositories, the
	// in-memory payment provider and an in-memory idempotency store.
	Standalone bool `mapstructure:"standalone"`

	Database       DatabaseConfig `mapstructure:"database"`
	KeyValue       KeyValueConfig `mapstructure:"key_value"`
	Provider       ProviderConfig `mapstructure:"provider"`
	Routing        RoutingConfig  `mapstructure:"routing"`
	Transfer       TransferConfig `mapstructure:"transfer"`
	Reconciliation ReconConfig    `mapstructure:"reconciliation"`

	// Internal fields for configuration management
	configPath string `mapstructure:"-"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"`
	ConnectionString string        `mapstructure:"connection_string"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Database         string        `mapstructure:"database"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
}

// ToStorage maps the section onto the storage layer's config, which owns
// driver-specific defaulting and validation.
func (d DatabaseConfig) ToStorage() *relationaldb.Config {
	cfg := relationaldb.NewConfig()
	if d.Driver != "" {
		cfg.Driver = d.Driver
	}
	if d.ConnectionString != "" {
		cfg.ConnectionString = d.ConnectionString
	}
	if d.Host != "" {
		cfg.Host = d.Host
	}
	if d.Port != 0 {
		cfg.Port = d.Port
	}
	if d.Database != "" {
		cfg.Database = d.Database
	}
	if d.Username != "" {
		cfg.Username = d.Username
	}
	if d.Password != "" {
		cfg.Password = d.Password
	}
	if d.SSLMode != "" {
		cfg.SSLMode = d.SSLMode
	}
	if d.MaxOpenConns != 0 {
		cfg.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns != 0 {
		cfg.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime != 0 {
		cfg.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if d.DefaultTimeout != 0 {
		cfg.DefaultTimeout = d.DefaultTimeout
	}
	if d.MaxRetries != 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if d.RetryDelay != 0 {
		cfg.RetryDelay = d.RetryDelay
	}
	if cfg.Driver == "sqlite" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// KeyValueConfig configures the pebble-backed key/value store used by the
// idempotency layer.
type KeyValueConfig struct {
	// Path is the pebble database directory. Empty selects the in-memory
	// key/value store.
	Path string `mapstructure:"path"`
}

// ProviderConfig configures the payment provider integration.
type ProviderConfig struct {
	// WebhookSecret signs and verifies webhook payloads.
	WebhookSecret string `mapstructure:"webhook_secret"`

	// CallTimeout bounds each provider API call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// RoutingConfig configures the routing engine.
type RoutingConfig struct {
	// Timezone anchors business-hours arrival estimates.
	Timezone string `mapstructure:"timezone"`
}

// TransferConfig configures the transfer orchestrator.
type TransferConfig struct {
	// PlatformAccountRef is the provider account holding the platform's
	// payment methods.
	PlatformAccountRef string `mapstructure:"platform_account_ref"`

	Holds HoldsConfig `mapstructure:"holds"`
}

// HoldsConfig is the funds-availability hold policy.
type HoldsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ThresholdCents int64         `mapstructure:"threshold_cents"`
	Duration       time.Duration `mapstructure:"duration"`
}

// ReconConfig configures the reconciliation engine.
type ReconConfig struct {
	AutoResolve bool          `mapstructure:"auto_resolve"`
	Window      time.Duration `mapstructure:"window"`

	// DryRun reports exceptions without persisting corrections. Usually
	// set per invocation via the reconcile command flag.
	DryRun bool `mapstructure:"dry_run"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			Database: "bigfin",
			Username: "bigfin",
			SSLMode:  "prefer",
		},
		Provider: ProviderConfig{
			CallTimeout: 15 * time.Second,
		},
		Routing: RoutingConfig{
			Timezone: "America/New_York",
		},
		Transfer: TransferConfig{
			PlatformAccountRef: "platform",
			Holds: HoldsConfig{
				Enabled:        true,
				ThresholdCents: 500_000,
				Duration:       24 * time.Hour,
			},
		},
		Reconciliation: ReconConfig{
			AutoResolve: true,
			Window:      7 * 24 * time.Hour,
		},
	}
}

// GetConfigPath returns the path the configuration was loaded from, empty
// when running on defaults only.
func (c *Config) GetConfigPath() string {
	return c.configPath
}
