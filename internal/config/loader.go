package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFile is the file LoadConfig falls back to when no explicit
// path is given.
const DefaultConfigFile = "bigfind.toml"

// LoadConfig loads configuration from multiple sources in priority order:
// 1. Default values
// 2. Configuration file (bigfind.toml)
// 3. Environment variables (BIGFIND_ prefix)
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	usedPath := ""
	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		usedPath = path
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		v.SetConfigFile(DefaultConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", DefaultConfigFile, err)
		}
		usedPath = DefaultConfigFile
	}

	v.SetEnvPrefix("BIGFIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.configPath = usedPath

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// setDefaults seeds viper with DefaultConfig so file and environment
// overrides layer on top.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("standalone", d.Standalone)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.username", d.Database.Username)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)

	v.SetDefault("key_value.path", d.KeyValue.Path)

	v.SetDefault("provider.call_timeout", d.Provider.CallTimeout)

	v.SetDefault("routing.timezone", d.Routing.Timezone)

	v.SetDefault("transfer.platform_account_ref", d.Transfer.PlatformAccountRef)
	v.SetDefault("transfer.holds.enabled", d.Transfer.Holds.Enabled)
	v.SetDefault("transfer.holds.threshold_cents", d.Transfer.Holds.ThresholdCents)
	v.SetDefault("transfer.holds.duration", d.Transfer.Holds.Duration)

	v.SetDefault("reconciliation.auto_resolve", d.Reconciliation.AutoResolve)
	v.SetDefault("reconciliation.window", d.Reconciliation.Window)
	v.SetDefault("reconciliation.dry_run", d.Reconciliation.DryRun)
}
