package config

import (
	"fmt"
	"time"
)

// Validate checks the configuration for errors a run would otherwise only
// hit at first use.
func (c *Config) Validate() error {
	if !c.Standalone {
		if err := c.Database.ToStorage().Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if c.Provider.CallTimeout <= 0 {
		return fmt.Errorf("provider.call_timeout must be positive, got %s", c.Provider.CallTimeout)
	}

	if c.Routing.Timezone != "" {
		if _, err := time.LoadLocation(c.Routing.Timezone); err != nil {
			return fmt.Errorf("routing.timezone: %w", err)
		}
	}

	if c.Transfer.PlatformAccountRef == "" {
		return fmt.Errorf("transfer.platform_account_ref is required")
	}
	if c.Transfer.Holds.ThresholdCents < 0 {
		return fmt.Errorf("transfer.holds.threshold_cents cannot be negative")
	}
	if c.Transfer.Holds.Enabled && c.Transfer.Holds.Duration <= 0 {
		return fmt.Errorf("transfer.holds.duration must be positive when holds are enabled")
	}

	if c.Reconciliation.Window <= 0 {
		return fmt.Errorf("reconciliation.window must be positive, got %s", c.Reconciliation.Window)
	}
	return nil
}
