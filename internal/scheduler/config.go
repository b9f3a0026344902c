package scheduler

import (
	"time"

	"github.com/smallbiznis/backoffice/internal/config"
)

const defaultLeaseKey = "backoffice:sweep:lease"

// Config controls how the sweep loop claims and bounds each run. Cadence and
// concurrency come from the engine config so they follow reloads.
type Config struct {
	LeaseKey string
	// LeaseSlack is added to the sweep timeout to form the lease TTL.
	LeaseSlack time.Duration
}

func DefaultConfig() Config {
	return Config{
		LeaseKey:   defaultLeaseKey,
		LeaseSlack: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.LeaseKey == "" {
		c.LeaseKey = defaults.LeaseKey
	}
	if c.LeaseSlack <= 0 {
		c.LeaseSlack = defaults.LeaseSlack
	}
	return c
}

func sweepTimeout(cfg config.SweepConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return config.DefaultEngineConfig().Sweep.Timeout
}

func sweepInterval(cfg config.SweepConfig) time.Duration {
	if cfg.Interval > 0 {
		return cfg.Interval
	}
	return config.DefaultEngineConfig().Sweep.Interval
}
