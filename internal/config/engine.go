package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	OverpaymentClamp  = "clamp"
	OverpaymentReject = "reject"
)

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}$`)

// EngineConfig tunes the billing engine. It can be reloaded at runtime.
type EngineConfig struct {
	DocumentPrefix        string      `mapstructure:"document_prefix"`
	Timezone              string      `mapstructure:"timezone"`
	MaxAllocationAttempts int         `mapstructure:"max_allocation_attempts"`
	MaxTxAttempts         int         `mapstructure:"max_tx_attempts"`
	OverpaymentPolicy     string      `mapstructure:"overpayment_policy"`
	Sweep                 SweepConfig `mapstructure:"sweep"`
}

// SweepConfig drives the periodic catch-up sweep. Cron, when set, replaces
// Interval and is read in the engine timezone.
type SweepConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Cron        string        `mapstructure:"cron"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DocumentPrefix:        "TKB",
		Timezone:              "UTC",
		MaxAllocationAttempts: 5,
		MaxTxAttempts:         3,
		OverpaymentPolicy:     OverpaymentClamp,
		Sweep: SweepConfig{
			Enabled:     false,
			Interval:    time.Hour,
			Concurrency: 4,
			Timeout:     5 * time.Minute,
		},
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c EngineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c EngineConfig) Validate() error {
	if !prefixPattern.MatchString(c.DocumentPrefix) {
		return fmt.Errorf("engine.document_prefix %q must match %s", c.DocumentPrefix, prefixPattern)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	if c.MaxAllocationAttempts < 1 {
		return errors.New("engine.max_allocation_attempts must be >= 1")
	}
	if c.MaxTxAttempts < 1 {
		return errors.New("engine.max_tx_attempts must be >= 1")
	}
	switch c.OverpaymentPolicy {
	case OverpaymentClamp, OverpaymentReject:
	default:
		return fmt.Errorf("engine.overpayment_policy %q is not supported", c.OverpaymentPolicy)
	}
	if c.Sweep.Cron != "" {
		if _, err := c.Sweep.Schedule(); err != nil {
			return fmt.Errorf("engine.sweep.cron: %w", err)
		}
	} else if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return errors.New("engine.sweep.interval must be positive when the sweep is enabled")
	}
	if c.Sweep.Concurrency < 1 {
		return errors.New("engine.sweep.concurrency must be >= 1")
	}
	return nil
}

// Schedule parses Cron as a standard five-field expression.
func (c SweepConfig) Schedule() (cron.Schedule, error) {
	return cron.ParseStandard(strings.TrimSpace(c.Cron))
}

// ValidPrefix reports whether prefix can head a document identifier.
func ValidPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewStaticEngineConfig returns a holder that never reloads.
func NewStaticEngineConfig(cfg EngineConfig) *EngineConfigHolder {
	h := &EngineConfigHolder{}
	h.current.Store(cfg)
	return h
}

func NewEngineConfigHolder(appCfg Config, log *zap.Logger) (*EngineConfigHolder, error) {
	log = log.Named("engine.config")
	v := viper.New()

	if appCfg.EngineConfigPath != "" {
		v.SetConfigFile(appCfg.EngineConfigPath)
	} else {
		v.SetConfigName("engine")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/backoffice")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.document_prefix", defaults.DocumentPrefix)
	v.SetDefault("engine.timezone", defaults.Timezone)
	v.SetDefault("engine.max_allocation_attempts", defaults.MaxAllocationAttempts)
	v.SetDefault("engine.max_tx_attempts", defaults.MaxTxAttempts)
	v.SetDefault("engine.overpayment_policy", defaults.OverpaymentPolicy)
	v.SetDefault("engine.sweep.enabled", defaults.Sweep.Enabled)
	v.SetDefault("engine.sweep.interval", defaults.Sweep.Interval)
	v.SetDefault("engine.sweep.cron", defaults.Sweep.Cron)
	v.SetDefault("engine.sweep.concurrency", defaults.Sweep.Concurrency)
	v.SetDefault("engine.sweep.timeout", defaults.Sweep.Timeout)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
		log.Info("engine config file not found, using defaults")
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	holder := NewStaticEngineConfig(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated EngineConfig
			if err := v.UnmarshalKey("engine", &updated); err != nil {
				log.Warn("engine config reload failed", zap.Error(err))
				return
			}
			if err := updated.Validate(); err != nil {
				log.Warn("invalid engine config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("engine config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	return h.current.Load().(EngineConfig)
}
