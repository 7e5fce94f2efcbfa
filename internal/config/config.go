package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the YAML config file at path, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8097"
	}
	if c.App.ReportTimezone == "" {
		c.App.ReportTimezone = "America/New_York"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/tradepulse.db"
	}
	if c.Store.OpTimeoutSeconds <= 0 {
		c.Store.OpTimeoutSeconds = 5
	}
	if c.Store.RetryAttempts <= 0 {
		c.Store.RetryAttempts = 3
	}
	if c.Store.RetryBackoffMS <= 0 {
		c.Store.RetryBackoffMS = 200
	}
	if c.Ingest.RatePerSecond <= 0 {
		c.Ingest.RatePerSecond = 20
	}
	if c.Ingest.RateBurst <= 0 {
		c.Ingest.RateBurst = 40
	}
	if c.Reconcile.IntervalSeconds <= 0 {
		c.Reconcile.IntervalSeconds = 120
	}
	if c.Reconcile.StalenessSeconds <= 0 {
		c.Reconcile.StalenessSeconds = 120
	}
	if c.Reconcile.QuoteMaxAgeSecs <= 0 {
		c.Reconcile.QuoteMaxAgeSecs = 600
	}
	if c.Reconcile.Confidence <= 0 || c.Reconcile.Confidence > 1 {
		c.Reconcile.Confidence = 0.5
	}
}

func validate(c *Config) error {
	if _, err := time.LoadLocation(c.App.ReportTimezone); err != nil {
		return fmt.Errorf("app.report_timezone %q is not a valid timezone: %w", c.App.ReportTimezone, err)
	}
	if c.Reconcile.IntervalSeconds < 5 {
		return fmt.Errorf("reconcile.interval_seconds must be at least 5, got %d", c.Reconcile.IntervalSeconds)
	}
	if c.Reconcile.StalenessSeconds < 5 {
		return fmt.Errorf("reconcile.staleness_seconds must be at least 5, got %d", c.Reconcile.StalenessSeconds)
	}
	return nil
}

// OpTimeout is the per-call store timeout.
func (c StoreConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSeconds) * time.Second
}

// RetryBackoff is the pause between transient-error retries.
func (c StoreConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

func (c ReconcileConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c ReconcileConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessSeconds) * time.Second
}

func (c ReconcileConfig) QuoteMaxAge() time.Duration {
	return time.Duration(c.QuoteMaxAgeSecs) * time.Second
}
