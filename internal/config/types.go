package config

// Config is the tradepulse configuration root.
type Config struct {
	App       AppConfig       `toml:"app"`
	Store     StoreConfig     `toml:"store"`
	Ingest    IngestConfig    `toml:"ingest"`
	Reconcile ReconcileConfig `toml:"reconcile"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	// ReportTimezone is the venue calendar used for signal-date
	// fallbacks and display times.
	ReportTimezone string `toml:"report_timezone"`
}

type StoreConfig struct {
	Path             string `toml:"path"`
	OpTimeoutSeconds int    `toml:"op_timeout_seconds"`
	RetryAttempts    int    `toml:"retry_attempts"`
	RetryBackoffMS   int    `toml:"retry_backoff_ms"`
}

type IngestConfig struct {
	// Token-bucket limit applied to the webhook endpoint.
	RatePerSecond float64 `toml:"rate_per_second"`
	RateBurst     int     `toml:"rate_burst"`
}

type ReconcileConfig struct {
	Enabled          bool    `toml:"enabled"`
	IntervalSeconds  int     `toml:"interval_seconds"`
	StalenessSeconds int     `toml:"staleness_seconds"`
	QuoteMaxAgeSecs  int     `toml:"quote_max_age_seconds"`
	Confidence       float64 `toml:"confidence"`
	RunImmediately   bool    `toml:"run_immediately"`
}
