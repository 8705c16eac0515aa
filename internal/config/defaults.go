package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultSourceURL      = "https://api.coingecko.com/api/v3"
	DefaultVsCurrency     = "usd"
	DefaultOrder          = "market_cap_desc"
	DefaultPerPage        = 20
	DefaultPage           = 1
	DefaultSourceTimeout  = 30 * time.Second
	DefaultArchiveDir     = "raw_data"
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "require"
	DefaultMaxConns       = 10
	DefaultMinConns       = 1
	DefaultBatchSize      = 100
	DefaultInterval       = 5 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultCacheTTL       = 10 * time.Minute
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
	DefaultLogLevel       = "info"
)

func (c *Config) applyDefaults() {
	// Source defaults
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = DefaultSourceURL
	}
	if c.Source.VsCurrency == "" {
		c.Source.VsCurrency = DefaultVsCurrency
	}
	if c.Source.Order == "" {
		c.Source.Order = DefaultOrder
	}
	if c.Source.PerPage == 0 {
		c.Source.PerPage = DefaultPerPage
	}
	if c.Source.Page == 0 {
		c.Source.Page = DefaultPage
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultSourceTimeout
	}

	if c.Archive.Dir == "" {
		c.Archive.Dir = DefaultArchiveDir
	}

	applyDBDefaults(&c.Database)

	if c.Loader.BatchSize == 0 {
		c.Loader.BatchSize = DefaultBatchSize
	}

	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = DefaultInterval
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = DefaultInitialBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = DefaultMaxBackoff
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
