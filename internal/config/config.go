package config

import "time"

// Config is the root configuration for the ETL process.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Database DBConfig       `yaml:"database"`
	Loader   LoaderConfig   `yaml:"loader"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SourceConfig holds the upstream market-data API settings.
type SourceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"` // Sent as x-cg-demo-api-key when set
	VsCurrency string        `yaml:"vs_currency"`
	Order      string        `yaml:"order"`
	PerPage    int           `yaml:"per_page"`
	Page       int           `yaml:"page"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ArchiveConfig controls raw payload archival.
type ArchiveConfig struct {
	Enabled *bool  `yaml:"enabled"` // nil means enabled
	Dir     string `yaml:"dir"`
}

// IsEnabled reports whether raw payloads should be archived.
func (a ArchiveConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// DBConfig holds the PostgreSQL connection and pool settings.
type DBConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"` // 0 blocks until a connection frees up
}

// LoaderConfig holds batch loader settings.
type LoaderConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// ScheduleConfig holds recurring-mode settings.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// RetryConfig holds extraction retry settings.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// CacheConfig holds the optional Redis latest-snapshot cache.
type CacheConfig struct {
	Addr     string        `yaml:"addr"` // Empty disables the cache
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig holds Prometheus and health server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds log level and optional log directory.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"` // Empty logs to stdout only
}
