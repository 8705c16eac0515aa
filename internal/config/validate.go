package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return errors.New("source.base_url is required")
	}
	if u, err := url.Parse(c.Source.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url %q is not an absolute URL", c.Source.BaseURL)
	}
	if c.Source.PerPage < 1 || c.Source.PerPage > 250 {
		return fmt.Errorf("source.per_page must be between 1 and 250, got %d", c.Source.PerPage)
	}
	if c.Source.Page < 1 {
		return errors.New("source.page must be >= 1")
	}
	if c.Source.Timeout <= 0 {
		return errors.New("source.timeout must be > 0")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Loader.BatchSize < 1 {
		return errors.New("loader.batch_size must be >= 1")
	}

	if c.Schedule.Interval <= 0 {
		return errors.New("schedule.interval must be > 0")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("retry.max_backoff (%s) cannot be less than initial_backoff (%s)", c.Retry.MaxBackoff, c.Retry.InitialBackoff)
	}

	if c.Cache.Addr != "" && c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.AcquireTimeout < 0 {
		return fmt.Errorf("%s.acquire_timeout must be >= 0", prefix)
	}
	return nil
}
