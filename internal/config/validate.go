package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks the settings the poll command needs.
func (c *Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if c.Source.DataURL == "" {
		return errors.New("source.data_url is required")
	}
	u, err := url.Parse(c.Source.DataURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.data_url must be an http(s) URL, got %q", c.Source.DataURL)
	}
	if c.Source.Timeout < 0 {
		return errors.New("source.timeout must be >= 0")
	}
	if c.Source.MaxRetries < 0 {
		return errors.New("source.max_retries must be >= 0")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if c.Poller.Timeout < 0 {
		return errors.New("poller.timeout must be >= 0")
	}
	if c.Poller.MaxEmptyResponses == nil {
		return errors.New("poller.max_empty_responses is required")
	}
	if *c.Poller.MaxEmptyResponses < 0 {
		return errors.New("poller.max_empty_responses must be >= 0")
	}
	if c.Poller.MaxErrors == nil {
		return errors.New("poller.max_errors is required")
	}
	if *c.Poller.MaxErrors < 0 {
		return errors.New("poller.max_errors must be >= 0")
	}

	if c.Feed.QueueSize < 1 {
		return errors.New("feed.queue_size must be >= 1")
	}

	if c.Store.Enabled {
		if err := c.Store.Database.validate("store.database"); err != nil {
			return err
		}
		if c.Store.BatchSize < 1 {
			return errors.New("store.batch_size must be >= 1")
		}
		if c.Store.BufferSize < 1 {
			return errors.New("store.buffer_size must be >= 1")
		}
	}

	return c.Server.validate()
}

// ValidateServe checks the settings the serve command needs.
func (c *Config) ValidateServe() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Generator.TR <= 0 {
		return errors.New("generator.tr must be > 0")
	}
	if c.Generator.Volumes < 0 {
		return errors.New("generator.volumes must be >= 0")
	}
	if c.Generator.SkipVolumes != nil && *c.Generator.SkipVolumes < 0 {
		return errors.New("generator.skip_volumes must be >= 0")
	}
	if !strings.HasPrefix(c.Generator.DataPath, "/") {
		return fmt.Errorf("generator.data_path must start with /, got %q", c.Generator.DataPath)
	}
	return c.Server.validate()
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: want debug, info, warn or error", l.Level)
	}
	return level, nil
}

func (s ServerConfig) validate() error {
	if s.Addr == "" {
		return errors.New("server.addr is required")
	}
	for name, p := range map[string]string{
		"server.feed_path":    s.FeedPath,
		"server.series_path":  s.SeriesPath,
		"server.metrics_path": s.MetricsPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with /, got %q", name, p)
		}
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
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
