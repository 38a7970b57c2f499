package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel          = "info"
	DefaultSourceTimeout     = 10 * time.Second
	DefaultPollInterval      = 1 * time.Second
	DefaultPollTimeout       = 5 * time.Second
	DefaultPrimarySeries     = "Mean Displacement"
	DefaultPrimaryColor      = "#c05020"
	DefaultFeedQueueSize     = 8
	DefaultFeedPingInterval  = 15 * time.Second
	DefaultFeedWriteTimeout  = 5 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 1024
	DefaultServerAddr        = ":8080"
	DefaultFeedPath          = "/feed"
	DefaultSeriesPath        = "/series"
	DefaultMetricsPath       = "/metrics"
	DefaultDataPath          = "/data.json"
	DefaultTR                = 2 * time.Second
	DefaultVolumes           = 60
	DefaultSkipVolumes       = 4
	DefaultDrift             = 0.05
	DefaultSeed       uint64 = 1
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultSourceTimeout
	}

	// Thresholds are left alone: they are required.
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}
	if c.Poller.PrimarySeries == "" {
		c.Poller.PrimarySeries = DefaultPrimarySeries
		if c.Poller.PrimaryColor == "" {
			c.Poller.PrimaryColor = DefaultPrimaryColor
		}
	}

	if c.Feed.QueueSize == 0 {
		c.Feed.QueueSize = DefaultFeedQueueSize
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultFeedPingInterval
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultFeedWriteTimeout
	}

	applyDBDefaults(&c.Store.Database)
	if c.Store.BatchSize == 0 {
		c.Store.BatchSize = DefaultBatchSize
	}
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = DefaultFlushInterval
	}
	if c.Store.BufferSize == 0 {
		c.Store.BufferSize = DefaultBufferSize
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.FeedPath == "" {
		c.Server.FeedPath = DefaultFeedPath
	}
	if c.Server.SeriesPath == "" {
		c.Server.SeriesPath = DefaultSeriesPath
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}

	if c.Generator.DataPath == "" {
		c.Generator.DataPath = DefaultDataPath
	}
	if c.Generator.TR == 0 {
		c.Generator.TR = DefaultTR
	}
	if c.Generator.Volumes == 0 {
		c.Generator.Volumes = DefaultVolumes
	}
	if c.Generator.SkipVolumes == nil {
		n := DefaultSkipVolumes
		c.Generator.SkipVolumes = &n
	}
	if c.Generator.Drift == 0 {
		c.Generator.Drift = DefaultDrift
	}
	if c.Generator.Seed == 0 {
		c.Generator.Seed = DefaultSeed
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

// Default returns a configuration with every default applied and no
// thresholds set.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}
