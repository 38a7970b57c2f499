package config

import "time"

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Source    SourceConfig    `yaml:"source"`
	Poller    PollerConfig    `yaml:"poller"`
	Feed      FeedConfig      `yaml:"feed"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Generator GeneratorConfig `yaml:"generator"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SourceConfig describes the data endpoint being polled.
type SourceConfig struct {
	DataURL    string        `yaml:"data_url"`
	APIKey     string        `yaml:"api_key"` // Sent as a bearer token when set
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// PollerConfig holds poll loop settings.
type PollerConfig struct {
	Interval          time.Duration `yaml:"interval"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxEmptyResponses *int          `yaml:"max_empty_responses"` // Required
	MaxErrors         *int          `yaml:"max_errors"`          // Required
	PrimarySeries     string        `yaml:"primary_series"`
	PrimaryColor      string        `yaml:"primary_color"`
}

// FeedConfig holds chart feed settings.
type FeedConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig controls optional persistence of merged points.
type StoreConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	FeedPath    string `yaml:"feed_path"`
	SeriesPath  string `yaml:"series_path"`
	MetricsPath string `yaml:"metrics_path"`
}

// GeneratorConfig drives the synthetic data source served by "serve".
type GeneratorConfig struct {
	DataPath    string        `yaml:"data_path"`
	TR          time.Duration `yaml:"tr"`
	Volumes     int           `yaml:"volumes"`
	SkipVolumes *int          `yaml:"skip_volumes"`
	Drift       float64       `yaml:"drift"`
	Seed        uint64        `yaml:"seed"`
}
