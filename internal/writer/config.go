package writer

import "time"

// WriterConfig holds batching configuration.
type WriterConfig struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before flushing
	QueueSize     int           // Initial queue capacity
	FlushTimeout  time.Duration // Deadline for the final flush on Stop
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		QueueSize:     1024,
		FlushTimeout:  5 * time.Second,
	}
}

// WriterMetrics tracks writer activity.
type WriterMetrics struct {
	Queued    int64
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
