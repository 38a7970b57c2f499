package poller

import (
	"errors"
	"time"

	"github.com/rickgao/motionfeed/internal/model"
)

// Config holds poller configuration.
//
// MaxEmptyResponses and MaxErrors have no defaults: the poller stops once
// the matching consecutive counter exceeds them, so 0 means "stop on the
// first one".
type Config struct {
	Interval          time.Duration  // Poll interval
	Timeout           time.Duration  // Per-fetch timeout, 0 for none
	MaxEmptyResponses int            // Consecutive empty responses tolerated
	MaxErrors         int            // Consecutive transport errors tolerated
	Initial           []model.Series // Series already rendered; first is primary
}

// DefaultConfig returns the interval and timeout defaults. Callers must set
// the thresholds.
func DefaultConfig() Config {
	return Config{
		Interval: time.Second,
		Timeout:  5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("poller: interval must be > 0")
	}
	if c.Timeout < 0 {
		return errors.New("poller: timeout must be >= 0")
	}
	if c.MaxEmptyResponses < 0 {
		return errors.New("poller: max empty responses must be >= 0")
	}
	if c.MaxErrors < 0 {
		return errors.New("poller: max errors must be >= 0")
	}
	return nil
}
