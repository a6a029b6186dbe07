package recorder

import (
	"errors"
	"time"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// BatchSize is the number of buffered events that triggers a flush and
	// the largest batch handed to the sink in one write.
	// Default: 100
	BatchSize int

	// FlushInterval is the period of the timer-driven flush.
	// Default: 5 seconds
	FlushInterval time.Duration

	// MaxPending bounds the buffer while flushes keep failing. Record
	// returns audit.ErrBufferFull once it is reached.
	// Default: 100 * BatchSize
	MaxPending int

	// WriteTimeout bounds a single sink write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// EscalationTimeout bounds a single escalation call.
	// Default: 2 seconds
	EscalationTimeout time.Duration

	// RetentionDays is handed to the sink with every write. 0 keeps events
	// until they are removed by other means.
	RetentionDays int

	// Environment and Version are stamped into event metadata when the
	// caller left them empty.
	Environment string
	Version     string

	// DecryptConcurrency bounds parallel envelope opens during Query.
	// Default: 8
	DecryptConcurrency int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:          100,
		FlushInterval:      5 * time.Second,
		MaxPending:         100 * 100,
		WriteTimeout:       10 * time.Second,
		EscalationTimeout:  2 * time.Second,
		DecryptConcurrency: 8,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 100 * c.BatchSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.EscalationTimeout <= 0 {
		c.EscalationTimeout = d.EscalationTimeout
	}
	if c.DecryptConcurrency <= 0 {
		c.DecryptConcurrency = d.DecryptConcurrency
	}
}

func (c *Config) validate() error {
	if c.MaxPending < c.BatchSize {
		return errors.New("max pending must be at least the batch size")
	}
	if c.RetentionDays < 0 {
		return errors.New("retention days must be >= 0")
	}
	return nil
}
