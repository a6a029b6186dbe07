package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Config configures a Limiter.
type Config struct {
	// Points is the budget per identity per window.
	Points int64

	// Duration is the counter window.
	Duration time.Duration

	// BlockDuration is how long an identity stays blocked after exhausting
	// its budget. Zero means the identity is refused only until the window
	// resets.
	BlockDuration time.Duration

	// KeyPrefix namespaces counter keys in shared stores. Default: "rl:"
	KeyPrefix string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Points <= 0 {
		return errors.New("points must be positive")
	}
	if c.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	if c.BlockDuration < 0 {
		return errors.New("block duration cannot be negative")
	}
	return nil
}

// CheckResult contains the result of a consumption.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Limit is the configured points budget.
	Limit int64

	// Remaining is how many points remain in the window.
	Remaining int64

	// Reset is when the current window closes.
	Reset time.Time

	// RetryAfter is how long a refused identity must wait.
	RetryAfter time.Duration
}

// RateLimitedError is returned when an identity has no points left or is
// blocked. It is an expected outcome, not a fault.
type RateLimitedError struct {
	Identity   string
	RetryAfter time.Duration
	Blocked    bool // true when refused by an active block
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("rate limited: %s blocked for %s", e.Identity, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("rate limited: %s retry after %s", e.Identity, e.RetryAfter.Round(time.Millisecond))
}
