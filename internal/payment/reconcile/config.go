package reconcile

import "time"

// Config controls the payment reconcile worker loop.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	// StaleAfter is how long an in-flight order or refund may sit
	// untouched before the worker re-checks it against the channel.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    50,
		PollInterval: time.Minute,
		StaleAfter:   2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	return c
}
