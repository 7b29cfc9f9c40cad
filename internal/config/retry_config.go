package config

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds the bounded retry used for persistence after a successful model call.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialDelay is the initial delay before first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
}

// GetRetryConfig returns the persistence retry configuration
func (c Config) GetRetryConfig() RetryConfig {
	if c.IsTest() {
		return RetryConfig{MaxRetries: c.RetryMaxRetries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	}
	return RetryConfig{
		MaxRetries:   c.RetryMaxRetries,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
		Multiplier:   c.RetryMultiplier,
	}
}

// BackOff builds a capped exponential backoff from the configuration.
// MaxRetries counts retries after the first attempt.
func (r RetryConfig) BackOff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.InitialDelay
	expo.MaxInterval = r.MaxDelay
	if r.Multiplier > 0 {
		expo.Multiplier = r.Multiplier
	}
	expo.MaxElapsedTime = 0
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(expo, uint64(retries))
}
