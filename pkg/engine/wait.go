package engine

import (
	"context"
	"fmt"
	"time"
)

// Wait defaults, matching the provider's documented droplet timings.
const (
	DefaultWaitTimeout   = 120 * time.Second
	DefaultSleepInterval = 10 * time.Second
)

// WaitConfig bounds a poll loop for an asynchronous provider action.
type WaitConfig struct {
	// Timeout is the total wait budget. On expiry the operation fails with
	// a timeout error; the remote operation may still complete server-side.
	Timeout time.Duration `json:"timeout"`

	// SleepInterval is how long to sleep between status checks. Must be
	// positive and no greater than Timeout.
	SleepInterval time.Duration `json:"sleep_interval"`
}

// DefaultWaitConfig returns the standard 120s/10s wait configuration.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Timeout:       DefaultWaitTimeout,
		SleepInterval: DefaultSleepInterval,
	}
}

// Validate rejects configurations that could never make progress. Validation
// happens before any mutating call is issued.
func (c WaitConfig) Validate() error {
	if c.SleepInterval <= 0 {
		return NewValidationError(fmt.Sprintf("sleep interval %s should be greater than zero", c.SleepInterval))
	}
	if c.SleepInterval > c.Timeout {
		return NewValidationError(fmt.Sprintf("sleep interval %s should be less than timeout %s", c.SleepInterval, c.Timeout))
	}
	return nil
}

// PollFunc checks whether the awaited condition holds. Returning done stops
// the loop; returning an error aborts it immediately.
type PollFunc func(ctx context.Context) (done bool, err error)

// Poll repeatedly invokes fn at the configured interval until it reports
// done, returns an error, the context is cancelled, or the wait budget is
// exhausted. fn is always invoked at least once.
func Poll(ctx context.Context, cfg WaitConfig, what string, fn PollFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	deadline := time.Now().Add(cfg.Timeout)
	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return NewTransientError(fmt.Sprintf("wait for %s interrupted", what), ctx.Err())
		case <-time.After(cfg.SleepInterval):
		}
	}

	return NewTimeoutError(fmt.Sprintf("wait for %s timeout after %s", what, cfg.Timeout))
}
