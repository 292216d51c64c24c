// Package fault decides what a chunk step does with a failed item: retry it, skip it or fail the step.
package fault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Decision is the outcome of Policy.Decide.
type Decision int

const (
	// Fatal rolls back the chunk and fails the step.
	Fatal Decision = iota
	// Retry re-attempts the same item within the same chunk.
	Retry
	// Skip drops the item and reports it to skip listeners.
	Skip
)

// String returns the decision name used in logs.
func (d Decision) String() string {
	switch d {
	case Retry:
		return "RETRY"
	case Skip:
		return "SKIP"
	default:
		return "FATAL"
	}
}

// BackoffConfig configures the wait between retries of the same item.
// A zero InitialInterval disables waiting.
type BackoffConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	Multiplier      float64       `yaml:"multiplier" mapstructure:"multiplier"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
}

// Policy is the fault-tolerance configuration of one chunk step.
//
// SkippableErrors and RetryableErrors hold error-type names registered with exception.RegisterErrorType.
// A *exception.BatchError flagged skippable or retryable is treated as such regardless of the lists.
type Policy struct {
	SkipLimit       int            `yaml:"skip_limit" mapstructure:"skip_limit"`
	RetryLimit      int            `yaml:"retry_limit" mapstructure:"retry_limit"`
	SkippableErrors []string       `yaml:"skippable_exceptions" mapstructure:"skippable_exceptions"`
	RetryableErrors []string       `yaml:"retryable_exceptions" mapstructure:"retryable_exceptions"`
	Backoff         *BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
}

// NoFaultTolerance fails the step on the first error.
var NoFaultTolerance = Policy{}

// State tracks what one StepExecution has consumed of its policy.
// SkipsUsed is checked against SkipLimit. RetriesUsed is a step-wide total that is only reported
// (on the "chunk.commit" trace event); RetryLimit applies per item through the retries argument of Decide.
type State struct {
	SkipsUsed   int
	RetriesUsed int
}

// Validate checks limits and that every configured error-type name is registered.
func (p Policy) Validate() error {
	if p.SkipLimit < 0 || p.RetryLimit < 0 {
		return fmt.Errorf("fault policy limits must not be negative (skip_limit=%d, retry_limit=%d)", p.SkipLimit, p.RetryLimit)
	}
	for _, names := range [][]string{p.SkippableErrors, p.RetryableErrors} {
		for _, name := range names {
			if !exception.IsErrorTypeRegistered(name) {
				return fmt.Errorf("fault policy references unregistered error type %q", name)
			}
		}
	}
	return nil
}

// IsFatal reports errors that no policy may tolerate: resource failures and cancellation.
func IsFatal(err error) bool {
	return errors.Is(err, exception.ErrResource) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable reports whether err may be retried under p. A read failure that already consumed
// its item is never retryable, whatever RetryableErrors names.
func (p Policy) IsRetryable(err error) bool {
	if err == nil || IsFatal(err) || errors.Is(err, exception.ErrItemConsumed) {
		return false
	}
	if be, ok := exception.AsBatchError(err); ok && be.IsRetryable() {
		return true
	}
	for _, name := range p.RetryableErrors {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

// IsSkippable reports whether err may be skipped under p.
func (p Policy) IsSkippable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if be, ok := exception.AsBatchError(err); ok && be.IsSkippable() {
		return true
	}
	for _, name := range p.SkippableErrors {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

// Decide classifies an item failure. retries is the number of times this item has already been
// retried. Retry is preferred over Skip. state is updated for Retry and Skip.
func (p Policy) Decide(err error, state *State, retries int) Decision {
	if p.IsRetryable(err) && retries < p.RetryLimit {
		state.RetriesUsed++
		return Retry
	}
	if p.IsSkippable(err) && state.SkipsUsed < p.SkipLimit {
		state.SkipsUsed++
		return Skip
	}
	return Fatal
}

// CanRewrite reports whether a chunk whose write failed may be written again. writeAttempts counts
// the failed writes so far, so a limit of 3 allows four writes in total.
func (p Policy) CanRewrite(err error, writeAttempts int) bool {
	return p.IsRetryable(err) && writeAttempts <= p.RetryLimit
}

// NewBackOff returns the wait schedule for one item's retries.
func (p Policy) NewBackOff() backoff.BackOff {
	if p.Backoff == nil || p.Backoff.InitialInterval <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff.InitialInterval
	b.RandomizationFactor = 0
	if p.Backoff.Multiplier > 0 {
		b.Multiplier = p.Backoff.Multiplier
	}
	if p.Backoff.MaxInterval > 0 {
		b.MaxInterval = p.Backoff.MaxInterval
	}
	b.Reset()
	return b
}

// Wait sleeps for the next interval of b. It returns early with ctx's error if ctx is done.
func Wait(ctx context.Context, b backoff.BackOff) error {
	d := b.NextBackOff()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
