// Package retry retries operations that fail with a rate-limit signal,
// backing off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/logger"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// ErrExhausted wraps the last rate-limit error once every attempt is used.
// An executor never retries an error carrying it, so nested executors do not
// multiply attempts.
var ErrExhausted = errors.New("retries exhausted")

// Executor invokes an operation up to MaxAttempts times. Only errors accepted
// by the retryable predicate (rate-limit signals by default) are retried; the
// delay before retry i (0-based) is BaseDelay * 2^i.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	retryable   func(error) bool
	onRetry     func(err error, delay time.Duration)
	timer       backoff.Timer
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxAttempts sets the total number of invocations, including the first.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) { e.maxAttempts = n }
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) { e.baseDelay = d }
}

// WithRetryable replaces the rate-limit predicate.
func WithRetryable(fn func(error) bool) Option {
	return func(e *Executor) { e.retryable = fn }
}

// WithOnRetry registers a hook called before each backoff sleep.
func WithOnRetry(fn func(err error, delay time.Duration)) Option {
	return func(e *Executor) { e.onRetry = fn }
}

// WithTimer replaces the timer used for backoff sleeps.
func WithTimer(t backoff.Timer) Option {
	return func(e *Executor) { e.timer = t }
}

// New creates an Executor with 3 attempts and a 1s base delay unless overridden.
func New(opts ...Option) *Executor {
	e := &Executor{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		retryable:   chain.IsRateLimited,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = 1
	}
	if e.baseDelay <= 0 {
		e.baseDelay = time.Nanosecond
	}
	return e
}

// Do runs op under e's retry policy and returns its result. Non-retryable
// errors are returned immediately; exhausting the attempts returns the last
// error wrapped with ErrExhausted. Cancelling ctx aborts a pending backoff
// sleep with ctx.Err().
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var result T
	attempt := 0
	throttled := false

	operation := func() error {
		attempt++
		res, err := op(ctx)
		if err == nil {
			result = res
			return nil
		}
		if errors.Is(err, ErrExhausted) || !e.retryable(err) {
			throttled = false
			return backoff.Permanent(err)
		}
		throttled = true
		return err
	}

	notify := func(err error, delay time.Duration) {
		logger.Debug("rate limited, backing off", "attempt", attempt, "delay", delay, "err", err)
		if e.onRetry != nil {
			e.onRetry(err, delay)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, e.policy(ctx), notify, e.timer)
	if err != nil && throttled && ctx.Err() == nil {
		return result, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}
	return result, err
}

// Run is Do for operations without a result.
func (e *Executor) Run(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (e *Executor) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.baseDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.maxAttempts-1)), ctx)
}
