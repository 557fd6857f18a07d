// Package backoff is the one retry combinator used for every external call:
// vision and text completions as well as document fetches.
package backoff

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy parameterizes a retried operation.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// BaseDelay is doubled on every retry.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// MaxJitter is the upper bound of the random delay added to every wait.
	MaxJitter time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool

	Logger *slog.Logger
}

// DefaultPolicy waits 2s, 4s, 8s, 16s (plus up to 1s jitter) between five
// attempts, retrying only errors accepted by retryable.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		Attempts:  5,
		BaseDelay: 2 * time.Second,
		MaxDelay:  time.Minute,
		MaxJitter: time.Second,
		Retryable: retryable,
	}
}

// maxShift keeps BaseDelay << n from overflowing.
const maxShift = 30

// RetryAfterer is implemented by errors that carry a server-provided wait hint.
type RetryAfterer interface {
	RetryAfterHint() time.Duration
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts the
// policy's attempts, or ctx is done. The last error is returned unwrapped so
// callers can inspect it with errors.As.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoWithData(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v, err := retry.DoWithData(
		func() (T, error) {
			return op(ctx)
		},
		p.options(ctx, logger)...,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		return zero, err
	}
	return v, nil
}

func (p Policy) options(ctx context.Context, logger *slog.Logger) []retry.Option {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.DelayType(p.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && retryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("retrying after error",
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err,
			)
		}),
	}
	return opts
}

// delay is exponential backoff plus jitter, stretched to a server hint when
// the error carries one.
func (p Policy) delay(n uint, err error, _ *retry.Config) time.Duration {
	if n > maxShift {
		n = maxShift
	}
	d := p.BaseDelay << n
	if p.MaxJitter > 0 {
		d += rand.N(p.MaxJitter)
	}
	var ra RetryAfterer
	if errors.As(err, &ra) {
		if hint := ra.RetryAfterHint(); hint > d {
			d = hint
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
