// Package retry re-runs ledger operations that failed on storage
// contention. Only ledger.ErrStorageFailure is retried; every other
// outcome, success or rejection, is returned after the first attempt.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/carbonledger/internal/ledger"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when no configuration is available.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. Retries are logged at warn level.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	attempt := 0
	return backoff.Retry(ctx,
		func() (T, error) {
			attempt++
			v, err := op(ctx)
			if err != nil && !ledger.IsRetryable(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(max(p.MaxAttempts, 1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Warn("retrying after storage failure",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)
}
