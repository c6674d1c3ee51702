package resource

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffFunc returns the wait before retry number attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits step, 2*step, 3*step, ... between attempts.
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// funcBackOff adapts a BackoffFunc to backoff.BackOff.
type funcBackOff struct {
	fn      BackoffFunc
	retries int
}

func (b *funcBackOff) NextBackOff() time.Duration {
	b.retries++
	return b.fn(b.retries)
}

func (b *funcBackOff) Reset() { b.retries = 0 }

// withRetry runs op until it succeeds, at most retryLimit+1 times, waiting
// wait(n) before the n-th retry. notify is called before every wait. Errors
// wrapped with backoff.Permanent stop immediately; cancelling ctx stops
// waiting and returns ctx.Err(). The attempt count is returned alongside.
func withRetry[T any](
	ctx context.Context,
	retryLimit int,
	wait BackoffFunc,
	op func(attempt int) (T, error),
	notify func(err error, attempt int, next time.Duration),
) (T, int, error) {
	if retryLimit < 0 {
		retryLimit = 0
	}

	var b backoff.BackOff = &funcBackOff{fn: wait}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(retryLimit)), ctx)

	attempt := 0
	res, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return op(attempt)
	}, b, func(err error, next time.Duration) {
		if notify != nil {
			notify(err, attempt, next)
		}
	})
	return res, attempt, err
}
