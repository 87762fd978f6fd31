package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Func fetches a value. It is the unit that gets retried and deduplicated.
type Func[V any] func(ctx context.Context) (V, error)

// linearBackOff waits base*n before the n-th retry.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

var _ backoff.BackOff = (*linearBackOff)(nil)

// Retry calls fn until it succeeds, at most retries+1 times, sleeping
// delay*n before the n-th retry. Errors carrying a 401/403 status stop the
// loop immediately. The last error is returned unwrapped. A negative
// retries is treated as zero. Only the attempt count bounds the loop, never
// the total elapsed time.
func Retry[V any](ctx context.Context, fn Func[V], retries int, delay time.Duration, m Metrics) (V, error) {
	if retries < 0 {
		retries = 0
	}
	if m == nil {
		m = NoopMetrics{}
	}

	op := func() (V, error) {
		m.Attempt()
		v, err := fn(ctx)
		if err != nil && IsAuthError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{base: delay}),
		backoff.WithMaxTries(uint(retries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(_ error, next time.Duration) { m.Retry(next) }),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		m.Failure(IsAuthError(err))
		return v, err
	}
	m.Success()
	return v, nil
}
