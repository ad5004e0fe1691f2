package authsdk

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a failed token request is attempted.
type RetryPolicy struct {
	// Attempts is the total number of attempts, including the first.
	Attempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy allows one retry after 100ms. A token request that fails
// while the provider is tearing down a session usually succeeds once the
// re-login it triggered has started.
var DefaultRetryPolicy = RetryPolicy{Attempts: 2, Delay: 100 * time.Millisecond}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	retries := 0
	if p.Attempts > 1 {
		retries = p.Attempts - 1
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(retries))
	return backoff.WithContext(b, ctx)
}

// retry runs op under p. The last failure is returned unchanged, context
// errors are never retried.
func retry[T any](ctx context.Context, p RetryPolicy, notify backoff.Notify, op func(context.Context) (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && isContextErr(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.backOff(ctx), notify)
}
