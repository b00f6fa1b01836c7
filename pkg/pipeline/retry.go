package pipeline

import (
	"context"

	"github.com/cenkalti/backoff/v5"
)

// write performs a single store write, throttled by the write limiter and
// retried with exponential backoff while the error is classified retryable.
func (p *Pipeline) write(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.RetryDelay
	b.MaxInterval = 30 * p.config.RetryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := op(ctx)
		if err != nil && !p.config.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.config.MaxAttempts)),
	)
	return err
}
