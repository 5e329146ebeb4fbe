package provider

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

type retrying struct {
	next            Generator
	limiter         *rate.Limiter
	attempts        int
	timeout         time.Duration
	initialInterval time.Duration
}

// WithRetry paces calls to one request per interval and retries transient failures
// with exponential backoff, giving each attempt its own timeout.
func WithRetry(g Generator, attempts int, interval, timeout time.Duration) Generator {
	if attempts < 1 {
		attempts = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &retrying{
		next:            g,
		limiter:         rate.NewLimiter(limit, 1),
		attempts:        attempts,
		timeout:         timeout,
		initialInterval: 2 * time.Second,
	}
}

func (r *retrying) Name() string {
	return r.next.Name()
}

func (r *retrying) Generate(ctx context.Context, req Request) ([]Image, error) {
	var images []Image
	operation := func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		out, err := r.next.Generate(callCtx, req)
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		images = out
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.attempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		log.Printf("Warning: %s generation failed, retrying in %s: %v", r.next.Name(), wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return images, nil
}
