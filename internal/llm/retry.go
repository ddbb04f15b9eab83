package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryable mirrors the engine's default retryable set: timeouts, connection
// resets, and other transient network errors. A provider's non-200 response
// (bad request, invalid key) surfaces as a plain wrapped error and is not
// retried.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// WithRetry calls fn up to 2 more times (3 attempts in all) on a transient
// error, with exponential backoff starting at 1s and capped at 30s.
func WithRetry(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	var resp *Response

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock

	bctx := backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)

	err := backoff.Retry(func() error {
		var callErr error
		resp, callErr = fn()
		if callErr == nil {
			return nil
		}
		if !retryable(callErr) {
			return backoff.Permanent(callErr)
		}
		return callErr
	}, bctx)

	if err != nil {
		return nil, err
	}
	return resp, nil
}
