package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedCompleter blocks each completion until the limiter admits it.
type RateLimitedCompleter struct {
	wrapped Completer
	limiter *rate.Limiter
}

// RateLimited wraps c so that at most perMinute completions start per minute.
// A non-positive perMinute returns c unchanged.
func RateLimited(c Completer, perMinute int) Completer {
	if perMinute <= 0 {
		return c
	}
	return &RateLimitedCompleter{
		wrapped: c,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Complete waits for a token, then delegates.
func (r *RateLimitedCompleter) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.wrapped.Complete(ctx, messages)
}

// Close passes the call through to the wrapped provider.
func (r *RateLimitedCompleter) Close() error {
	return r.wrapped.Close()
}

// Wrapped returns the underlying provider.
func (r *RateLimitedCompleter) Wrapped() Completer {
	return r.wrapped
}
