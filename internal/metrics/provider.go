// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/eda/internal/providers"
)

// Provider is a decorator that wraps a Completer to record metrics.
type Provider struct {
	wrapped  providers.Completer
	recorder *Recorder
}

// NewProvider creates a new metrics-enabled provider that wraps an existing Completer.
func NewProvider(wrapped providers.Completer, recorder *Recorder) *Provider {
	return &Provider{wrapped: wrapped, recorder: recorder}
}

// Complete times the wrapped call and records its outcome.
func (p *Provider) Complete(ctx context.Context, messages []providers.ChatMessage) (string, error) {
	start := time.Now()
	out, err := p.wrapped.Complete(ctx, messages)
	p.recorder.RecordCompletion(time.Since(start), err)
	return out, err
}

// Close passes the call through to the wrapped provider.
func (p *Provider) Close() error {
	return p.wrapped.Close()
}

// Wrapped returns the underlying provider.
func (p *Provider) Wrapped() providers.Completer {
	return p.wrapped
}
