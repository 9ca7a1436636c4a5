// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"

	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/logging"
	"github.com/mwiater/eda/internal/metrics"
	"github.com/mwiater/eda/internal/providers"
	"github.com/mwiater/eda/internal/providers/anthropic"
	"github.com/mwiater/eda/internal/providers/llamacpp"
	"github.com/mwiater/eda/internal/providers/ollama"
)

// NewCompleter selects and configures the completion provider named by the
// configuration's completion target. The provider is wrapped with rate limiting when
// requestsPerMinute is set and with metrics collection when a recorder is supplied.
func NewCompleter(cfg *appconfig.Config, recorder *metrics.Recorder) (providers.Completer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	host, model, err := cfg.CompletionTarget()
	if err != nil {
		return nil, err
	}

	var provider providers.Completer
	switch hostType := appconfig.NormalizeHostType(host.Type); hostType {
	case appconfig.HostTypeOllama:
		provider = ollama.New(cfg, host, model)
	case appconfig.HostTypeLlamaCpp:
		provider = llamacpp.New(cfg, host, model)
	case appconfig.HostTypeAnthropic:
		provider = anthropic.New(cfg, host, model)
	default:
		return nil, fmt.Errorf("unsupported host type %q for host %q", host.Type, host.Name)
	}
	logging.LogEvent("Completion provider ready: host=%s model=%s", host.Name, model)

	provider = providers.RateLimited(provider, cfg.RequestsPerMinute)
	if recorder != nil {
		provider = metrics.NewProvider(provider, recorder)
	}
	return provider, nil
}

// Unwrap strips decorators until the concrete provider is reached.
func Unwrap(provider providers.Completer) providers.Completer {
	for {
		wrapper, ok := provider.(interface{ Wrapped() providers.Completer })
		if !ok {
			return provider
		}
		next := wrapper.Wrapped()
		if next == nil {
			return provider
		}
		provider = next
	}
}
