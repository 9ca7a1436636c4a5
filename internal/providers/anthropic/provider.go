// Package anthropic provides a Completer backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/logging"
	"github.com/mwiater/eda/internal/providers"
)

// Provider implements providers.Completer using the Anthropic SDK.
type Provider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	host      string
}

// New constructs a Provider for host and model. The API key comes from the host entry
// when set, otherwise the SDK reads ANTHROPIC_API_KEY. SDK retries are disabled; a
// failed call surfaces to the caller.
func New(cfg *appconfig.Config, host appconfig.Host, model string) *Provider {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.RequestTimeout()),
	}
	if key := strings.TrimSpace(host.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if url := strings.TrimSpace(host.URL); url != "" {
		opts = append(opts, option.WithBaseURL(url))
	}
	return &Provider{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(cfg.MaxOutputTokens()),
		host:      host.Name,
	}
}

// Complete sends the conversation and returns the first text block of the reply.
// System-role messages are joined into the system prompt.
func (p *Provider) Complete(ctx context.Context, messages []providers.ChatMessage) (string, error) {
	params := buildParams(p.model, p.maxTokens, messages)
	logging.LogRequest("EDA->LLM", p.host, string(p.model), "", messages)

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		slog.Error("Anthropic API call failed", "model", p.model, "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	slog.Debug("Anthropic API call completed",
		"model", p.model,
		"duration", duration,
		"stopReason", msg.StopReason,
		"inputTokens", msg.Usage.InputTokens,
		"outputTokens", msg.Usage.OutputTokens,
	)

	for _, block := range msg.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			logging.LogRequest("LLM->EDA", p.host, string(p.model), "", block.Text)
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("anthropic: %w", providers.ErrEmptyCompletion)
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}

func buildParams(model anthropic.Model, maxTokens int64, messages []providers.ChatMessage) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: content})
		case providers.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	return anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  turns,
	}
}
