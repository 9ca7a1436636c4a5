// internal/providers/ollama/provider.go
// Package ollama provides a Completer backed by Ollama-compatible HTTP endpoints.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/logging"
	"github.com/mwiater/eda/internal/providers"
)

// Provider implements the providers.Completer interface using the Ollama /api/chat endpoint.
type Provider struct {
	client  *http.Client
	timeout time.Duration
	host    appconfig.Host
	model   string
}

// New constructs a Provider bound to one host and model, configured with the
// application's request timeout.
func New(cfg *appconfig.Config, host appconfig.Host, model string) *Provider {
	timeout := cfg.RequestTimeout()
	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		timeout: timeout,
		host:    host,
		model:   model,
	}
}

// chatResponse defines the structure of a non-streaming /api/chat response.
type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	TotalDuration   int64 `json:"total_duration"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
}

// Complete issues a single non-streaming chat request and returns the assistant text.
func (p *Provider) Complete(ctx context.Context, messages []providers.ChatMessage) (string, error) {
	payload := map[string]any{
		"model":    p.model,
		"messages": messages,
		"stream":   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	logging.LogRequest("EDA->LLM", hostIdentifier(p.host), p.model, "", body)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.host.URL, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: chat request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	logging.LogRequest("LLM->EDA", hostIdentifier(p.host), p.model, "", respBody)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: /api/chat returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("ollama: parse chat response: %w", err)
	}
	content := strings.TrimSpace(parsed.Message.Content)
	if content == "" {
		return "", fmt.Errorf("ollama: %w", providers.ErrEmptyCompletion)
	}
	return content, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}

func hostIdentifier(host appconfig.Host) string {
	if name := strings.TrimSpace(host.Name); name != "" {
		return name
	}
	return host.URL
}
