// internal/providers/llamacpp/provider.go
// Package llamacpp provides a Completer backed by llama.cpp's OpenAI-compatible HTTP API.
package llamacpp

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

// Provider implements the providers.Completer interface using llama.cpp HTTP APIs.
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

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete issues a non-streaming chat completion request.
func (p *Provider) Complete(ctx context.Context, messages []providers.ChatMessage) (string, error) {
	payload := map[string]any{
		"model":    p.model,
		"messages": toOpenAIMessages(sanitizeMessages(messages)),
		"stream":   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	logging.LogRequest("EDA->LLM", hostIdentifier(p.host), p.model, "", body)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := strings.TrimRight(p.host.URL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(p.host.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llama.cpp: chat request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	logging.LogRequest("LLM->EDA", hostIdentifier(p.host), p.model, "", raw)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llama.cpp: /v1/chat/completions returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("llama.cpp: parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llama.cpp: chat response contained no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("llama.cpp: %w", providers.ErrEmptyCompletion)
	}
	return content, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}

func sanitizeMessages(messages []providers.ChatMessage) []providers.ChatMessage {
	if len(messages) == 0 {
		return messages
	}
	sanitized := make([]providers.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		content := strings.TrimSpace(msg.Content)
		if role == "" {
			role = providers.RoleUser
		}
		if role != providers.RoleAssistant && content == "" {
			continue
		}
		sanitized = append(sanitized, providers.ChatMessage{Role: role, Content: content})
	}
	return sanitized
}

func toOpenAIMessages(messages []providers.ChatMessage) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openAIMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func hostIdentifier(host appconfig.Host) string {
	if name := strings.TrimSpace(host.Name); name != "" {
		return name
	}
	return host.URL
}
