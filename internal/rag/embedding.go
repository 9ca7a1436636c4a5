package rag

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
)

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// HTTPEmbedder calls an Ollama (/api/embeddings) or llama.cpp (/v1/embeddings) host.
type HTTPEmbedder struct {
	client  *http.Client
	host    appconfig.Host
	model   string
	timeout time.Duration
}

// NewHTTPEmbedder builds an embedder for host and model.
func NewHTTPEmbedder(cfg *appconfig.Config, host appconfig.Host, model string) *HTTPEmbedder {
	return &HTTPEmbedder{
		client:  &http.Client{Timeout: cfg.RequestTimeout()},
		host:    host,
		model:   model,
		timeout: cfg.RequestTimeout(),
	}
}

// NewEmbedderFromConfig resolves ragEmbeddingHost/ragEmbeddingModel into an embedder.
func NewEmbedderFromConfig(cfg *appconfig.Config) (*HTTPEmbedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	host, model, err := cfg.EmbeddingTarget()
	if err != nil {
		return nil, err
	}
	switch appconfig.NormalizeHostType(host.Type) {
	case appconfig.HostTypeOllama, appconfig.HostTypeLlamaCpp:
	default:
		return nil, fmt.Errorf("host %q of type %q cannot serve embeddings", host.Name, host.Type)
	}
	return NewHTTPEmbedder(cfg, host, model), nil
}

// Model returns the embedding model name recorded in index manifests.
func (e *HTTPEmbedder) Model() string {
	return e.model
}

// Embed requests an embedding vector for text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if appconfig.NormalizeHostType(e.host.Type) == appconfig.HostTypeLlamaCpp {
		return embedOpenAI(ctx, e.client, e.host, e.model, text, e.timeout)
	}
	return EmbedText(ctx, e.client, e.host, e.model, text, e.timeout)
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedText requests an embedding vector from an Ollama-compatible host.
func EmbedText(ctx context.Context, client *http.Client, host appconfig.Host, model, text string, timeout time.Duration) ([]float64, error) {
	raw, err := postEmbedding(ctx, client, host.URL+"/api/embeddings", map[string]any{
		"model":  model,
		"prompt": text,
	}, model, timeout)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response returned empty vector")
	}
	return parsed.Embedding, nil
}

func embedOpenAI(ctx context.Context, client *http.Client, host appconfig.Host, model, text string, timeout time.Duration) ([]float64, error) {
	raw, err := postEmbedding(ctx, client, host.URL+"/v1/embeddings", map[string]any{
		"model": model,
		"input": text,
	}, model, timeout)
	if err != nil {
		return nil, err
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response returned empty vector")
	}
	return parsed.Data[0].Embedding, nil
}

func postEmbedding(ctx context.Context, client *http.Client, url string, payload map[string]any, model string, timeout time.Duration) ([]byte, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("rag embedding model is empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
