// internal/providers/ollama/provider_test.go
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/providers"
)

// TestProviderCompleteSendsNonStreamingChat verifies the request payload and that the
// assistant message content is returned.
func TestProviderCompleteSendsNonStreamingChat(t *testing.T) {
	t.Parallel()

	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		capturedBody = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"test-model","message":{"role":"assistant","content":" {\"y\":2} "},"done":true}`))
	}))
	defer server.Close()

	cfg := &appconfig.Config{TimeoutSeconds: 5}
	provider := New(cfg, appconfig.Host{Name: "test", URL: server.URL}, "test-model")

	out, err := provider.Complete(context.Background(), []providers.ChatMessage{
		{Role: providers.RoleSystem, Content: "be terse"},
		{Role: providers.RoleUser, Content: `{"x":1}`},
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if out != `{"y":2}` {
		t.Fatalf("unexpected output: %q", out)
	}

	var payload map[string]any
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if stream, ok := payload["stream"].(bool); !ok || stream {
		t.Fatalf("expected stream=false, got %v", payload["stream"])
	}
	if payload["model"] != "test-model" {
		t.Fatalf("unexpected model: %v", payload["model"])
	}
	msgs, ok := payload["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", payload["messages"])
	}
}

func TestProviderCompleteErrorsOnStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	provider := New(&appconfig.Config{TimeoutSeconds: 5}, appconfig.Host{URL: server.URL}, "missing")
	if _, err := provider.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestProviderCompleteErrorsOnEmptyContent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"   "},"done":true}`))
	}))
	defer server.Close()

	provider := New(&appconfig.Config{TimeoutSeconds: 5}, appconfig.Host{URL: server.URL}, "m")
	_, err := provider.Complete(context.Background(), nil)
	if !errors.Is(err, providers.ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}
