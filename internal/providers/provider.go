// internal/providers/provider.go

// Package providers defines the completion boundary used by the workflow engine and
// prompt store. A provider turns an ordered list of role-tagged messages into generated
// text; transport details (Ollama, llama.cpp, Anthropic) stay behind the Completer interface.
package providers

import (
	"context"
	"errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("completion response contained no text")

// ChatMessage represents a single message in a chat conversation.
// It contains the role of the message sender (e.g., "system", "user") and the message content.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is the interface that all model providers implement.
type Completer interface {
	// Complete sends the messages and returns the generated text. There is no retry and no
	// streaming; transport failures are returned as-is.
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	// Close cleans up any resources used by the provider.
	Close() error
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []ChatMessage) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	return f(ctx, messages)
}

// Close is a no-op.
func (f CompleterFunc) Close() error { return nil }
