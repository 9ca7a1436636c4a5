package tools

import (
	"context"
	"encoding/json"

	"github.com/mwiater/eda/internal/registry"
)

// RegistryQueryRequest is the typed input of registry_query.
type RegistryQueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// RegistryQuery runs a question against every registered directory.
type RegistryQuery struct {
	aggregator *registry.Aggregator
	defaultK   int
}

// NewRegistryQuery returns the registry_query tool.
func NewRegistryQuery(aggregator *registry.Aggregator, defaultK int) *RegistryQuery {
	return &RegistryQuery{aggregator: aggregator, defaultK: defaultK}
}

// Definition describes registry_query.
func (t *RegistryQuery) Definition() Definition {
	return Definition{
		Name:        RegistryQueryName,
		Description: "Search every registered data directory and return the relevant snippets of each, labeled by directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":      "string",
					"minLength": 1,
				},
				"top_k": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
			},
			"required": []string{"question"},
		},
	}
}

// Call aggregates the query across the registry.
func (t *RegistryQuery) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req RegistryQueryRequest
	if err := decodeArguments(t.Definition(), args, &req); err != nil {
		return "", err
	}
	if req.TopK == 0 {
		req.TopK = t.defaultK
	}
	return t.aggregator.Query(ctx, req.Question, req.TopK)
}
