package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mwiater/eda/internal/rag"
	"github.com/mwiater/eda/internal/registry"
)

// RagQueryRequest is the typed input of rag_query.
type RagQueryRequest struct {
	DataDirectory string `json:"data_directory"`
	Question      string `json:"question"`
	TopK          int    `json:"top_k"`
}

// RagQuery answers a question from one directory's retrieval index.
type RagQuery struct {
	querier    registry.Querier
	defaultDir string
	defaultK   int
}

// NewRagQuery returns the rag_query tool. When defaultDir is set, data_directory may be
// omitted by callers.
func NewRagQuery(querier registry.Querier, defaultDir string, defaultK int) *RagQuery {
	return &RagQuery{querier: querier, defaultDir: defaultDir, defaultK: defaultK}
}

// Definition describes rag_query.
func (t *RagQuery) Definition() Definition {
	required := []string{"question"}
	if t.defaultDir == "" {
		required = append(required, "data_directory")
	}
	return Definition{
		Name:        RagQueryName,
		Description: "Search a data directory for the snippets most relevant to a question.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"data_directory": map[string]any{
					"type":        "string",
					"description": "Directory whose documents are searched.",
				},
				"question": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The question to answer.",
				},
				"top_k": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"description": "Number of snippets to return.",
				},
			},
			"required": required,
		},
	}
}

// Call runs the query and renders the ranked snippets.
func (t *RagQuery) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req RagQueryRequest
	if err := decodeArguments(t.Definition(), args, &req); err != nil {
		return "", err
	}
	if req.DataDirectory == "" {
		req.DataDirectory = t.defaultDir
	}
	if req.DataDirectory == "" {
		return "", errors.New("data_directory is required")
	}
	if req.TopK == 0 {
		req.TopK = t.defaultK
	}
	results, err := t.querier.Query(ctx, req.DataDirectory, req.Question, req.TopK)
	if err != nil {
		return "", err
	}
	return rag.FormatResults(results), nil
}
