package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mwiater/eda/internal/rag"
)

// NoSourcesMessage is the aggregate answer for an empty registry.
const NoSourcesMessage = "No registered data directories."

// Querier answers a retrieval query against one data directory.
type Querier interface {
	Query(ctx context.Context, dataDir, question string, topK int) ([]rag.QueryResult, error)
}

// Lister supplies the registered entries.
type Lister interface {
	List() ([]Entry, error)
}

// SourceResult is the outcome of querying one registered directory.
type SourceResult struct {
	DataDir string
	Results []rag.QueryResult
	Err     error
}

// Aggregator runs a question against every registered directory in order.
type Aggregator struct {
	entries Lister
	querier Querier
}

// NewAggregator returns an Aggregator over entries using querier.
func NewAggregator(entries Lister, querier Querier) *Aggregator {
	return &Aggregator{entries: entries, querier: querier}
}

// Run queries each registered directory sequentially. A failing directory is recorded in
// its SourceResult and does not stop the remaining directories.
func (a *Aggregator) Run(ctx context.Context, question string, topK int) ([]SourceResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", rag.ErrInvalidTopK, topK)
	}
	if strings.TrimSpace(question) == "" {
		return nil, rag.ErrEmptyQuestion
	}

	entries, err := a.entries.List()
	if err != nil {
		return nil, err
	}

	sources := make([]SourceResult, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return sources, err
		}
		results, err := a.querier.Query(ctx, entry.DataDirectory, question, topK)
		if err != nil {
			slog.Warn("registry source failed", "dir", entry.DataDirectory, "err", err)
		}
		sources = append(sources, SourceResult{DataDir: entry.DataDirectory, Results: results, Err: err})
	}
	return sources, nil
}

// Query runs the question across the registry and renders the combined text.
func (a *Aggregator) Query(ctx context.Context, question string, topK int) (string, error) {
	sources, err := a.Run(ctx, question, topK)
	if err != nil {
		return "", err
	}
	return FormatSources(sources), nil
}

// FormatSources renders one labeled block per source, in order.
func FormatSources(sources []SourceResult) string {
	if len(sources) == 0 {
		return NoSourcesMessage
	}
	blocks := make([]string, 0, len(sources))
	for _, source := range sources {
		if source.Err != nil {
			blocks = append(blocks, fmt.Sprintf("[FAILED] %s: %v", source.DataDir, source.Err))
			continue
		}
		blocks = append(blocks, fmt.Sprintf("== %s ==\n%s", source.DataDir, rag.FormatResults(source.Results)))
	}
	return strings.Join(blocks, "\n\n")
}
