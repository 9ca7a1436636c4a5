// Package rag maintains per-directory retrieval indexes. Each data directory carries its
// own embedded chunk index under .cache/storage, built on first use and reused after.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/metrics"
)

var (
	// ErrInvalidTopK is returned when a query asks for fewer than one result.
	ErrInvalidTopK = errors.New("topK must be a positive integer")
	// ErrEmptyQuestion is returned for a blank query.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrIndexCorrupt is returned when persisted storage exists but cannot be loaded.
	ErrIndexCorrupt = errors.New("retrieval index is corrupt")
	// ErrNoDocuments is returned when a build finds nothing to index.
	ErrNoDocuments = errors.New("no readable documents")
	// ErrDimensionMismatch is returned, wrapped in ErrIndexCorrupt, when the question
	// embedding and the persisted chunk embeddings differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Index resolution actions.
const (
	ActionBuild = "build"
	ActionLoad  = "load"
)

// Options controls how indexes are built.
type Options struct {
	ChunkSize         int
	ChunkOverlap      int
	AllowedExtensions []string
	ExcludeGlobs      []string
	// WriteLauncher emits .cache/rag_mcp.sh after every build.
	WriteLauncher bool
	// Executable is the eda binary the launcher execs. Defaults to os.Executable.
	Executable string
}

// OptionsFromConfig derives build options from cfg.
func OptionsFromConfig(cfg *appconfig.Config) Options {
	return Options{
		ChunkSize:         cfg.ChunkSize(),
		ChunkOverlap:      cfg.ChunkOverlap(),
		AllowedExtensions: cfg.RagAllowedExtensions,
		ExcludeGlobs:      cfg.RagExcludeGlobs,
		WriteLauncher:     cfg.WriteLauncher(),
	}
}

// IndexCache resolves, builds and queries directory indexes.
type IndexCache struct {
	embedder Embedder
	opts     Options
	clock    clockwork.Clock
	recorder *metrics.Recorder
}

// Option customizes an IndexCache.
type Option func(*IndexCache)

// WithClock overrides the clock used for manifests and timings.
func WithClock(clock clockwork.Clock) Option {
	return func(c *IndexCache) { c.clock = clock }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder *metrics.Recorder) Option {
	return func(c *IndexCache) { c.recorder = recorder }
}

// NewIndexCache creates a cache that embeds with embedder.
func NewIndexCache(embedder Embedder, opts Options, options ...Option) *IndexCache {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 256
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	c := &IndexCache{
		embedder: embedder,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Query returns the topK snippets of dataDir most similar to question, building the
// directory's index first if none is persisted.
func (c *IndexCache) Query(ctx context.Context, dataDir, question string, topK int) ([]QueryResult, error) {
	results, err := c.query(ctx, dataDir, question, topK)
	c.recorder.RecordQuery(err)
	return results, err
}

func (c *IndexCache) query(ctx context.Context, dataDir, question string, topK int) ([]QueryResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	index, _, err := c.Resolve(ctx, dataDir)
	if err != nil {
		return nil, err
	}

	queryVec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return index.Search(queryVec, topK)
}

// Resolve loads the persisted index for dataDir or builds it when storage is missing or
// empty. The boolean reports whether a build happened.
func (c *IndexCache) Resolve(ctx context.Context, dataDir string) (*Index, bool, error) {
	abs, err := resolveDataDir(dataDir)
	if err != nil {
		return nil, false, err
	}

	storage := StoragePath(abs)
	present, err := storagePresent(storage)
	if err != nil {
		return nil, false, err
	}

	if present {
		entries, err := c.load(storage)
		if err != nil {
			return nil, false, err
		}
		c.recorder.RecordIndexResolution(ActionLoad)
		slog.Debug("loaded retrieval index", "dir", abs, "chunks", len(entries))
		return &Index{DataDir: abs, Entries: entries}, false, nil
	}

	entries, err := c.build(ctx, abs)
	if err != nil {
		return nil, false, err
	}
	c.recorder.RecordIndexResolution(ActionBuild)

	if c.opts.WriteLauncher {
		if path, err := WriteLauncher(abs, c.opts.Executable); err != nil {
			slog.Warn("could not write MCP launcher", "dir", abs, "err", err)
		} else {
			slog.Debug("wrote MCP launcher", "path", path)
		}
	}
	return &Index{DataDir: abs, Entries: entries}, true, nil
}

// Invalidate removes the persisted index for dataDir so the next query rebuilds it.
func (c *IndexCache) Invalidate(dataDir string) error {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dataDir, err)
	}
	if err := os.RemoveAll(StoragePath(abs)); err != nil {
		return fmt.Errorf("remove index storage: %w", err)
	}
	slog.Info("invalidated retrieval index", "dir", abs)
	return nil
}

func (c *IndexCache) load(storage string) ([]IndexEntry, error) {
	entries, err := loadIndex(filepath.Join(storage, IndexFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, storage, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s: index contains no entries", ErrIndexCorrupt, storage)
	}
	if manifest, err := loadManifest(filepath.Join(storage, ManifestFileName)); err == nil {
		if named, ok := c.embedder.(interface{ Model() string }); ok && manifest.EmbeddingModel != "" && manifest.EmbeddingModel != named.Model() {
			slog.Warn("index was built with a different embedding model", "storage", storage, "index_model", manifest.EmbeddingModel, "model", named.Model())
		}
	}
	return entries, nil
}

func resolveDataDir(dataDir string) (string, error) {
	if strings.TrimSpace(dataDir) == "" {
		return "", errors.New("data directory is empty")
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dataDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("data directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("data directory %s is not a directory", abs)
	}
	return abs, nil
}
