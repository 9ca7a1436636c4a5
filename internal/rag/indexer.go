package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// build enumerates, chunks and embeds every document under dataDir and persists the
// result into the storage directory. The index is written to a staging directory first
// and renamed into place so a partially written index is never observed.
func (c *IndexCache) build(ctx context.Context, dataDir string) ([]IndexEntry, error) {
	start := c.clock.Now()
	slog.Info("building retrieval index", "dir", dataDir, "chunk_size", c.opts.ChunkSize, "overlap", c.opts.ChunkOverlap)

	files, err := discoverCorpusFiles(dataDir, c.opts.AllowedExtensions, c.opts.ExcludeGlobs)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", dataDir, err)
	}
	slog.Debug("discovered corpus files", "dir", dataDir, "count", len(files))

	var entries []IndexEntry
	documents := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", path, "err", err)
			continue
		}
		if !utf8.Valid(raw) {
			slog.Debug("skipping non-text file", "path", path)
			continue
		}
		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}

		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		docName := filepath.ToSlash(rel)

		chunks := ChunkText(text, c.opts.ChunkSize, c.opts.ChunkOverlap)
		for idx, ch := range chunks {
			vector, err := c.embedder.Embed(ctx, ch.Text)
			if err != nil {
				return nil, fmt.Errorf("embed %s chunk %d: %w", docName, idx, err)
			}
			entries = append(entries, IndexEntry{
				ChunkID:    fmt.Sprintf("%s:%d", docName, idx),
				Doc:        docName,
				Offset:     ch.Offset,
				Text:       ch.Text,
				Embedding:  vector,
				TokenCount: ch.Tokens,
			})
		}
		documents++
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoDocuments, dataDir)
	}

	manifest := Manifest{
		DataDir:   dataDir,
		CreatedAt: c.clock.Now().UTC(),
		Documents: documents,
		Chunks:    len(entries),
	}
	if named, ok := c.embedder.(interface{ Model() string }); ok {
		manifest.EmbeddingModel = named.Model()
	}

	if err := persist(dataDir, entries, manifest); err != nil {
		return nil, err
	}

	slog.Info("retrieval index built", "dir", dataDir, "documents", documents, "chunks", len(entries), "elapsed", c.clock.Since(start))
	return entries, nil
}

func persist(dataDir string, entries []IndexEntry, manifest Manifest) error {
	cacheDir := CacheDir(dataDir)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	staging := filepath.Join(cacheDir, StorageDirName+".tmp-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	if err := writeIndex(staging, entries, manifest); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	storage := StoragePath(dataDir)
	// An empty storage directory counts as absent and is replaced.
	if err := os.Remove(storage); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("replace index storage: %w", err)
	}
	if err := os.Rename(staging, storage); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("publish index storage: %w", err)
	}
	return nil
}

func discoverCorpusFiles(root string, allowed []string, exclude []string) ([]string, error) {
	var files []string
	allowedMap := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowedMap[ext] = struct{}{}
	}

	cacheDir := CacheDir(root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if path == cacheDir || shouldExclude(path, exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if shouldExclude(path, exclude) {
			return nil
		}

		if len(allowedMap) > 0 {
			ext := strings.ToLower(filepath.Ext(path))
			if _, ok := allowedMap[ext]; !ok {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func shouldExclude(path string, patterns []string) bool {
	normalized := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		pattern = filepath.ToSlash(pattern)
		if strings.Contains(pattern, "**") {
			trimmed := strings.ReplaceAll(pattern, "**", "")
			if trimmed != "" && strings.Contains(normalized, trimmed) {
				return true
			}
		}
		if ok, _ := filepath.Match(pattern, normalized); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
