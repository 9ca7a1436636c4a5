package rag

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Layout of the per-directory cache.
const (
	CacheDirName     = ".cache"
	StorageDirName   = "storage"
	IndexFileName    = "index.jsonl"
	ManifestFileName = "manifest.json"
	LauncherFileName = "rag_mcp.sh"
)

// CacheDir returns <dataDir>/.cache.
func CacheDir(dataDir string) string {
	return filepath.Join(dataDir, CacheDirName)
}

// StoragePath returns the persisted index location for dataDir.
func StoragePath(dataDir string) string {
	return filepath.Join(dataDir, CacheDirName, StorageDirName)
}

// LauncherPath returns the location of the generated MCP launcher for dataDir.
func LauncherPath(dataDir string) string {
	return filepath.Join(dataDir, CacheDirName, LauncherFileName)
}

// storagePresent reports whether storage exists and holds at least one entry.
func storagePresent(storage string) (bool, error) {
	entries, err := os.ReadDir(storage)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("inspect index storage: %w", err)
	}
	return len(entries) > 0, nil
}

func writeIndex(dir string, entries []IndexEntry, manifest Manifest) error {
	out, err := os.Create(filepath.Join(dir, IndexFileName))
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := encodeEntries(out, entries); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// encodeEntries writes one JSON line per entry and closes out. A close failure is
// reported so a truncated index is never published.
func encodeEntries(out io.WriteCloser, entries []IndexEntry) error {
	writer := bufio.NewWriter(out)
	encoder := json.NewEncoder(writer)
	encoder.SetEscapeHTML(false)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			_ = out.Close()
			return fmt.Errorf("write index entry: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = out.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return nil
}

func loadIndex(path string) ([]IndexEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rag index: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	var entries []IndexEntry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry IndexEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("parse rag index line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rag index: %w", err)
	}

	return entries, nil
}

func loadManifest(path string) (Manifest, error) {
	var manifest Manifest
	raw, err := os.ReadFile(path)
	if err != nil {
		return manifest, err
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return manifest, fmt.Errorf("parse manifest: %w", err)
	}
	return manifest, nil
}
