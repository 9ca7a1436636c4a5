package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mwiater/eda/internal/rag"
)

// DirectoryAnalyzerRequest is the typed input of directory_analyzer.
type DirectoryAnalyzerRequest struct {
	DirectoryPath string `json:"directory_path"`
}

// DirectoryReport summarizes the contents of a directory tree.
type DirectoryReport struct {
	Root        string
	Files       int
	Directories int
	TotalBytes  int64
	ByExtension map[string]ExtensionStats
}

// ExtensionStats counts files sharing an extension.
type ExtensionStats struct {
	Files int
	Bytes int64
}

// DirectoryAnalyzer reports file counts, types and sizes under a directory.
type DirectoryAnalyzer struct{}

// NewDirectoryAnalyzer returns the directory_analyzer tool.
func NewDirectoryAnalyzer() *DirectoryAnalyzer {
	return &DirectoryAnalyzer{}
}

// Definition describes directory_analyzer.
func (t *DirectoryAnalyzer) Definition() Definition {
	return Definition{
		Name:        DirectoryAnalyzerName,
		Description: "Analyze a directory and report file and folder counts, file types and sizes.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"directory_path": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The path of the directory to analyze.",
				},
			},
			"required": []string{"directory_path"},
		},
	}
}

// Call analyzes the directory and renders the report.
func (t *DirectoryAnalyzer) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req DirectoryAnalyzerRequest
	if err := decodeArguments(t.Definition(), args, &req); err != nil {
		return "", err
	}
	report, err := AnalyzeDirectory(ctx, req.DirectoryPath)
	if err != nil {
		return "", err
	}
	return report.String(), nil
}

// AnalyzeDirectory walks root, skipping index caches.
func AnalyzeDirectory(ctx context.Context, root string) (DirectoryReport, error) {
	report := DirectoryReport{Root: root, ByExtension: map[string]ExtensionStats{}}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if d.Name() == rag.CacheDirName {
				return filepath.SkipDir
			}
			report.Directories++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == "" {
			ext = "(none)"
		}
		stats := report.ByExtension[ext]
		stats.Files++
		stats.Bytes += info.Size()
		report.ByExtension[ext] = stats
		report.Files++
		report.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return DirectoryReport{}, fmt.Errorf("analyze %s: %w", root, err)
	}
	return report, nil
}

// String renders the report with extensions ordered by file count.
func (r DirectoryReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Directory: %s\n", r.Root)
	fmt.Fprintf(&b, "Files: %d\n", r.Files)
	fmt.Fprintf(&b, "Subdirectories: %d\n", r.Directories)
	fmt.Fprintf(&b, "Total size: %s\n", humanBytes(r.TotalBytes))

	exts := make([]string, 0, len(r.ByExtension))
	for ext := range r.ByExtension {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		a, b := r.ByExtension[exts[i]], r.ByExtension[exts[j]]
		if a.Files != b.Files {
			return a.Files > b.Files
		}
		return exts[i] < exts[j]
	})
	if len(exts) > 0 {
		b.WriteString("File types:\n")
	}
	for _, ext := range exts {
		stats := r.ByExtension[ext]
		fmt.Fprintf(&b, "  %-8s %5d files %10s\n", ext, stats.Files, humanBytes(stats.Bytes))
	}
	return strings.TrimRight(b.String(), "\n")
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
