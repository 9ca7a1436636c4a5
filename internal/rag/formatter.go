package rag

import (
	"fmt"
	"sort"
	"strings"
)

// FormatResults renders ranked results as a plain-text block, one section per snippet.
func FormatResults(results []QueryResult) string {
	if len(results) == 0 {
		return "No results."
	}

	var b strings.Builder
	for i, result := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("-----\n")
		fmt.Fprintf(&b, "Text:\t%s\n", strings.Join(strings.Fields(result.Content), " "))
		fmt.Fprintf(&b, "Metadata:\t%s\n", formatMetadata(result.Metadata))
		fmt.Fprintf(&b, "Score:\t%.4f", result.Score)
	}
	return b.String()
}

func formatMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, metadata[key]))
	}
	return strings.Join(parts, " ")
}
