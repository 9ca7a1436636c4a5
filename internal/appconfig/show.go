package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		fmt.Fprintln(out, "  (no configuration loaded)")
		return
	}

	fmt.Fprintf(out, "  Debug:             %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Log File:          %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Request Timeout:   %s\n", cfg.RequestTimeout())
	for _, host := range cfg.Hosts {
		fmt.Fprintf(out, "  Host:              %s (%s) %s\n", host.Name, NormalizeHostType(host.Type), host.URL)
	}
	if host, model, err := cfg.CompletionTarget(); err == nil {
		fmt.Fprintf(out, "  Completion:        %s @ %s\n", model, host.Name)
	} else {
		fmt.Fprintf(out, "  Completion:        unresolved (%v)\n", err)
	}
	if cfg.RequestsPerMinute > 0 {
		fmt.Fprintf(out, "  Requests/Minute:   %d\n", cfg.RequestsPerMinute)
	}
	fmt.Fprintf(out, "  Prompt Dir:        %s\n", cfg.PromptDirectory())
	fmt.Fprintf(out, "  On Parse Error:    %s\n", cfg.ParsePolicy())
	fmt.Fprintf(out, "  Registry:          %s\n", cfg.RegistryFilePath())
	if cfg.MetricsFile != "" {
		fmt.Fprintf(out, "  Metrics File:      %s\n", cfg.MetricsFile)
	}
	fmt.Fprintf(out, "  RAG Embedding Model: %s\n", cfg.RagEmbeddingModel)
	fmt.Fprintf(out, "  RAG Embedding Host:  %s\n", cfg.RagEmbeddingHost)
	fmt.Fprintf(out, "  RAG Chunk Size Tokens: %d\n", cfg.ChunkSize())
	fmt.Fprintf(out, "  RAG Chunk Overlap Tokens: %d\n", cfg.ChunkOverlap())
	fmt.Fprintf(out, "  RAG Top K:         %d\n", cfg.TopK())
	fmt.Fprintf(out, "  RAG Allowed Extensions: %v\n", cfg.RagAllowedExtensions)
	fmt.Fprintf(out, "  RAG Exclude Globs: %v\n", cfg.RagExcludeGlobs)
	fmt.Fprintf(out, "  RAG Write Launcher: %v\n", cfg.WriteLauncher())
}
