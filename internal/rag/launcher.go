package rag

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
)

var launcherTemplate = template.Must(template.New("launcher").Parse(`#!/bin/sh
# Serves the retrieval index in {{.Storage}} over MCP stdio.
# Regenerated whenever the index is rebuilt.
exec {{.Command}} "$@"
`))

// WriteLauncher writes <dataDir>/.cache/rag_mcp.sh, a script that starts an MCP server
// answering rag_query against dataDir. executable defaults to the running binary.
func WriteLauncher(dataDir, executable string) (string, error) {
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
		executable = exe
	}

	argv := []string{executable, "mcp", "serve", "--data-dir", dataDir}
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellQuote(arg)
	}

	var buf bytes.Buffer
	err := launcherTemplate.Execute(&buf, struct {
		Storage string
		Command string
	}{
		Storage: StoragePath(dataDir),
		Command: strings.Join(quoted, " "),
	})
	if err != nil {
		return "", fmt.Errorf("render launcher: %w", err)
	}

	path := LauncherPath(dataDir)
	if err := os.MkdirAll(CacheDir(dataDir), 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		return "", fmt.Errorf("write launcher: %w", err)
	}
	return path, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
