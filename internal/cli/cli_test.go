// internal/cli/cli_test.go
package eda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/eda/internal/rag"
	"github.com/mwiater/eda/internal/registry"
	"github.com/mwiater/eda/internal/workflow"
)

// writeTestConfig writes a config pointing at hostURL and returns its path.
func writeTestConfig(t *testing.T, hostURL string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"hosts": []map[string]any{{
			"name":   "local",
			"url":    hostURL,
			"type":   "ollama",
			"models": []string{"llama3"},
		}},
		"ragEmbeddingHost":   "local",
		"ragEmbeddingModel":  "nomic-embed-text",
		"ragChunkSizeTokens": 8,
		"ragTopK":            2,
		"registryPath":       filepath.Join(dir, "registry.yaml"),
		"promptDir":          filepath.Join(dir, "prompts"),
		"logFile":            filepath.Join(dir, "eda.log"),
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// resetFlags restores every flag to its default so values from one execution do not
// leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	currentConfig = nil
	resetFlags(rootCmd)
	t.Cleanup(func() {
		currentConfig = nil
		rootCmd.SetArgs(nil)
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// newEmbeddingServer answers /api/embeddings with a two-dimensional vector that
// favors text mentioning "apple".
func newEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		vec := []float64{0.1, 1}
		if strings.Contains(strings.ToLower(req.Prompt), "apple") {
			vec = []float64{1, 0.1}
		}
		fmt.Fprintf(w, `{"embedding":[%g,%g]}`, vec[0], vec[1])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestShowConfig(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://localhost:11434")

	out, _, err := executeCommand(t, "--config", cfgPath, "show", "config")
	require.NoError(t, err)

	assert.Contains(t, out, "Config file: "+cfgPath)
	assert.Contains(t, out, "Completion:        llama3 @ local")
	assert.Contains(t, out, "RAG Top K:         2")
}

func TestRegistryUpdateAndList(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://localhost:11434")
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "notes.txt"), []byte("hello"), 0o644))

	out, _, err := executeCommand(t, "--config", cfgPath, "registry", "update", dataDir, "--format", "txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated registry entry for: "+dataDir)

	out, _, err = executeCommand(t, "--config", cfgPath, "registry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, dataDir)
	assert.Contains(t, out, "format:       txt")

	out, _, err = executeCommand(t, "--config", cfgPath, "registry", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Registry cleared (1 entries).")

	out, _, err = executeCommand(t, "--config", cfgPath, "registry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Registry is empty.")
}

func TestRegistryUpdateRejectsMissingDirectory(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://localhost:11434")

	_, _, err := executeCommand(t, "--config", cfgPath, "registry", "update", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrInvalidEntry)
}

func TestRagQueryBuildsIndexThenLoads(t *testing.T) {
	srv := newEmbeddingServer(t)
	cfgPath := writeTestConfig(t, srv.URL)
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "fruit.txt"), []byte("apple orchards"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "stone.txt"), []byte("granite quarry"), 0o644))

	out, _, err := executeCommand(t, "--config", cfgPath, "rag", "query", dataDir, "which", "apple?")
	require.NoError(t, err)
	assert.Contains(t, out, "Text:\tapple orchards")
	assert.Less(t, strings.Index(out, "apple orchards"), strings.Index(out, "granite quarry"))

	_, err = os.Stat(filepath.Join(rag.StoragePath(dataDir), rag.IndexFileName))
	require.NoError(t, err)
	_, err = os.Stat(rag.LauncherPath(dataDir))
	require.NoError(t, err)

	out, _, err = executeCommand(t, "--config", cfgPath, "rag", "index", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded existing index: 2 chunks")

	out, _, err = executeCommand(t, "--config", cfgPath, "rag", "invalidate", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, rag.StoragePath(dataDir))
	_, err = os.Stat(rag.StoragePath(dataDir))
	assert.True(t, os.IsNotExist(err))
}

func TestRegistryQueryReportsFailures(t *testing.T) {
	srv := newEmbeddingServer(t)
	cfgPath := writeTestConfig(t, srv.URL)
	good := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(good, "fruit.txt"), []byte("apple orchards"), 0o644))
	empty := t.TempDir()

	for _, dir := range []string{good, empty} {
		_, _, err := executeCommand(t, "--config", cfgPath, "registry", "update", dir)
		require.NoError(t, err)
	}

	out, errOut, err := executeCommand(t, "--config", cfgPath, "registry", "query", "apple")
	require.NoError(t, err)
	assert.Contains(t, out, "== "+good+" ==")
	assert.Contains(t, out, "[FAILED] "+empty)
	assert.Contains(t, errOut, "1 of 2 directories failed")
}

// newChatServer answers /api/chat like an Ollama host. Prompt-synthesis requests get
// "PROMPT:<step>"; step requests are answered from replies keyed by step name, and a
// step missing from replies gets a 500.
func newChatServer(t *testing.T, replies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var content string
		if step, ok := strings.CutPrefix(req.Messages[0].Content, "PROMPT:"); ok {
			reply, found := replies[step]
			if !found {
				http.Error(w, "model crashed", http.StatusInternalServerError)
				return
			}
			content = reply
		} else {
			rest := req.Messages[1].Content[strings.Index(req.Messages[1].Content, `named "`)+len(`named "`):]
			content = "PROMPT:" + rest[:strings.Index(rest, `"`)]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3",
			"message": map[string]string{"role": "assistant", "content": content},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeWorkflow(t *testing.T, steps ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("steps:\n")
	for _, step := range steps {
		fmt.Fprintf(&b, "  - step: %s\n    description: Handle %s.\n", step, step)
	}
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestWorkflowRunWritesFinalState(t *testing.T) {
	srv := newChatServer(t, map[string]string{
		"extract":   `{"extracted":"hello world"}`,
		"summarize": "```json\n{\"summary\":\"greeting\"}\n```",
	})
	cfgPath := writeTestConfig(t, srv.URL)
	spec := writeWorkflow(t, "extract", "summarize")
	output := filepath.Join(t.TempDir(), "state.json")

	_, errOut, err := executeCommand(t, "--config", cfgPath, "workflow", "run", spec,
		"--state", `{"text":"hello world"}`, "--output", output)
	require.NoError(t, err)
	assert.Contains(t, errOut, "workflow complete")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var state map[string]any
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, map[string]any{
		"text":      "hello world",
		"extracted": "hello world",
		"summary":   "greeting",
	}, state)

	promptDir := filepath.Join(filepath.Dir(cfgPath), "prompts")
	for _, step := range []string{"extract", "summarize"} {
		_, err := os.Stat(filepath.Join(promptDir, step+".yaml"))
		assert.NoError(t, err, step)
	}
}

func TestWorkflowRunReadsInputFile(t *testing.T) {
	srv := newChatServer(t, map[string]string{"extract": `{"extracted":"from file"}`})
	cfgPath := writeTestConfig(t, srv.URL)
	spec := writeWorkflow(t, "extract")
	input := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"text":"from file","extracted":"stale"}`), 0o644))

	out, _, err := executeCommand(t, "--config", cfgPath, "workflow", "run", spec, "--input", input)
	require.NoError(t, err)

	var state map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "from file", state["extracted"])
	assert.Equal(t, "from file", state["text"])
}

func TestWorkflowRunWritesPartialStateOnStepError(t *testing.T) {
	srv := newChatServer(t, map[string]string{"extract": `{"extracted":"hello"}`})
	cfgPath := writeTestConfig(t, srv.URL)
	spec := writeWorkflow(t, "extract", "summarize", "publish")

	out, errOut, err := executeCommand(t, "--config", cfgPath, "workflow", "run", spec, "--state", `{"text":"hello"}`)
	require.Error(t, err)
	var stepErr *workflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "summarize", stepErr.Step)
	assert.Equal(t, 1, stepErr.Index)
	assert.NotContains(t, errOut, "workflow complete")

	var state map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, map[string]any{"text": "hello", "extracted": "hello"}, state)
}

func TestWorkflowRunRejectsConflictingStateFlags(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://localhost:11434")
	spec := writeWorkflow(t, "extract")

	_, _, err := executeCommand(t, "--config", cfgPath, "workflow", "run", spec,
		"--state", `{}`, "--input", filepath.Join(t.TempDir(), "in.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}
