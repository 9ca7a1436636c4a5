// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoad verifies that a valid configuration file is loaded with defaults applied,
// while files with invalid JSON, no hosts, or that are missing result in an error.
func TestLoad(t *testing.T) {
	validConfig := `{
        "hosts": [
            {
                "name": "Test Host",
                "url": "http://localhost:11434",
                "type": "ollama",
                "models": ["model1", "model2"]
            }
        ]
    }`
	cfg, err := Load(writeConfig(t, "config.json", validConfig))
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if len(cfg.Hosts) != 1 {
		t.Fatalf("expected 1 host, got %d", len(cfg.Hosts))
	}
	if cfg.TimeoutSeconds != 600 {
		t.Fatalf("expected default timeout of 600 seconds, got %d", cfg.TimeoutSeconds)
	}
	if cfg.RequestTimeout() != 600*time.Second {
		t.Fatalf("expected default request timeout of 600s, got %v", cfg.RequestTimeout())
	}
	if cfg.PromptDirectory() != "llm_prompts" {
		t.Fatalf("unexpected prompt dir %q", cfg.PromptDirectory())
	}
	if cfg.RegistryFilePath() != "data_registry.yaml" {
		t.Fatalf("unexpected registry path %q", cfg.RegistryFilePath())
	}
	if cfg.ParsePolicy() != ParseContinue {
		t.Fatalf("expected continue policy, got %q", cfg.ParsePolicy())
	}
	if !cfg.WriteLauncher() {
		t.Fatal("expected launcher to default on")
	}

	if _, err := Load(writeConfig(t, "bad.json", `{ "hosts": [`)); err == nil {
		t.Fatal("Load() with invalid JSON should have failed")
	}
	if _, err := Load(writeConfig(t, "empty.json", `{ "hosts": [] }`)); err == nil {
		t.Fatal("Load() with no hosts should have failed")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.json")); err == nil {
		t.Fatal("Load() with nonexistent file should have failed")
	}
}

func TestLoadYAML(t *testing.T) {
	body := `hosts:
  - name: local
    url: http://localhost:8080
    type: llamacpp
    models: [qwen]
onParseError: abort
ragTopK: 7
`
	cfg, err := Load(writeConfig(t, "config.yaml", body))
	if err != nil {
		t.Fatalf("Load() yaml: %v", err)
	}
	if NormalizeHostType(cfg.Hosts[0].Type) != HostTypeLlamaCpp {
		t.Fatalf("unexpected host type %q", cfg.Hosts[0].Type)
	}
	if cfg.ParsePolicy() != ParseAbort {
		t.Fatalf("expected abort policy, got %q", cfg.ParsePolicy())
	}
	if cfg.TopK() != 7 {
		t.Fatalf("expected top k 7, got %d", cfg.TopK())
	}
}

func TestValidateRejectsInconsistentValues(t *testing.T) {
	base := Config{Hosts: []Host{{Name: "a", Type: "ollama", Models: []string{"m"}}}}

	bad := base
	bad.Hosts = []Host{{Name: "x", Type: "bogus"}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unsupported host type error")
	}

	bad = base
	bad.CompletionHost = "missing"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unknown completionHost error")
	}

	bad = base
	bad.RagChunkSizeTokens = 10
	bad.RagChunkOverlapTokens = 10
	if err := bad.Validate(); err == nil {
		t.Fatal("expected overlap error")
	}

	bad = base
	bad.OnParseError = "retry"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected onParseError error")
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompletionTarget(t *testing.T) {
	cfg := Config{Hosts: []Host{
		{Name: "first", Models: []string{"m1"}},
		{Name: "second", Models: []string{"m2", "m3"}},
	}}
	host, model, err := cfg.CompletionTarget()
	if err != nil || host.Name != "first" || model != "m1" {
		t.Fatalf("default target: host=%s model=%s err=%v", host.Name, model, err)
	}

	cfg.CompletionHost = "second"
	cfg.CompletionModel = "m3"
	host, model, err = cfg.CompletionTarget()
	if err != nil || host.Name != "second" || model != "m3" {
		t.Fatalf("explicit target: host=%s model=%s err=%v", host.Name, model, err)
	}

	cfg.CompletionHost = "nope"
	if _, _, err := cfg.CompletionTarget(); err == nil {
		t.Fatal("expected error for unknown host")
	}
}

func TestShowConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Hosts: []Host{{Name: "h", Type: "anthropic", Models: []string{"claude"}}}}
	ShowConfig(&buf, "config/config.json", cfg)
	out := buf.String()
	for _, want := range []string{"Config file: config/config.json", "claude @ h", "On Parse Error:    continue"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	ShowConfig(&buf, "", nil)
	if !strings.Contains(buf.String(), "No config file loaded") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
