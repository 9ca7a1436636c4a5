// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultRequestTimeout is the default timeout for HTTP requests.
	defaultRequestTimeout = 600 * time.Second
	// defaultPromptDir is where generated step prompts are persisted.
	defaultPromptDir = "llm_prompts"
	// defaultRegistryPath is the registry file used when the config omits one.
	defaultRegistryPath = "data_registry.yaml"
	defaultMaxTokens    = 4096

	defaultChunkSizeTokens    = 256
	defaultChunkOverlapTokens = 32
	defaultTopK               = 3
)

// Host types understood by the provider factory.
const (
	HostTypeOllama    = "ollama"
	HostTypeLlamaCpp  = "llama.cpp"
	HostTypeAnthropic = "anthropic"
)

// Parse policies for workflow steps whose output is not a JSON object.
const (
	ParseContinue = "continue"
	ParseAbort    = "abort"
)

// Config represents the top-level application configuration.
type Config struct {
	Hosts             []Host `json:"hosts" yaml:"hosts" mapstructure:"hosts"`
	CompletionHost    string `json:"completionHost,omitempty" yaml:"completionHost,omitempty" mapstructure:"completionHost"`
	CompletionModel   string `json:"completionModel,omitempty" yaml:"completionModel,omitempty" mapstructure:"completionModel"`
	MaxTokens         int    `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty" mapstructure:"maxTokens"`
	RequestsPerMinute int    `json:"requestsPerMinute,omitempty" yaml:"requestsPerMinute,omitempty" mapstructure:"requestsPerMinute"`
	TimeoutSeconds    int    `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	Debug             bool   `json:"debug" yaml:"debug" mapstructure:"debug"`
	LogFile           string `json:"logFile,omitempty" yaml:"logFile,omitempty" mapstructure:"logFile"`
	MetricsFile       string `json:"metricsFile,omitempty" yaml:"metricsFile,omitempty" mapstructure:"metricsFile"`

	PromptDir    string `json:"promptDir,omitempty" yaml:"promptDir,omitempty" mapstructure:"promptDir"`
	OnParseError string `json:"onParseError,omitempty" yaml:"onParseError,omitempty" mapstructure:"onParseError"`
	RegistryPath string `json:"registryPath,omitempty" yaml:"registryPath,omitempty" mapstructure:"registryPath"`

	RagEmbeddingHost      string   `json:"ragEmbeddingHost,omitempty" yaml:"ragEmbeddingHost,omitempty" mapstructure:"ragEmbeddingHost"`
	RagEmbeddingModel     string   `json:"ragEmbeddingModel,omitempty" yaml:"ragEmbeddingModel,omitempty" mapstructure:"ragEmbeddingModel"`
	RagChunkSizeTokens    int      `json:"ragChunkSizeTokens,omitempty" yaml:"ragChunkSizeTokens,omitempty" mapstructure:"ragChunkSizeTokens"`
	RagChunkOverlapTokens int      `json:"ragChunkOverlapTokens,omitempty" yaml:"ragChunkOverlapTokens,omitempty" mapstructure:"ragChunkOverlapTokens"`
	RagTopK               int      `json:"ragTopK,omitempty" yaml:"ragTopK,omitempty" mapstructure:"ragTopK"`
	RagAllowedExtensions  []string `json:"ragAllowedExtensions,omitempty" yaml:"ragAllowedExtensions,omitempty" mapstructure:"ragAllowedExtensions"`
	RagExcludeGlobs       []string `json:"ragExcludeGlobs,omitempty" yaml:"ragExcludeGlobs,omitempty" mapstructure:"ragExcludeGlobs"`
	RagWriteLauncher      *bool    `json:"ragWriteLauncher,omitempty" yaml:"ragWriteLauncher,omitempty" mapstructure:"ragWriteLauncher"`

	ConfigPath string `json:"-" yaml:"-" mapstructure:"-"`
}

// Host represents a single host that can serve language models.
type Host struct {
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	URL    string   `json:"url" yaml:"url" mapstructure:"url"`
	Type   string   `json:"type" yaml:"type" mapstructure:"type"`
	Models []string `json:"models" yaml:"models" mapstructure:"models"`
	APIKey string   `json:"apiKey,omitempty" yaml:"apiKey,omitempty" mapstructure:"apiKey"`
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "eda.log"
}

// PromptDirectory returns the directory holding persisted step prompts.
func (c Config) PromptDirectory() string {
	if dir := strings.TrimSpace(c.PromptDir); dir != "" {
		return dir
	}
	return defaultPromptDir
}

// RegistryFilePath returns the path of the data registry file.
func (c Config) RegistryFilePath() string {
	if path := strings.TrimSpace(c.RegistryPath); path != "" {
		return path
	}
	return defaultRegistryPath
}

// ParsePolicy returns the normalized policy for unparseable step output.
func (c Config) ParsePolicy() string {
	switch strings.ToLower(strings.TrimSpace(c.OnParseError)) {
	case ParseAbort:
		return ParseAbort
	default:
		return ParseContinue
	}
}

// MaxOutputTokens returns the completion token ceiling used by hosted providers.
func (c Config) MaxOutputTokens() int {
	if c.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return c.MaxTokens
}

// WriteLauncher reports whether a standalone launcher is written after an index build.
func (c Config) WriteLauncher() bool {
	if c.RagWriteLauncher == nil {
		return true
	}
	return *c.RagWriteLauncher
}

// ChunkSize returns the chunk window in tokens.
func (c Config) ChunkSize() int {
	if c.RagChunkSizeTokens <= 0 {
		return defaultChunkSizeTokens
	}
	return c.RagChunkSizeTokens
}

// ChunkOverlap returns the chunk overlap in tokens.
func (c Config) ChunkOverlap() int {
	if c.RagChunkOverlapTokens < 0 {
		return 0
	}
	if c.RagChunkOverlapTokens == 0 && c.RagChunkSizeTokens == 0 {
		return defaultChunkOverlapTokens
	}
	return c.RagChunkOverlapTokens
}

// TopK returns the default number of retrieval results.
func (c Config) TopK() int {
	if c.RagTopK <= 0 {
		return defaultTopK
	}
	return c.RagTopK
}

// HostByName looks up a configured host.
func (c Config) HostByName(name string) (Host, bool) {
	for _, host := range c.Hosts {
		if host.Name == name {
			return host, true
		}
	}
	return Host{}, false
}

// CompletionTarget resolves the host and model used for completions. Without an explicit
// completionHost the first host wins; without an explicit model the host's first model wins.
func (c Config) CompletionTarget() (Host, string, error) {
	if len(c.Hosts) == 0 {
		return Host{}, "", errors.New("config must contain at least one host")
	}
	host := c.Hosts[0]
	if name := strings.TrimSpace(c.CompletionHost); name != "" {
		found, ok := c.HostByName(name)
		if !ok {
			return Host{}, "", fmt.Errorf("completionHost %q not found in config hosts", name)
		}
		host = found
	}
	model := strings.TrimSpace(c.CompletionModel)
	if model == "" && len(host.Models) > 0 {
		model = host.Models[0]
	}
	if model == "" {
		return Host{}, "", fmt.Errorf("no completion model configured for host %q", host.Name)
	}
	return host, model, nil
}

// EmbeddingTarget resolves the host and model used for embeddings.
func (c Config) EmbeddingTarget() (Host, string, error) {
	if strings.TrimSpace(c.RagEmbeddingHost) == "" {
		return Host{}, "", errors.New("ragEmbeddingHost is required for retrieval")
	}
	host, ok := c.HostByName(c.RagEmbeddingHost)
	if !ok {
		return Host{}, "", fmt.Errorf("ragEmbeddingHost %q not found in config hosts", c.RagEmbeddingHost)
	}
	if strings.TrimSpace(c.RagEmbeddingModel) == "" {
		return Host{}, "", errors.New("ragEmbeddingModel is required for retrieval")
	}
	return host, c.RagEmbeddingModel, nil
}

// NormalizeHostType maps host type aliases to their canonical names.
func NormalizeHostType(hostType string) string {
	normalized := strings.ToLower(strings.TrimSpace(hostType))
	switch normalized {
	case "", "ollama":
		return HostTypeOllama
	case "llama.cpp", "llamacpp":
		return HostTypeLlamaCpp
	case "anthropic", "claude":
		return HostTypeAnthropic
	default:
		return normalized
	}
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if len(c.Hosts) == 0 {
		return errors.New("config must contain at least one host")
	}
	for _, host := range c.Hosts {
		switch NormalizeHostType(host.Type) {
		case HostTypeOllama, HostTypeLlamaCpp, HostTypeAnthropic:
		default:
			return fmt.Errorf("host %q has unsupported type %q", host.Name, host.Type)
		}
	}
	if name := strings.TrimSpace(c.CompletionHost); name != "" {
		if _, ok := c.HostByName(name); !ok {
			return fmt.Errorf("completionHost %q not found in config hosts", name)
		}
	}
	if c.ChunkOverlap() >= c.ChunkSize() {
		return errors.New("ragChunkOverlapTokens must be smaller than ragChunkSizeTokens")
	}
	switch strings.ToLower(strings.TrimSpace(c.OnParseError)) {
	case "", ParseContinue, ParseAbort:
	default:
		return fmt.Errorf("onParseError must be %q or %q, got %q", ParseContinue, ParseAbort, c.OnParseError)
	}
	return nil
}

// Load reads the application configuration from the specified path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	config.ConfigPath = path
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
