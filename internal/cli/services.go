package eda

import (
	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/rag"
	"github.com/mwiater/eda/internal/registry"
	"github.com/mwiater/eda/internal/tools"
)

func newIndexCache(cfg *appconfig.Config) (*rag.IndexCache, error) {
	embedder, err := rag.NewEmbedderFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return rag.NewIndexCache(embedder, rag.OptionsFromConfig(cfg), rag.WithRecorder(recorder)), nil
}

func newRegistry(cfg *appconfig.Config) *registry.Registry {
	return registry.New(cfg.RegistryFilePath())
}

// buildTools assembles the agent tool set. dataDir binds rag_query to one directory.
func buildTools(cfg *appconfig.Config, dataDir string) ([]tools.Tool, error) {
	cache, err := newIndexCache(cfg)
	if err != nil {
		return nil, err
	}
	reg := newRegistry(cfg)
	set := []tools.Tool{
		tools.NewRagQuery(cache, dataDir, cfg.TopK()),
		tools.NewRegistryQuery(registry.NewAggregator(reg, cache), cfg.TopK()),
		tools.NewRegistryManager(reg),
		tools.NewDirectoryAnalyzer(),
	}
	return append(set, tools.NewAvailableTools(set...)), nil
}
