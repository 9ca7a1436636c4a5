package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mwiater/eda/internal/registry"
)

// Registry manager actions.
const (
	ActionList   = "list"
	ActionUpdate = "update"
	ActionClear  = "clear"
)

// RegistryManagerRequest is the typed input of registry_manager.
type RegistryManagerRequest struct {
	Action        string `json:"action"`
	DataDirectory string `json:"data_directory"`
	Status        string `json:"status"`
	DataFormat    string `json:"data_format"`
	PurgeCaches   bool   `json:"purge_caches"`
}

// RegistryManager lists, updates and clears the data registry.
type RegistryManager struct {
	registry *registry.Registry
}

// NewRegistryManager returns the registry_manager tool.
func NewRegistryManager(reg *registry.Registry) *RegistryManager {
	return &RegistryManager{registry: reg}
}

// Definition describes registry_manager.
func (t *RegistryManager) Definition() Definition {
	return Definition{
		Name:        RegistryManagerName,
		Description: "Manage the data registry. Actions are 'list', 'update' and 'clear'.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{ActionList, ActionUpdate, ActionClear},
				},
				"data_directory": map[string]any{"type": "string"},
				"status":         map[string]any{"type": "string"},
				"data_format":    map[string]any{"type": "string"},
				"purge_caches":   map[string]any{"type": "boolean"},
			},
			"required": []string{"action"},
		},
	}
}

// Call performs the requested action.
func (t *RegistryManager) Call(_ context.Context, args json.RawMessage) (string, error) {
	var req RegistryManagerRequest
	if err := decodeArguments(t.Definition(), args, &req); err != nil {
		return "", err
	}

	switch req.Action {
	case ActionList:
		entries, err := t.registry.List()
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "Registry is empty.", nil
		}
		out, err := yaml.Marshal(entries)
		if err != nil {
			return "", fmt.Errorf("render registry: %w", err)
		}
		return string(out), nil
	case ActionUpdate:
		entry, err := t.registry.Update(registry.Entry{
			DataDirectory: req.DataDirectory,
			Status:        req.Status,
			DataFormat:    req.DataFormat,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated registry entry for: %s", entry.DataDirectory), nil
	default:
		removed, err := t.registry.Clear(req.PurgeCaches)
		if err != nil {
			return "", err
		}
		if req.PurgeCaches {
			return fmt.Sprintf("Registry and caches cleared (%d entries).", removed), nil
		}
		return fmt.Sprintf("Registry cleared (%d entries).", removed), nil
	}
}
