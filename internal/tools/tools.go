// Package tools defines the capabilities eda exposes to agents: each tool has a fixed
// name, a JSON Schema for its arguments and a typed request it decodes them into.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Canonical tool names.
const (
	RagQueryName          = "rag_query"
	RegistryQueryName     = "registry_query"
	RegistryManagerName   = "registry_manager"
	DirectoryAnalyzerName = "directory_analyzer"
	AvailableToolsName    = "available_tools"
)

// ErrInvalidArguments is returned when tool arguments fail schema validation.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Definition describes a tool to an agent host.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is a callable capability.
type Tool interface {
	Definition() Definition
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Schema returns the tool's parameter schema as raw JSON.
func Schema(tool Tool) (json.RawMessage, error) {
	raw, err := json.Marshal(tool.Definition().Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", tool.Definition().Name, err)
	}
	return raw, nil
}

// decodeArguments validates args against def and unmarshals them into req.
func decodeArguments(def Definition, args json.RawMessage, req any) error {
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	if err := validateArguments(def, args); err != nil {
		return err
	}
	if err := json.Unmarshal(args, req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func validateArguments(def Definition, args json.RawMessage) error {
	if len(def.Parameters) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(def.Parameters), gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(details, "; "))
}
