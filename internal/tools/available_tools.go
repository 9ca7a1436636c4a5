package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AvailableTools lists the other registered tools.
type AvailableTools struct {
	tools []Tool
}

// NewAvailableTools returns a helper tool describing tools.
func NewAvailableTools(tools ...Tool) *AvailableTools {
	return &AvailableTools{tools: tools}
}

// Definition describes available_tools.
func (t *AvailableTools) Definition() Definition {
	return Definition{
		Name:        AvailableToolsName,
		Description: "Use this tool when asked which tools are available or what they do.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// Call returns one line per tool.
func (t *AvailableTools) Call(_ context.Context, args json.RawMessage) (string, error) {
	if err := decodeArguments(t.Definition(), args, &struct{}{}); err != nil {
		return "", err
	}
	lines := make([]string, 0, len(t.tools)+1)
	for _, tool := range append([]Tool{t}, t.tools...) {
		def := tool.Definition()
		lines = append(lines, fmt.Sprintf("- %s: %s", def.Name, def.Description))
	}
	return strings.Join(lines, "\n"), nil
}
