package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/eda/internal/tools"
)

type echoTool struct {
	fail bool
}

func (echoTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "echo",
		Description: "Echo the message.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
		},
	}
}

func (e echoTool) Call(_ context.Context, args json.RawMessage) (string, error) {
	if e.fail {
		return "", errors.New("boom")
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", err
	}
	return req.Message, nil
}

func callTool(t *testing.T, tool tools.Tool, args any) *mcp.CallToolResult {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Name = tool.Definition().Name
	request.Params.Arguments = args
	result, err := handlerFor(tool)(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandlerReturnsToolOutput(t *testing.T) {
	result := callTool(t, echoTool{}, map[string]any{"message": "hello"})
	assert.False(t, result.IsError)
	assert.Equal(t, "hello", textOf(t, result))
}

func TestHandlerReportsToolErrors(t *testing.T) {
	result := callTool(t, echoTool{fail: true}, nil)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "echo failed: boom")
}

func TestNewRegistersTools(t *testing.T) {
	s, err := New("eda", "test", echoTool{}, tools.NewDirectoryAnalyzer())
	require.NoError(t, err)
	require.NotNil(t, s.MCPServer())
}
