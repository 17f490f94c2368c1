//go:build !integration

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"async-ask-bot/internal/tools"
)

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(
		tools.Tool{
			Descriptor: tools.Descriptor{
				Name:        "shout",
				Description: "Upper-cases text",
				Params:      []tools.Param{{Name: "text", Type: "string", Required: true}},
				WhenToUse:   []string{"the user wants emphasis"},
			},
			Call: func(_ context.Context, args map[string]any) (string, error) {
				return args["text"].(string) + "!", nil
			},
		},
		tools.Tool{
			Descriptor: tools.Descriptor{Name: "broken", Description: "Always fails"},
			Call: func(context.Context, map[string]any) (string, error) {
				return "", errors.New("backend down")
			},
		},
	)
	require.NoError(t, err)
	return reg
}

func toolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	}
}

func TestServer_ListsRegisteredTools(t *testing.T) {
	s, err := New(testRegistry(t), "test", nil)
	require.NoError(t, err)

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := s.MCPServer().HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				InputSchema json.RawMessage `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Result.Tools, 2)

	byName := map[string]string{}
	for _, tool := range decoded.Result.Tools {
		byName[tool.Name] = tool.Description
	}
	require.Contains(t, byName["shout"], "Use when: the user wants emphasis")
	require.Contains(t, byName, "broken")
}

func TestServer_CallInvokesRegistry(t *testing.T) {
	s, err := New(testRegistry(t), "test", nil)
	require.NoError(t, err)

	result, err := s.handler("shout")(context.Background(), callRequest("shout", map[string]any{"text": "hi"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "hi!", toolText(t, result))
}

func TestServer_ToolFailuresAreResults(t *testing.T) {
	s, err := New(testRegistry(t), "test", nil)
	require.NoError(t, err)

	result, err := s.handler("broken")(context.Background(), callRequest("broken", nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, toolText(t, result), "backend down")

	result, err = s.handler("shout")(context.Background(), callRequest("shout", map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError, "missing required argument should be reported")
}

func TestNew_RejectsNilRegistry(t *testing.T) {
	_, err := New(nil, "test", nil)
	require.Error(t, err)
}
