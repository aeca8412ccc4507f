package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	} `json:"inputSchema"`
}

type toolCallResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// listTools runs tools/list and indexes the tools by name.
func listTools(t *testing.T, s *server.MCPServer) map[string]toolInfo {
	t.Helper()
	result := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []toolInfo `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	tools := make(map[string]toolInfo, len(response.Result.Tools))
	for _, tool := range response.Result.Tools {
		tools[tool.Name] = tool
	}
	return tools
}

// callTool runs tools/call with the given arguments.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolCallResponse {
	t.Helper()
	return callToolCtx(t, context.Background(), s, name, args)
}

func callToolCtx(t *testing.T, ctx context.Context, s *server.MCPServer, name string, args map[string]any) toolCallResponse {
	t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"params":  params,
		"id":      1,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(ctx, request))
	require.NoError(t, err)

	var response toolCallResponse
	require.NoError(t, json.Unmarshal(raw, &response))
	return response
}
