package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	s := NewServer(ServerName, "1.0.0", zap.NewNop())

	require.NotNil(t, s)
	assert.Same(t, s.mcp, s.MCP())
	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func call(t *testing.T, s *Server, name string) map[string]any {
	t.Helper()
	request := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"` + name + `"},"id":1}`
	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(request)))
	require.NoError(t, err)

	var response map[string]any
	require.NoError(t, json.Unmarshal(raw, &response))
	return response
}

func TestServer_RegisterToolCountsCalls(t *testing.T) {
	s := NewServer(ServerName, "1.0.0", zap.NewNop())

	s.RegisterTool(mcplib.NewTool("echo_ok"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return mcplib.NewToolResultText("fine"), nil
	})
	s.RegisterTool(mcplib.NewTool("echo_fail"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return nil, errors.New("boom")
	})

	okBefore := testutil.ToFloat64(toolCalls.WithLabelValues("echo_ok", callStatusOK))
	failBefore := testutil.ToFloat64(toolCalls.WithLabelValues("echo_fail", callStatusServerError))

	resp := call(t, s, "echo_ok")
	assert.Contains(t, resp, "result")
	resp = call(t, s, "echo_fail")
	assert.Contains(t, resp, "error")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(toolCalls.WithLabelValues("echo_ok", callStatusOK)))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(toolCalls.WithLabelValues("echo_fail", callStatusServerError)))
}

func TestResultPreview(t *testing.T) {
	assert.Equal(t, "", resultPreview(nil))
	assert.Equal(t, "short", resultPreview(mcplib.NewToolResultText("short")))

	long := resultPreview(mcplib.NewToolResultText(strings.Repeat("x", 500)))
	assert.True(t, strings.HasSuffix(long, "...[truncated]"))
	assert.Len(t, long, previewLimit+len("...[truncated]"))
}
