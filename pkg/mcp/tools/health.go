package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

type healthResult struct {
	Status              string `json:"status"`
	Version             string `json:"version"`
	ActiveConversations int    `json:"active_conversations"`
}

// RegisterHealthTool adds a health check tool reporting the server version and
// the number of conversations with an invocation in flight.
func RegisterHealthTool(s *server.MCPServer, version string, conversations *services.ConversationRegistry) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := healthResult{Status: "ok", Version: version}
		if conversations != nil {
			res.ActiveConversations = conversations.Active()
		}
		result, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
