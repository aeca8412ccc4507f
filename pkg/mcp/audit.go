package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const previewLimit = 200

var (
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbi_mcp_tool_calls_total",
		Help: "MCP tool calls by tool and status.",
	}, []string{"tool", "status"})

	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatbi_mcp_tool_call_duration_seconds",
		Help:    "MCP tool call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
)

// Tool call statuses.
const (
	callStatusOK          = "ok"
	callStatusToolError   = "tool_error"
	callStatusServerError = "server_error"
)

// CallLog logs and counts MCP tool calls through mcp-go hooks.
type CallLog struct {
	startTimes sync.Map // request id -> time.Time
	logger     *zap.Logger
}

// NewCallLog creates a CallLog.
func NewCallLog(logger *zap.Logger) *CallLog {
	return &CallLog{logger: logger.Named("mcp-calls")}
}

// Hooks returns mcp-go Hooks that capture tool call events.
func (c *CallLog) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *CallLog) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
}

func (c *CallLog) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	elapsed := c.elapsed(id)

	status := callStatusOK
	if result != nil && result.IsError {
		status = callStatusToolError
	}
	c.observe(req.Params.Name, status, elapsed)

	c.logger.Info("Tool call completed",
		zap.String("tool", req.Params.Name),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed),
		zap.String("preview", resultPreview(result)),
	)
}

func (c *CallLog) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	elapsed := c.elapsed(id)
	c.observe(req.Params.Name, callStatusServerError, elapsed)

	c.logger.Warn("Tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}

func (c *CallLog) elapsed(id any) time.Duration {
	if v, ok := c.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

func (c *CallLog) observe(tool, status string, elapsed time.Duration) {
	toolCalls.WithLabelValues(tool, status).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// resultPreview returns the start of the first text content.
func resultPreview(result *mcplib.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		tc, ok := content.(mcplib.TextContent)
		if !ok {
			continue
		}
		if len(tc.Text) > previewLimit {
			return tc.Text[:previewLimit] + "...[truncated]"
		}
		return tc.Text
	}
	return ""
}
