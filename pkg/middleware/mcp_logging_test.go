package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func jsonResponder(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestMCPRequestLogger(t *testing.T) {
	t.Run("logs tool call with conversation", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		wrapped := MCPRequestLogger(zap.New(core))(
			jsonResponder(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"rows: 3"}]}}`))

		reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"answerQuestion","arguments":{"chatId":"chat-1","preface":"Revenue by day"}}}`
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(reqBody)))

		require.Equal(t, 2, logs.Len())

		request := logs.All()[0]
		assert.Equal(t, "MCP request", request.Message)
		assert.Equal(t, "tools/call", request.ContextMap()["method"])
		assert.Equal(t, "answerQuestion", request.ContextMap()["tool"])
		assert.Equal(t, "chat-1", request.ContextMap()["chat_id"])

		response := logs.All()[1]
		assert.Equal(t, "MCP response success", response.Message)
		assert.Equal(t, "chat-1", response.ContextMap()["chat_id"])
		assert.Contains(t, response.ContextMap(), "duration")
		assert.Contains(t, rec.Body.String(), "rows: 3", "body is forwarded unchanged")
	})

	t.Run("logs JSON-RPC errors", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		wrapped := MCPRequestLogger(zap.New(core))(
			jsonResponder(`{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"invocation abandoned"}}`))

		reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"answerQuestion","arguments":{"preface":"p"}}}`
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(reqBody)))

		require.Equal(t, 2, logs.Len())
		response := logs.All()[1]
		assert.Equal(t, "MCP response error", response.Message)
		assert.Equal(t, int64(-32603), response.ContextMap()["error_code"])
		assert.Equal(t, "invocation abandoned", response.ContextMap()["error_message"])
	})

	t.Run("non-tool methods omit the tool field", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		wrapped := MCPRequestLogger(zap.New(core))(jsonResponder(`{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`))

		wrapped.ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))

		request := logs.All()[0]
		assert.Equal(t, "tools/list", request.ContextMap()["method"])
		assert.NotContains(t, request.ContextMap(), "tool")
	})

	t.Run("streamed responses", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		wrapped := MCPRequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("event: message\ndata: {}\n\n"))
			w.(http.Flusher).Flush()
		}))

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"method":"tools/call"}`)))

		assert.True(t, rec.Flushed)
		assert.Equal(t, "MCP response streamed", logs.All()[1].Message)
	})

	t.Run("malformed request still reaches the server", func(t *testing.T) {
		core, _ := observer.New(zapcore.DebugLevel)
		var got string
		wrapped := MCPRequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := new(strings.Builder)
			_, _ = buf.ReadFrom(r.Body)
			got = buf.String()
			w.WriteHeader(http.StatusBadRequest)
		}))

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{invalid json`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, `{invalid json`, got)
	})

	t.Run("nil logger passes through", func(t *testing.T) {
		called := false
		wrapped := MCPRequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`)))
		assert.True(t, called)
	})
}

func TestSanitizeArguments(t *testing.T) {
	long := strings.Repeat("x", 250)

	result := sanitizeArguments(map[string]any{
		"password":     "secret",
		"Api_Key":      "abc123",
		"AccessToken":  "xyz789",
		"preface":      long,
		"chatId":       "chat-1",
		"limit":        42,
		"dataSettings": map[string]any{"dataSource": "sales", "client_secret": "hidden"},
	})

	assert.Equal(t, "[REDACTED]", result["password"])
	assert.Equal(t, "[REDACTED]", result["Api_Key"])
	assert.Equal(t, "[REDACTED]", result["AccessToken"])
	assert.Equal(t, long[:argPreviewLimit]+"...", result["preface"])
	assert.Equal(t, "chat-1", result["chatId"])
	assert.Equal(t, 42, result["limit"])

	nested := result["dataSettings"].(map[string]any)
	assert.Equal(t, "sales", nested["dataSource"])
	assert.Equal(t, "[REDACTED]", nested["client_secret"])

	assert.Nil(t, sanitizeArguments(nil))
	assert.Empty(t, sanitizeArguments(map[string]any{}))
}
