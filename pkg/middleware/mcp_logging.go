package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// argPreviewLimit caps logged string arguments.
const argPreviewLimit = 200

var sensitiveKeywords = []string{"password", "secret", "token", "key", "credential"}

// MCPRequestLogger returns middleware that logs MCP JSON-RPC traffic at DEBUG
// level: the method, the tool, the conversation and the outcome. Tool
// arguments are logged with secrets redacted. Pass nil to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var req rpcRequest
			if err := json.Unmarshal(body, &req); err != nil {
				logger.Debug("Unparseable MCP request", zap.Error(err))
			}

			fields := []zap.Field{zap.String("method", req.Method)}
			if req.Params.Name != "" {
				fields = append(fields, zap.String("tool", req.Params.Name))
			}
			if chatID, ok := req.Params.Arguments["chatId"].(string); ok {
				fields = append(fields, zap.String("chat_id", chatID))
			}
			logger.Debug("MCP request", append(fields, zap.Any("arguments", sanitizeArguments(req.Params.Arguments)))...)

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			fields = append(fields, zap.Duration("duration", time.Since(start)))

			var resp rpcResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &resp); err != nil {
				// Streamed responses are SSE frames rather than one JSON document.
				logger.Debug("MCP response streamed", fields...)
				return
			}
			if resp.Error != nil {
				logger.Debug("MCP response error", append(fields,
					zap.Int("error_code", resp.Error.Code),
					zap.String("error_message", resp.Error.Message))...)
				return
			}
			logger.Debug("MCP response success", fields...)
		})
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mcpResponseRecorder tees the response body into a buffer.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *mcpResponseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// sanitizeArguments redacts sensitive keys and truncates long strings. Nested
// objects such as dataSettings are sanitized too.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			result[k] = "[REDACTED]"
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) > argPreviewLimit {
				val = val[:argPreviewLimit] + "..."
			}
			result[k] = val
		case map[string]any:
			result[k] = sanitizeArguments(val)
		default:
			result[k] = v
		}
	}
	return result
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
