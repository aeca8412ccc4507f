package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/mcp"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

func newTestMCPMux(t *testing.T, version string) *http.ServeMux {
	t.Helper()
	logger := zap.NewNop()
	mcpServer := mcp.NewServer("test", version, logger)
	conversations := services.NewConversationRegistry(logger)
	tools.RegisterHealthTool(mcpServer.MCP(), version, conversations)
	tools.RegisterAnswerTool(mcpServer.MCP(), &tools.AnswerToolDeps{
		Answers:       &mockAnswerService{},
		Conversations: conversations,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)
	return mux
}

func postMCP(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMCPHandler_ToolsList(t *testing.T) {
	mux := newTestMCPMux(t, "1.0.0")

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Result  struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.JSONRPC != "2.0" || response.ID != 1 {
		t.Errorf("unexpected envelope: %+v", response)
	}

	names := map[string]bool{}
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"health", "answerQuestion"} {
		if !names[want] {
			t.Errorf("expected tool %q in %v", want, names)
		}
	}
}

func TestMCPHandler_HealthCall(t *testing.T) {
	mux := newTestMCPMux(t, "test-version")

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"},"id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Result.Content) == 0 {
		t.Fatal("expected content in response")
	}

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal([]byte(response.Result.Content[0].Text), &health); err != nil {
		t.Fatalf("failed to unmarshal health result: %v", err)
	}
	if health.Status != "ok" || health.Version != "test-version" {
		t.Errorf("unexpected health result: %+v", health)
	}
}

func TestMCPHandler_AnswerCall(t *testing.T) {
	mux := newTestMCPMux(t, "1.0.0")

	body := `{"jsonrpc":"2.0","method":"tools/call","id":2,"params":{"name":"answerQuestion","arguments":` +
		`{"chatId":"chat-1","preface":"Revenue by day","dataSettings":{"dataSource":"sales","entitySet":"orders"},` +
		`"chartType":{"type":"Line"},"dimensions":[{"dimension":"order_date"}],"measures":[{"measure":"revenue"}]}}}`
	rec := postMCP(mux, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Result.Content) != 2 {
		t.Fatalf("expected summary and chart content, got %d items", len(response.Result.Content))
	}
	if response.Result.Content[0].Text != "First 1 of 1 rows" {
		t.Errorf("unexpected summary %q", response.Result.Content[0].Text)
	}
	if !strings.Contains(response.Result.Content[1].Text, `"interactive"`) {
		t.Errorf("expected interactive event, got %s", response.Result.Content[1].Text)
	}
}

func TestMCPHandler_RejectsNonPOST(t *testing.T) {
	mux := newTestMCPMux(t, "1.0.0")

	for _, method := range []string{http.MethodGet, http.MethodDelete, http.MethodPut} {
		req := httptest.NewRequest(method, "/mcp", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s /mcp: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
			t.Errorf("%s /mcp: expected Allow POST, got %q", method, allow)
		}
	}
}

func TestRegisterMetricsRoute(t *testing.T) {
	mux := http.NewServeMux()
	RegisterMetricsRoute(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default collectors in the exposition")
	}
}
