package llm

import (
	"context"
	"net/http"
)

type contextKey string

const chatIDKey contextKey = "llm_chat_id"

const requestIDHeader = "X-Request-Id"

// WithChatID tags outgoing LLM requests made with ctx with chatID.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// GetChatID returns the chat id attached by WithChatID.
func GetChatID(ctx context.Context) string {
	id, _ := ctx.Value(chatIDKey).(string)
	return id
}

// contextAwareTransport copies the chat id of the request context into the
// X-Request-Id header so provider logs can be correlated with a conversation.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := GetChatID(req.Context())
	if id == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(requestIDHeader, id)
	return t.base.RoundTrip(clone)
}
