package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/llm"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

// maxRequestBytes bounds chat request bodies.
const maxRequestBytes = 1 << 20

// ============================================================================
// Request/Response Types
// ============================================================================

// SendMessageRequest for POST /api/chats/{chatId}/messages
type SendMessageRequest struct {
	Message      string               `json:"message"`
	History      []llm.Message        `json:"history,omitempty"`
	DataSettings *models.DataSettings `json:"dataSettings,omitempty"`
}

// EndChatResponse for DELETE /api/chats/{chatId}
type EndChatResponse struct {
	ChatID    string `json:"chat_id"`
	Cancelled bool   `json:"cancelled"`
}

// ChatAgent runs a model-driven chat turn.
type ChatAgent interface {
	Chat(ctx context.Context, req *llm.AgentRequest, events chan<- models.ChatEvent) error
}

// ============================================================================
// Handler
// ============================================================================

// ChatHandler serves the chart conversation endpoints over SSE.
type ChatHandler struct {
	answers       services.ChatAnswerService
	conversations *services.ConversationRegistry
	hub           *services.ChatHub
	agent         ChatAgent
	logger        *zap.Logger
}

// NewChatHandler creates a chat handler. agent may be nil when no model is
// configured; hub may be nil to disable the events endpoint.
func NewChatHandler(
	answers services.ChatAnswerService,
	conversations *services.ConversationRegistry,
	hub *services.ChatHub,
	agent ChatAgent,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		answers:       answers,
		conversations: conversations,
		hub:           hub,
		agent:         agent,
		logger:        logger.Named("chat-handler"),
	}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chats/{chatId}/answer", h.Answer)
	mux.HandleFunc("POST /api/chats/{chatId}/messages", h.SendMessage)
	mux.HandleFunc("GET /api/chats/{chatId}/events", h.Events)
	mux.HandleFunc("DELETE /api/chats/{chatId}", h.End)
}

// Answer handles POST /api/chats/{chatId}/answer. The body is a ChatAnswer;
// the response streams the preface, the chart and the tool result.
func (h *ChatHandler) Answer(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatId")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	answer, err := models.DecodeChatAnswer(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_answer", err.Error())
		return
	}

	flusher, ok := h.startSSE(w)
	if !ok {
		return
	}

	ctx, release := h.conversations.Begin(r.Context(), chatID)
	eventChan := make(chan models.ChatEvent, 16)

	go func() {
		defer close(eventChan)
		defer release()

		chat := &services.ChatContext{ChatID: chatID, Events: eventChan}
		text, err := h.answers.AnswerQuestion(ctx, chat, answer)
		if err != nil {
			h.logger.Info("Answer abandoned",
				zap.String("chat_id", chatID),
				zap.Error(err))
			return
		}
		eventChan <- models.NewToolResultEvent(llm.AnswerQuestionToolName, text)
		eventChan <- models.NewDoneEvent()
	}()

	h.stream(w, flusher, chatID, eventChan)
}

// SendMessage handles POST /api/chats/{chatId}/messages. The configured model
// answers the message, calling answerQuestion as needed.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatId")

	if h.agent == nil {
		h.writeError(w, http.StatusServiceUnavailable, "llm_unavailable", "No language model is configured")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "missing_message", "Message is required")
		return
	}

	flusher, ok := h.startSSE(w)
	if !ok {
		return
	}

	ctx, release := h.conversations.Begin(r.Context(), chatID)
	eventChan := make(chan models.ChatEvent, 100)

	go func() {
		defer close(eventChan)
		defer release()

		err := h.agent.Chat(ctx, &llm.AgentRequest{
			ChatID:       chatID,
			Message:      req.Message,
			History:      req.History,
			DataSettings: req.DataSettings,
		}, eventChan)
		switch {
		case errors.Is(err, apperrors.ErrInvocationAbandoned):
			h.logger.Info("Chat turn abandoned", zap.String("chat_id", chatID))
		case err != nil:
			h.logger.Error("Chat turn failed",
				zap.String("chat_id", chatID),
				zap.Error(err))
		}
	}()

	h.stream(w, flusher, chatID, eventChan)
}

// Events handles GET /api/chats/{chatId}/events, streaming every event
// published to the conversation until the client disconnects.
func (h *ChatHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Event subscriptions are disabled")
		return
	}
	chatID := r.PathValue("chatId")

	flusher, ok := h.startSSE(w)
	if !ok {
		return
	}

	events, cancel := h.hub.Subscribe(chatID)
	defer cancel()

	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, flusher, event); err != nil {
				h.logger.Debug("Subscriber went away", zap.String("chat_id", chatID), zap.Error(err))
				return
			}
		}
	}
}

// End handles DELETE /api/chats/{chatId}. In-flight invocations of the
// conversation are abandoned.
func (h *ChatHandler) End(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatId")
	cancelled := h.conversations.End(chatID)

	h.logger.Info("Conversation ended",
		zap.String("chat_id", chatID),
		zap.Bool("cancelled", cancelled))

	response := ApiResponse{Success: true, Data: EndChatResponse{ChatID: chatID, Cancelled: cancelled}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// startSSE sets the SSE headers. It writes an error response and returns
// false when the writer cannot stream.
func (h *ChatHandler) startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		h.writeError(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, true
}

// stream writes events until eventChan closes, forwarding each to the hub.
// It keeps draining after the client goes away so the producer never blocks.
func (h *ChatHandler) stream(w http.ResponseWriter, flusher http.Flusher, chatID string, eventChan <-chan models.ChatEvent) {
	gone := false
	for event := range eventChan {
		if h.hub != nil {
			h.hub.Publish(chatID, event)
		}
		if gone {
			continue
		}
		if err := writeEvent(w, flusher, event); err != nil {
			h.logger.Debug("Client went away", zap.String("chat_id", chatID), zap.Error(err))
			gone = true
		}
	}
}

func (h *ChatHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeEvent writes one SSE data frame.
func writeEvent(w io.Writer, flusher http.Flusher, event models.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
