package services

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// DefaultSubscriberBuffer is the per-subscriber event backlog.
const DefaultSubscriberBuffer = 32

// ChatHub fans chat events out to the subscribers of a conversation.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type ChatHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]chan models.ChatEvent
	nextID      uint64
	buffer      int
	logger      *zap.Logger
}

// NewChatHub creates a hub. buffer <= 0 uses DefaultSubscriberBuffer.
func NewChatHub(buffer int, logger *zap.Logger) *ChatHub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &ChatHub{
		subscribers: make(map[string]map[uint64]chan models.ChatEvent),
		buffer:      buffer,
		logger:      logger.Named("chat-hub"),
	}
}

// Subscribe registers a subscriber for chatID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *ChatHub) Subscribe(chatID string) (<-chan models.ChatEvent, func()) {
	ch := make(chan models.ChatEvent, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	subs, ok := h.subscribers[chatID]
	if !ok {
		subs = make(map[uint64]chan models.ChatEvent)
		h.subscribers[chatID] = subs
	}
	subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subscribers[chatID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subscribers, chatID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers event to every current subscriber of chatID and reports
// how many received it.
func (h *ChatHub) Publish(chatID string, event models.ChatEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, ch := range h.subscribers[chatID] {
		select {
		case ch <- event:
			delivered++
		default:
			h.logger.Warn("Dropping event for slow subscriber",
				zap.String("chat_id", chatID),
				zap.Uint64("subscriber", id),
				zap.String("event_type", string(event.Type)),
			)
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers of chatID.
func (h *ChatHub) Subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[chatID])
}
