package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ConversationRegistry tracks the conversations with invocations in flight so
// that ending a conversation cancels them.
type ConversationRegistry struct {
	mu            sync.Mutex
	conversations map[string]*conversation
	logger        *zap.Logger
}

type conversation struct {
	ctx    context.Context
	cancel context.CancelFunc
	active int
}

// NewConversationRegistry creates an empty registry.
func NewConversationRegistry(logger *zap.Logger) *ConversationRegistry {
	return &ConversationRegistry{
		conversations: make(map[string]*conversation),
		logger:        logger.Named("conversations"),
	}
}

// Begin derives the context of one invocation in chatID. It is cancelled when
// parent ends, when End(chatID) is called or when release runs; release must
// always be called.
func (r *ConversationRegistry) Begin(parent context.Context, chatID string) (ctx context.Context, release func()) {
	r.mu.Lock()
	conv, ok := r.conversations[chatID]
	if !ok {
		convCtx, cancel := context.WithCancel(context.Background())
		conv = &conversation{ctx: convCtx, cancel: cancel}
		r.conversations[chatID] = conv
	}
	conv.active++
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(conv.ctx, cancel)

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			stop()
			cancel()
			r.release(chatID, conv)
		})
	}
}

func (r *ConversationRegistry) release(chatID string, conv *conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv.active--
	if conv.active == 0 && r.conversations[chatID] == conv {
		conv.cancel()
		delete(r.conversations, chatID)
	}
}

// End tears down a conversation, cancelling its in-flight invocations.
// Returns false when nothing was in flight.
func (r *ConversationRegistry) End(chatID string) bool {
	r.mu.Lock()
	conv, ok := r.conversations[chatID]
	if ok {
		delete(r.conversations, chatID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	conv.cancel()
	r.logger.Info("Conversation ended", zap.String("chat_id", chatID))
	return true
}

// Active returns the number of conversations with invocations in flight.
func (r *ConversationRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}
