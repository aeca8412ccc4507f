package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

func TestChatHub_PublishFansOutPerChat(t *testing.T) {
	hub := NewChatHub(4, zap.NewNop())

	a, cancelA := hub.Subscribe("chat-1")
	defer cancelA()
	b, cancelB := hub.Subscribe("chat-1")
	defer cancelB()
	other, cancelOther := hub.Subscribe("chat-2")
	defer cancelOther()

	assert.Equal(t, 2, hub.Publish("chat-1", models.NewTextEvent("hello")))

	assert.Equal(t, "hello", (<-a).Content)
	assert.Equal(t, "hello", (<-b).Content)
	assert.Empty(t, other)
}

func TestChatHub_SlowSubscriberMissesEvents(t *testing.T) {
	hub := NewChatHub(1, zap.NewNop())

	ch, cancel := hub.Subscribe("chat-1")
	defer cancel()

	assert.Equal(t, 1, hub.Publish("chat-1", models.NewTextEvent("first")))
	assert.Equal(t, 0, hub.Publish("chat-1", models.NewTextEvent("second")))

	assert.Equal(t, "first", (<-ch).Content)
}

func TestChatHub_CancelClosesAndForgets(t *testing.T) {
	hub := NewChatHub(0, zap.NewNop())

	ch, cancel := hub.Subscribe("chat-1")
	require.Equal(t, 1, hub.Subscribers("chat-1"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("chat-1"))
	assert.Equal(t, 0, hub.Publish("chat-1", models.NewDoneEvent()))
}
