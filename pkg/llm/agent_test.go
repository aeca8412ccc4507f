package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

type fakeResolver struct {
	et  *models.EntityType
	err error
}

func (r *fakeResolver) Resolve(ctx context.Context, settings models.DataSettings) (*models.EntityType, error) {
	return r.et, r.err
}

func ordersEntityType() *models.EntityType {
	return &models.EntityType{
		Name:    "orders",
		Caption: "Sales Orders",
		Table:   "public.orders",
		Dimensions: []*models.Dimension{
			{Name: "order_date", Caption: "Order Date", Semantic: models.DimensionSemanticTime},
		},
		Measures: []*models.Measure{
			{Name: "revenue", Caption: "Revenue"},
		},
	}
}

func TestChartAgent_ChatUsesDatasetDefaults(t *testing.T) {
	fake := &fakeOpenAI{scripts: [][]string{
		{toolChunk("call_1", AnswerQuestionToolName, `{"preface":"Revenue by day.","chartType":{"type":"Line"}}`)},
		{textChunk("Done.")},
	}}
	server := httptest.NewServer(fake)
	defer server.Close()

	answers := &fakeAnswerService{}
	et := ordersEntityType()
	agent := NewChartAgent(newTestClient(t, server), answers, &fakeResolver{et: et}, zap.NewNop())

	events := make(chan models.ChatEvent, 32)
	err := agent.Chat(context.Background(), &AgentRequest{
		ChatID:       "chat-5",
		Message:      "Show revenue by day",
		History:      []Message{{Role: RoleAssistant, Content: "Hi, what would you like to see?"}},
		DataSettings: &models.DataSettings{DataSource: "sales", EntitySet: "orders"},
	}, events)
	require.NoError(t, err)

	require.NotNil(t, answers.chat)
	assert.Equal(t, "chat-5", answers.chat.ChatID)
	assert.Same(t, et, answers.chat.DefaultEntityType)
	assert.Equal(t, "sales", answers.chat.DefaultDataSettings.DataSource)
	assert.Equal(t, "Revenue by day.", answers.answer.Preface)

	msgs := fake.bodies[0]["messages"].([]any)
	require.Len(t, msgs, 3)
	system := msgs[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "`orders` (Sales Orders)")
	assert.Equal(t, "user", msgs[2].(map[string]any)["role"])
	assert.Equal(t, "chat-5", fake.requestIDs[0])

	tools := fake.bodies[0]["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, AnswerQuestionToolName, fn["name"])
}

func TestChartAgent_UnknownDataset(t *testing.T) {
	fake := &fakeOpenAI{}
	server := httptest.NewServer(fake)
	defer server.Close()

	resolverErr := fmt.Errorf("%w: entity set nope", apperrors.ErrMetadataUnavailable)
	agent := NewChartAgent(newTestClient(t, server), &fakeAnswerService{}, &fakeResolver{err: resolverErr}, zap.NewNop())

	events := make(chan models.ChatEvent, 4)
	err := agent.Chat(context.Background(), &AgentRequest{
		ChatID:       "chat-6",
		Message:      "hi",
		DataSettings: &models.DataSettings{DataSource: "sales", EntitySet: "nope"},
	}, events)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMetadataUnavailable))

	published := collect(events)
	require.Len(t, published, 1)
	assert.Equal(t, models.ChatEventError, published[0].Type)
	assert.Contains(t, published[0].Content, "entity set nope")
	assert.Equal(t, 0, fake.requests, "no model call without a dataset")
}
