package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatbot-go/internal/model"
	"chatbot-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexerFunc func(ctx context.Context, doc model.MessageDocument) error

func (f indexerFunc) IndexMessage(ctx context.Context, doc model.MessageDocument) error { return f(ctx, doc) }

func TestProcessor_IndexesUserAndAssistantTurns(t *testing.T) {
	t.Parallel()

	var docs []model.MessageDocument
	p := NewProcessor(indexerFunc(func(_ context.Context, doc model.MessageDocument) error {
		docs = append(docs, doc)
		return nil
	}))

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, p.Process(ctx, tasks.MessageEvent{EventID: "1", ConversationID: "c", UserID: 3, Role: "user", Content: "hi", Timestamp: now}))
	require.NoError(t, p.Process(ctx, tasks.MessageEvent{EventID: "2", ConversationID: "c", UserID: 3, Role: "system", Content: "p", Timestamp: now}))

	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].EventID)
	assert.Equal(t, model.RoleUser, docs[0].Role)
	assert.Equal(t, uint(3), docs[0].UserID)
}

func TestProcessor_Errors(t *testing.T) {
	t.Parallel()

	p := NewProcessor(indexerFunc(func(context.Context, model.MessageDocument) error { return errors.New("es down") }))
	assert.Error(t, p.Process(context.Background(), tasks.MessageEvent{Role: "user"}))
	assert.Error(t, p.Process(context.Background(), tasks.MessageEvent{Role: "robot"}))
}

func TestProcessor_NoIndexerIsNoop(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewProcessor(nil).Process(context.Background(), tasks.MessageEvent{Role: "user"}))
}
