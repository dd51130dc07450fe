package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chatbot-go/internal/model"
	"chatbot-go/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func createUser(t *testing.T, repo UserRepository, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", Password: "hash", IsActive: true}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestUserRepository_UniqueUsername(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	alice := createUser(t, repo, "alice")
	err := repo.Create(ctx, &model.User{Username: "alice", Email: "other@example.com", Password: "x"})
	assert.Error(t, err)

	found, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)
	assert.Equal(t, "alice@example.com", found.Email)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestConversationRepository_AppendAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	user := createUser(t, NewUserRepository(db), "bob")
	repo := NewConversationRepository(db)

	conv := &model.Conversation{ConversationID: "c1", UserID: user.ID}
	require.NoError(t, repo.CreateWithSystemMessage(ctx, conv, "be nice"))
	assert.Equal(t, model.DefaultConversationTitle, conv.Title)

	_, err := repo.AppendMessage(ctx, conv, model.RoleUser, "hi")
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, conv, model.RoleAssistant, "hello")
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Equal(t, "be nice", msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, "hello", msgs[2].Content)

	// 重复的 conversation_id 会被唯一索引拒绝
	err = repo.CreateWithSystemMessage(ctx, &model.Conversation{ConversationID: "c1", UserID: user.ID}, "x")
	assert.Error(t, err)
}

func TestConversationRepository_ListByUserOrdersByUpdatedAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	carol := createUser(t, users, "carol")
	dave := createUser(t, users, "dave")

	repo := NewConversationRepository(db).(*gormConversationRepository)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	first := &model.Conversation{ConversationID: "first", UserID: carol.ID}
	second := &model.Conversation{ConversationID: "second", UserID: carol.ID}
	require.NoError(t, repo.CreateWithSystemMessage(ctx, first, "p"))
	require.NoError(t, repo.CreateWithSystemMessage(ctx, second, "p"))
	require.NoError(t, repo.CreateWithSystemMessage(ctx, &model.Conversation{ConversationID: "other", UserID: dave.ID}, "p"))

	// first 最近有新消息，应排在前面
	_, err := repo.AppendMessage(ctx, second, model.RoleUser, "a")
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, first, model.RoleUser, "b")
	require.NoError(t, err)

	convs, err := repo.ListByUser(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "first", convs[0].ConversationID)
	assert.Equal(t, "second", convs[1].ConversationID)
}

func TestConversationRepository_DeleteCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	user := createUser(t, NewUserRepository(db), "erin")
	repo := NewConversationRepository(db)

	conv := &model.Conversation{ConversationID: "gone", UserID: user.ID}
	require.NoError(t, repo.CreateWithSystemMessage(ctx, conv, "p"))
	_, err := repo.AppendMessage(ctx, conv, model.RoleUser, "bye")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, conv.ID))

	_, err = repo.FindByConversationID(ctx, "gone")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var count int64
	require.NoError(t, db.Model(&model.Message{}).Where("conversation_id = ?", conv.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.ErrorIs(t, repo.Delete(ctx, conv.ID), gorm.ErrRecordNotFound)
}

func TestConversationRepository_UpdateTitle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	user := createUser(t, NewUserRepository(db), "frank")
	repo := NewConversationRepository(db)

	conv := &model.Conversation{ConversationID: "t", UserID: user.ID}
	require.NoError(t, repo.CreateWithSystemMessage(ctx, conv, "p"))
	require.NoError(t, repo.UpdateTitle(ctx, conv.ID, "Renamed"))

	got, err := repo.FindByConversationID(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, got.IsActive)
}
