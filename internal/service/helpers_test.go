package service

import (
	"context"
	"path/filepath"
	"testing"

	"chatbot-go/internal/model"
	"chatbot-go/internal/repository"
	"chatbot-go/pkg/database"
	"chatbot-go/pkg/hash"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPrompt = "You are a test assistant."

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	pw, err := hash.HashPassword("pw123")
	require.NoError(t, err)
	u := &model.User{Username: username, Email: username + "@example.com", Password: pw, IsActive: true}
	require.NoError(t, repository.NewUserRepository(db).Create(context.Background(), u))
	return u
}

func countMessages(t *testing.T, db *gorm.DB, role model.Role) int64 {
	t.Helper()
	var n int64
	q := db.Model(&model.Message{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
