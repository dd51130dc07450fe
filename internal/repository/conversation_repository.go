// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"time"

	"chatbot-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了对话及其消息的持久化操作。
// 所有写操作都在单个事务内完成。未找到记录时返回 gorm.ErrRecordNotFound。
type ConversationRepository interface {
	FindByConversationID(ctx context.Context, conversationID string) (*model.Conversation, error)
	// CreateWithSystemMessage 在同一事务中创建对话和它的 system 消息。
	CreateWithSystemMessage(ctx context.Context, conv *model.Conversation, systemPrompt string) error
	// AppendMessage 插入一条消息并刷新对话的 updated_at。
	AppendMessage(ctx context.Context, conv *model.Conversation, role model.Role, content string) (*model.Message, error)
	ListMessages(ctx context.Context, convPK uint) ([]model.Message, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Conversation, error)
	UpdateTitle(ctx context.Context, convPK uint, title string) error
	Delete(ctx context.Context, convPK uint) error
	FindAll(ctx context.Context) ([]model.Conversation, error)

	// 以下用于维护 system 消息不变式。
	UpdateMessageContent(ctx context.Context, messageID uint, content string) error
	InsertMessage(ctx context.Context, msg *model.Message) error
	DeleteMessages(ctx context.Context, messageIDs []uint) error
}

type gormConversationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *gormConversationRepository) FindByConversationID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *gormConversationRepository) CreateWithSystemMessage(ctx context.Context, conv *model.Conversation, systemPrompt string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if conv.Title == "" {
			conv.Title = model.DefaultConversationTitle
		}
		conv.IsActive = true
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		msg := model.Message{
			ConversationID: conv.ID,
			Role:           model.RoleSystem,
			Content:        systemPrompt,
			Timestamp:      r.now(),
		}
		return tx.Create(&msg).Error
	})
}

func (r *gormConversationRepository) AppendMessage(ctx context.Context, conv *model.Conversation, role model.Role, content string) (*model.Message, error) {
	now := r.now()
	msg := &model.Message{
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		Timestamp:      now,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	conv.UpdatedAt = now
	return msg, nil
}

// ListMessages 按时间升序返回全部消息，时间相同时按 id 排序。
func (r *gormConversationRepository) ListMessages(ctx context.Context, convPK uint) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convPK).
		Order("timestamp ASC").Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// ListByUser 按 updated_at 倒序返回用户的对话。
func (r *gormConversationRepository) ListByUser(ctx context.Context, userID uint) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").Order("id DESC").
		Find(&convs).Error
	return convs, err
}

func (r *gormConversationRepository) UpdateTitle(ctx context.Context, convPK uint, title string) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", convPK).Update("title", title).Error
}

// Delete 删除对话及其全部消息。外键级联之外也显式删除消息，不依赖数据库是否开启外键约束。
func (r *gormConversationRepository) Delete(ctx context.Context, convPK uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convPK).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Conversation{}, convPK)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *gormConversationRepository) FindAll(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).Order("id ASC").Find(&convs).Error
	return convs, err
}

func (r *gormConversationRepository) UpdateMessageContent(ctx context.Context, messageID uint, content string) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", messageID).Update("content", content).Error
}

func (r *gormConversationRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *gormConversationRepository) DeleteMessages(ctx context.Context, messageIDs []uint) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", messageIDs).Delete(&model.Message{}).Error
}
