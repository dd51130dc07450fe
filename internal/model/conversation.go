// Package model 包含了应用的数据模型定义。
package model

import (
	"fmt"
	"time"
)

// Role 是消息发送方，只能是 system、user 或 assistant。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 判断是否为三种合法角色之一。
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole 把字符串解析为 Role。
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// DefaultConversationTitle 是新建对话的占位标题，首轮对话后会被覆盖。
const DefaultConversationTitle = "New Conversation"

// Conversation 对应 conversations 表，拥有按时间排序的消息。
type Conversation struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ConversationID string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"conversation_id"`
	Title          string    `gorm:"type:varchar(255);not null;default:'New Conversation'" json:"title"`
	UserID         uint      `gorm:"index;not null" json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 对应 messages 表。ConversationID 指向 conversations.id（数值主键）。
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ConversationID uint      `gorm:"index;not null" json:"-"`
	Role           Role      `gorm:"type:varchar(20);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
}

func (Message) TableName() string {
	return "messages"
}

// ChatTurn 是会话缓存和 LLM 调用使用的轻量消息。
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn 把持久化消息转换为 ChatTurn。
func (m Message) Turn() ChatTurn {
	return ChatTurn{Role: m.Role, Content: m.Content}
}

// ConversationSummary 是对话列表返回的结构。
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	CreatedAt      LocalTime `json:"created_at"`
	UpdatedAt      LocalTime `json:"updated_at"`
}

// Summary 返回对话列表项。
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ConversationID: c.ConversationID,
		Title:          c.Title,
		CreatedAt:      LocalTime(c.CreatedAt),
		UpdatedAt:      LocalTime(c.UpdatedAt),
	}
}

// MessageView 是消息列表返回的结构。
type MessageView struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp LocalTime `json:"timestamp"`
}

// View 返回消息的对外结构。
func (m Message) View() MessageView {
	return MessageView{Role: m.Role, Content: m.Content, Timestamp: LocalTime(m.Timestamp)}
}
