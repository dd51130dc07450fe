package model

import "time"

// MessageDocument 是写入 Elasticsearch 的聊天消息文档。
type MessageDocument struct {
	EventID        string    `json:"event_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// SearchHit 定义了返回给前端的历史搜索结果。
type SearchHit struct {
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      LocalTime `json:"timestamp"`
	Score          float64   `json:"score"`
}
