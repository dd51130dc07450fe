// Package tasks defines the structure for events that are sent to Kafka.
package tasks

import "time"

// MessageEvent 表示一条已追加到对话中的消息，用于异步建立历史搜索索引。
type MessageEvent struct {
	EventID        string    `json:"event_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}
