// Package pipeline 定义了消息事件的异步处理流程。
package pipeline

import (
	"context"
	"fmt"

	"chatbot-go/internal/model"
	"chatbot-go/pkg/log"
	"chatbot-go/pkg/tasks"
)

// MessageIndexer 是写入历史搜索索引的能力，由 es.MessageIndex 实现。
type MessageIndexer interface {
	IndexMessage(ctx context.Context, doc model.MessageDocument) error
}

// Processor 把消息事件写入搜索索引。未配置索引时所有事件被丢弃。
type Processor struct {
	indexer MessageIndexer
}

// NewProcessor 创建一个新的 Processor 实例。indexer 可以为 nil。
func NewProcessor(indexer MessageIndexer) *Processor {
	return &Processor{indexer: indexer}
}

// Process 处理单个事件，供 Kafka 消费者或直接发布调用。
func (p *Processor) Process(ctx context.Context, event tasks.MessageEvent) error {
	if p.indexer == nil {
		return nil
	}
	role, err := model.ParseRole(event.Role)
	if err != nil {
		return fmt.Errorf("事件 %s: %w", event.EventID, err)
	}
	// system 消息不参与检索
	if role == model.RoleSystem {
		return nil
	}

	doc := model.MessageDocument{
		EventID:        event.EventID,
		ConversationID: event.ConversationID,
		UserID:         event.UserID,
		Role:           role,
		Content:        event.Content,
		Timestamp:      event.Timestamp,
	}
	if err := p.indexer.IndexMessage(ctx, doc); err != nil {
		return fmt.Errorf("索引消息失败: %w", err)
	}
	log.Infof("[Processor] 已索引消息, conversation: %s, event: %s", event.ConversationID, event.EventID)
	return nil
}
