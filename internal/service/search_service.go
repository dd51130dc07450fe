package service

import (
	"context"
	"strings"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/model"
	"chatbot-go/pkg/log"
)

// defaultSearchSize 是历史搜索返回的最大条数。
const defaultSearchSize = 20

// HistoryIndex 是聊天历史的全文索引，由 es.MessageIndex 实现。
type HistoryIndex interface {
	SearchMessages(ctx context.Context, userID uint, query string, size int) ([]model.SearchHit, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// SearchService 定义了历史消息搜索的业务逻辑。
type SearchService interface {
	SearchHistory(ctx context.Context, user *model.User, query string) ([]model.SearchHit, error)
}

type searchService struct {
	index HistoryIndex
}

// NewSearchService 创建一个新的 SearchService 实例。index 为 nil 时搜索不可用。
func NewSearchService(index HistoryIndex) SearchService {
	return &searchService{index: index}
}

func (s *searchService) SearchHistory(ctx context.Context, user *model.User, query string) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.BadRequest, "Query must not be empty")
	}
	if s.index == nil {
		return nil, apperr.New(apperr.ProviderUnavailable, "History search is not configured")
	}
	hits, err := s.index.SearchMessages(ctx, user.ID, query, defaultSearchSize)
	if err != nil {
		log.Errorf("[SearchService] 搜索失败, user: %d, query: %s, error: %v", user.ID, query, err)
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "History search unavailable", err)
	}
	return hits, nil
}
