// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatbot-go/internal/config"
	"chatbot-go/internal/model"
	"chatbot-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// MessageIndex 封装聊天消息索引的读写。
type MessageIndex struct {
	client *elasticsearch.Client
	name   string
}

// InitES 初始化 Elasticsearch 客户端并确保索引存在。
func InitES(esCfg config.ElasticsearchConfig) (*MessageIndex, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	})
	if err != nil {
		return nil, err
	}
	idx := NewMessageIndex(client, esCfg.IndexName)
	if err := idx.createIndexIfNotExists(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}

func NewMessageIndex(client *elasticsearch.Client, name string) *MessageIndex {
	return &MessageIndex{client: client, name: name}
}

const messageMapping = `{
	"mappings": {
		"properties": {
			"event_id":        { "type": "keyword" },
			"conversation_id": { "type": "keyword" },
			"user_id":         { "type": "long" },
			"role":            { "type": "keyword" },
			"content":         { "type": "text" },
			"timestamp":       { "type": "date" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (i *MessageIndex) createIndexIfNotExists(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.name}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.name)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = i.client.Indices.Create(
		i.name,
		i.client.Indices.Create.WithBody(strings.NewReader(messageMapping)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", i.name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.name, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", i.name)
	return nil
}

// IndexMessage 将单条消息写入索引。以 event_id 作为文档 ID，重复投递是幂等的。
func (i *MessageIndex) IndexMessage(ctx context.Context, doc model.MessageDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.name,
		DocumentID: doc.EventID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64               `json:"_score"`
			Source model.MessageDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchMessages 在指定用户的消息中做全文检索，不返回 system 消息。
func (i *MessageIndex) SearchMessages(ctx context.Context, userID uint, query string, size int) ([]model.SearchHit, error) {
	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"match": map[string]any{"content": query}},
				},
				"filter": []any{
					map[string]any{"term": map[string]any{"user_id": userID}},
				},
				"must_not": []any{
					map[string]any{"term": map[string]any{"role": string(model.RoleSystem)}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]model.SearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, model.SearchHit{
			ConversationID: h.Source.ConversationID,
			Role:           h.Source.Role,
			Content:        h.Source.Content,
			Timestamp:      model.LocalTime(h.Source.Timestamp.UTC().Truncate(time.Second)),
			Score:          h.Score,
		})
	}
	return hits, nil
}

// DeleteConversation 删除一个对话的全部消息文档。
func (i *MessageIndex) DeleteConversation(ctx context.Context, conversationID string) error {
	body := fmt.Sprintf(`{"query":{"term":{"conversation_id":%q}}}`, conversationID)
	res, err := i.client.DeleteByQuery(
		[]string{i.name},
		strings.NewReader(body),
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch delete_by_query error: %s", res.String())
	}
	return nil
}
