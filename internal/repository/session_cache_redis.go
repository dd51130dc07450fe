package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatbot-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisSessionTTL 是未配置 ttl 时 Redis 缓存的过期时间。
const DefaultRedisSessionTTL = 7 * 24 * time.Hour

// redisSessionCache 把每个对话存为 Redis list，每个元素是一条 JSON 编码的消息。
type redisSessionCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisSessionCache 创建基于 Redis 的会话缓存。
func NewRedisSessionCache(redisClient *redis.Client, ttl time.Duration) SessionCache {
	if ttl <= 0 {
		ttl = DefaultRedisSessionTTL
	}
	return &redisSessionCache{redisClient: redisClient, ttl: ttl}
}

func sessionKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

func (r *redisSessionCache) Get(ctx context.Context, conversationID string) ([]model.ChatTurn, bool, error) {
	key := sessionKey(conversationID)
	items, err := r.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get conversation history: %w", err)
	}
	if len(items) == 0 {
		return nil, false, nil
	}
	turns := make([]model.ChatTurn, 0, len(items))
	for _, item := range items {
		var turn model.ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal conversation history: %w", err)
		}
		turns = append(turns, turn)
	}
	// 命中即续期
	r.redisClient.Expire(ctx, key, r.ttl)
	return turns, true, nil
}

func (r *redisSessionCache) Put(ctx context.Context, conversationID string, turns []model.ChatTurn) error {
	key := sessionKey(conversationID)
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation history: %w", err)
		}
		values = append(values, data)
	}
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

func (r *redisSessionCache) Append(ctx context.Context, conversationID string, turn model.ChatTurn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation turn: %w", err)
	}
	key := sessionKey(conversationID)
	// RPUSHX 只在 key 已存在时追加，避免凭空生成只含部分消息的条目
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPushX(ctx, key, data)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation turn: %w", err)
	}
	return nil
}

func (r *redisSessionCache) Invalidate(ctx context.Context, conversationID string) error {
	if err := r.redisClient.Del(ctx, sessionKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation history: %w", err)
	}
	return nil
}
