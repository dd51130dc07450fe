package repository

import (
	"container/list"
	"context"
	"sync"
	"time"

	"chatbot-go/internal/model"
)

// SessionCache 保存每个对话最近的消息列表，按对话 ID 索引。
// 缓存永远不是权威数据源，未命中时由调用方从数据库重建。
type SessionCache interface {
	// Get 返回缓存的消息副本，第二个返回值表示是否命中。
	Get(ctx context.Context, conversationID string) ([]model.ChatTurn, bool, error)
	// Put 整体替换一个对话的缓存。
	Put(ctx context.Context, conversationID string, turns []model.ChatTurn) error
	// Append 追加一条消息。条目不存在时什么也不做。
	Append(ctx context.Context, conversationID string, turn model.ChatTurn) error
	Invalidate(ctx context.Context, conversationID string) error
}

// memorySessionCache 是进程内的 LRU 实现，可选空闲过期。
type memorySessionCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List
	items      map[string]*list.Element
	now        func() time.Time
}

type cacheEntry struct {
	key      string
	turns    []model.ChatTurn
	lastUsed time.Time
}

// NewMemorySessionCache 创建进程内缓存。maxEntries <= 0 表示不限条数，ttl 为 0 表示不过期。
func NewMemorySessionCache(maxEntries int, ttl time.Duration) SessionCache {
	return &memorySessionCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

func (c *memorySessionCache) Get(_ context.Context, conversationID string) ([]model.ChatTurn, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.lookup(conversationID)
	if !ok {
		return nil, false, nil
	}
	return cloneTurns(ent.turns), true, nil
}

func (c *memorySessionCache) Put(_ context.Context, conversationID string, turns []model.ChatTurn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[conversationID]; ok {
		ent := el.Value.(*cacheEntry)
		ent.turns = cloneTurns(turns)
		ent.lastUsed = c.now()
		c.ll.MoveToFront(el)
		return nil
	}
	el := c.ll.PushFront(&cacheEntry{key: conversationID, turns: cloneTurns(turns), lastUsed: c.now()})
	c.items[conversationID] = el
	for c.maxEntries > 0 && c.ll.Len() > c.maxEntries {
		c.removeElement(c.ll.Back())
	}
	return nil
}

func (c *memorySessionCache) Append(_ context.Context, conversationID string, turn model.ChatTurn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.lookup(conversationID)
	if !ok {
		return nil
	}
	ent.turns = append(ent.turns, turn)
	return nil
}

func (c *memorySessionCache) Invalidate(_ context.Context, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[conversationID]; ok {
		c.removeElement(el)
	}
	return nil
}

// lookup 命中时刷新最近使用时间，过期条目直接移除。调用方需持有锁。
func (c *memorySessionCache) lookup(key string) (*cacheEntry, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*cacheEntry)
	now := c.now()
	if c.ttl > 0 && now.Sub(ent.lastUsed) > c.ttl {
		c.removeElement(el)
		return nil, false
	}
	ent.lastUsed = now
	c.ll.MoveToFront(el)
	return ent, true
}

func (c *memorySessionCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}

func cloneTurns(turns []model.ChatTurn) []model.ChatTurn {
	out := make([]model.ChatTurn, len(turns))
	copy(out, turns)
	return out
}
