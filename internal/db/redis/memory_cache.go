package redisdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
)

// MemoryCache 为 MemoryStore 的 active 记忆列表加一层 Redis 读穿缓存。
// 写操作先落库，再删除受影响会话的缓存。
type MemoryCache struct {
	port.MemoryStore
	rds *redis.Client
	ttl time.Duration
}

var _ port.MemoryStore = (*MemoryCache)(nil)

// NewMemoryCache 包装 MemoryStore，ttlSeconds <= 0 时默认 30 分钟
func NewMemoryCache(store port.MemoryStore, rds *redis.Client, ttlSeconds int) *MemoryCache {
	ttl := 30 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	applog.Info("[Memory/Cache] Initialized", "cache_ttl", ttl)
	return &MemoryCache{MemoryStore: store, rds: rds, ttl: ttl}
}

// ActiveKey 会话 active 记忆缓存键
func ActiveKey(sessionID int64) string {
	return fmt.Sprintf("memory:active:v1:%d", sessionID)
}

// ListActiveMemories 先查 Redis，miss 则查库并回填
func (c *MemoryCache) ListActiveMemories(ctx context.Context, sessionID int64) ([]*port.Memory, error) {
	key := ActiveKey(sessionID)
	cached, err := c.rds.Get(ctx, key).Bytes()
	if err == nil {
		var mems []*port.Memory
		if json.Unmarshal(cached, &mems) == nil {
			applog.Debug("[Memory/Cache] 🎯 Cache HIT", "session_id", sessionID, "count", len(mems))
			return mems, nil
		}
		applog.Warn("[Memory/Cache] Cache data corrupted, falling through to store", "session_id", sessionID)
	} else if err != redis.Nil {
		applog.Warn("[Memory/Cache] Redis read failed", "session_id", sessionID, "error", err)
	}

	mems, err := c.MemoryStore.ListActiveMemories(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, mems)
	return mems, nil
}

func (c *MemoryCache) fill(ctx context.Context, key string, mems []*port.Memory) {
	data, err := json.Marshal(mems)
	if err != nil {
		return
	}
	if err := c.rds.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[Memory/Cache] Failed to set cache", "key", key, "error", err)
	}
}

func (c *MemoryCache) invalidate(ctx context.Context, sessionIDs ...int64) {
	keys := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		keys = append(keys, ActiveKey(id))
	}
	if err := c.rds.Del(ctx, keys...).Err(); err != nil {
		applog.Warn("[Memory/Cache] Failed to invalidate cache", "keys", keys, "error", err)
	}
}

func (c *MemoryCache) CreateMemory(ctx context.Context, m *port.Memory) error {
	if err := c.MemoryStore.CreateMemory(ctx, m); err != nil {
		return err
	}
	c.invalidate(ctx, m.SessionID)
	return nil
}

// UpdateMemory session_id 可能被修改，新旧会话都失效
func (c *MemoryCache) UpdateMemory(ctx context.Context, id int64, patch port.MemoryPatch) (*port.Memory, error) {
	before, err := c.MemoryStore.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := c.MemoryStore.UpdateMemory(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if before != nil && before.SessionID != updated.SessionID {
		c.invalidate(ctx, before.SessionID, updated.SessionID)
	} else {
		c.invalidate(ctx, updated.SessionID)
	}
	return updated, nil
}

func (c *MemoryCache) DeleteMemory(ctx context.Context, id int64) (*port.Memory, error) {
	deleted, err := c.MemoryStore.DeleteMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, deleted.SessionID)
	return deleted, nil
}
