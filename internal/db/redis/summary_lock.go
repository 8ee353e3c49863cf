package redisdb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	applog "rolechat/internal/platform/log"
)

const summaryLockPrefix = "memory:summary:lock:"

// SummaryLock 基于 Redis SETNX 的摘要去重锁。
// 成功生成后不释放，由 TTL 过期，同一窗口边界不会被再次摘要。
type SummaryLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryLock 创建摘要锁，ttlSeconds <= 0 时默认 120 秒
func NewSummaryLock(client *redis.Client, ttlSeconds int) *SummaryLock {
	ttl := 120 * time.Second
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &SummaryLock{client: client, ttl: ttl}
}

// Acquire 获取锁
func (l *SummaryLock) Acquire(ctx context.Context, key string) (bool, error) {
	acquired, err := l.client.SetNX(ctx, summaryLockPrefix+key, "locked", l.ttl).Result()
	if err != nil {
		applog.Warn("[SummaryLock] Failed to acquire lock", "key", key, "error", err)
		return false, err
	}

	if acquired {
		applog.Debug("[SummaryLock] Lock acquired", "key", key)
	} else {
		applog.Debug("[SummaryLock] Lock already held", "key", key)
	}
	return acquired, nil
}

// Release 释放锁
func (l *SummaryLock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, summaryLockPrefix+key).Err(); err != nil {
		applog.Warn("[SummaryLock] Failed to release lock", "key", key, "error", err)
		return err
	}
	applog.Debug("[SummaryLock] Lock released", "key", key)
	return nil
}
