package memory

import (
	"context"
	"fmt"
)

// SummaryLock 摘要去重锁。同一会话同一窗口边界只允许一个请求生成记忆。
type SummaryLock interface {
	// Acquire 获取锁，已被持有时返回 false
	Acquire(ctx context.Context, key string) (bool, error)
	// Release 释放锁
	Release(ctx context.Context, key string) error
}

// BoundaryKey 会话 + 消息数确定一个窗口边界
func BoundaryKey(sessionID int64, total int) string {
	return fmt.Sprintf("%d:%d", sessionID, total)
}

// noopLock 未配置 Redis 时使用，总是获取成功
type noopLock struct{}

func (noopLock) Acquire(ctx context.Context, key string) (bool, error) { return true, nil }
func (noopLock) Release(ctx context.Context, key string) error         { return nil }
