package api

import (
	"context"
	"fmt"
)

// Principal 已鉴权用户（注入到 context）
type Principal struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type principalContextKey struct{}

// WithPrincipal 注入 Principal 到 context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFrom 从 context 提取 Principal
func PrincipalFrom(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || p == nil {
		return nil, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// MustPrincipalFrom 从 context 提取 Principal，panic if missing（仅用于已鉴权路由）
func MustPrincipalFrom(ctx context.Context) *Principal {
	p, err := PrincipalFrom(ctx)
	if err != nil {
		panic("principal missing from context: middleware not applied?")
	}
	return p
}

// principalUserID 匿名请求返回 0
func principalUserID(ctx context.Context) int64 {
	if p, err := PrincipalFrom(ctx); err == nil {
		return p.UserID
	}
	return 0
}
