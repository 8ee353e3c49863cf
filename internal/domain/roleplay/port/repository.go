package port

import "context"

// 约定：Get* 在记录不存在时返回 (nil, nil)；
// 写操作引用的记录不存在时返回 ErrNotFound。

// ConversationStore 按会话追加的消息日志
type ConversationStore interface {
	// AppendMessage 追加一条消息，会话不存在返回 ErrNotFound
	AppendMessage(ctx context.Context, sessionID int64, sender Sender, text string) (*ChatMessage, error)
	// AppendTurn 在同一事务中追加 user + assistant 两条消息
	AppendTurn(ctx context.Context, sessionID int64, userText, assistantText string) (*ChatMessage, *ChatMessage, error)
	// RecentMessages 最近 limit 条消息，按新到旧排序
	RecentMessages(ctx context.Context, sessionID int64, limit int) ([]*ChatMessage, error)
	// CountMessages 会话累计消息数
	CountMessages(ctx context.Context, sessionID int64) (int, error)
	// ListMessages 分页查询，按 id 倒序
	ListMessages(ctx context.Context, sessionID int64, limit, offset int) ([]*ChatMessage, error)
	GetMessage(ctx context.Context, id int64) (*ChatMessage, error)
	UpdateMessageText(ctx context.Context, id int64, text string) (*ChatMessage, error)
	DeleteMessage(ctx context.Context, id int64) error
}

// MemoryStore 长期记忆存储
type MemoryStore interface {
	// CreateMemory 角色或会话不存在返回 ErrNotFound
	CreateMemory(ctx context.Context, m *Memory) error
	GetMemory(ctx context.Context, id int64) (*Memory, error)
	ListMemories(ctx context.Context) ([]*Memory, error)
	ListMemoriesBySession(ctx context.Context, sessionID int64) ([]*Memory, error)
	// ListActiveMemories 只返回 is_active = true 的记忆
	ListActiveMemories(ctx context.Context, sessionID int64) ([]*Memory, error)
	UpdateMemory(ctx context.Context, id int64, patch MemoryPatch) (*Memory, error)
	// DeleteMemory 硬删除并返回被删除的记录
	DeleteMemory(ctx context.Context, id int64) (*Memory, error)
}

// SessionStore 会话存储
type SessionStore interface {
	// CreateSession 角色不存在返回 ErrNotFound
	CreateSession(ctx context.Context, s *ChatSession) error
	GetSession(ctx context.Context, id int64) (*ChatSession, error)
	ListSessions(ctx context.Context) ([]*ChatSession, error)
	ListSessionsByRole(ctx context.Context, roleID int64) ([]*ChatSession, error)
	UpdateSession(ctx context.Context, id int64, patch SessionPatch) (*ChatSession, error)
	DeleteSession(ctx context.Context, id int64) error
}

// RoleStore 角色存储
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id int64) (*Role, error)
	GetRoleBySession(ctx context.Context, sessionID int64) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	ListPublicRoles(ctx context.Context) ([]*Role, error)
	ListRolesByUser(ctx context.Context, userID int64) ([]*Role, error)
	// ListChattingRoles 用户会话中出现过的角色，去重
	ListChattingRoles(ctx context.Context, userID int64) ([]*Role, error)
	UpdateRole(ctx context.Context, id int64, patch RolePatch) (*Role, error)
	DeleteRole(ctx context.Context, id int64) (*Role, error)
}

// EventStore 剧情事件存储
type EventStore interface {
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id int64) (*Event, error)
	ListEvents(ctx context.Context) ([]*Event, error)
	ListEventsBySession(ctx context.Context, sessionID int64) ([]*Event, error)
	UpdateEvent(ctx context.Context, id int64, patch EventPatch) (*Event, error)
	DeleteEvent(ctx context.Context, id int64) (*Event, error)
}

// UserStore 用户存储
type UserStore interface {
	// CreateUser 用户名已存在返回 ErrConflict
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// ModelAPIStore 模型金鑰存储。userID 为 0 时不按用户过滤。
type ModelAPIStore interface {
	CreateModelAPI(ctx context.Context, m *ModelAPI) error
	GetModelAPI(ctx context.Context, id, userID int64) (*ModelAPI, error)
	ListModelAPIs(ctx context.Context, userID int64) ([]*ModelAPI, error)
	UpdateModelAPI(ctx context.Context, id, userID int64, patch ModelAPIPatch) (*ModelAPI, error)
	DeleteModelAPI(ctx context.Context, id, userID int64) error
}

// Repository 聚合全部存储，PostgreSQL 实现一次满足
type Repository interface {
	ConversationStore
	MemoryStore
	SessionStore
	RoleStore
	EventStore
	UserStore
	ModelAPIStore
}
