package port

import (
	"encoding/json"
	"time"
)

// Sender 消息发送方
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid 是否为合法发送方
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// User 用户
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role 角色设定
type Role struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Age           *int      `json:"age"`
	Occupation    string    `json:"occupation"`
	Description   string    `json:"description"`
	Personality   string    `json:"personality"`
	SpeakingStyle string    `json:"speaking_style"`
	Hobbies       string    `json:"hobbies"`
	Worldview     string    `json:"worldview"`
	Category      string    `json:"category"`
	Image         string    `json:"image"` // 存储引用（本地相对路径或对象存储 URL）
	IsPublic      bool      `json:"is_public"`
	UserID        int64     `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChatSession 一条连续的角色扮演对话
type ChatSession struct {
	ID            int64     `json:"id"`
	RoleID        int64     `json:"role_id"`
	UserID        *int64    `json:"user_id"`
	Title         string    `json:"title"`
	Rule          string    `json:"rule"`
	SessionsInput string    `json:"sessions_input"` // 每轮注入 prompt 的静态上下文
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChatMessage 对话中的一条消息
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"talk_id"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Memory 长期记忆（摘要）
type Memory struct {
	ID         int64     `json:"id"`
	RoleID     int64     `json:"role_id"`
	SessionID  int64     `json:"session_id"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Section    string    `json:"section"`
	Tags       string    `json:"tags"`
	IsActive   bool      `json:"is_active"`
	Selected   bool      `json:"selected"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event 剧情事件
type Event struct {
	ID          int64     `json:"id"`
	RoleID      int64     `json:"role_id"`
	SessionID   int64     `json:"session_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Tags        string    `json:"tags"`
	IsActive    bool      `json:"is_active"`
	Selected    bool      `json:"selected"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ModelAPI 用户保存的模型金鑰
type ModelAPI struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Name      string          `json:"name"`
	Provider  string          `json:"provider"`
	Config    json.RawMessage `json:"config"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}
