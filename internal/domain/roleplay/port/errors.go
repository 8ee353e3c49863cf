package port

import "errors"

var (
	// ErrNotFound 引用的实体不存在（会话、消息、角色、模型金鑰等）
	ErrNotFound = errors.New("not found")

	// ErrValidation 输入为空或格式错误
	ErrValidation = errors.New("validation failed")

	// ErrConflict 唯一约束冲突（如用户名已存在），或删除仍被引用的行
	ErrConflict = errors.New("conflict")
)

var (
	// ErrRoleInUse 角色仍被会话、记忆或事件引用
	ErrRoleInUse = Conflict("角色仍有關聯的會話、記憶或事件，無法刪除")

	// ErrSessionInUse 会话仍被记忆或事件引用，消息随会话删除
	ErrSessionInUse = Conflict("會話仍有關聯的記憶或事件，無法刪除")
)

// Error 带面向用户消息的错误，errors.Is 按 Kind 匹配
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// NotFound 创建 ErrNotFound 类错误
func NotFound(message string) error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// Invalid 创建 ErrValidation 类错误
func Invalid(message string) error {
	return &Error{Kind: ErrValidation, Message: message}
}

// Conflict 创建 ErrConflict 类错误
func Conflict(message string) error {
	return &Error{Kind: ErrConflict, Message: message}
}
