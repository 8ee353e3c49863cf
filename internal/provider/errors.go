package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedProvider 未注册的供应商名称，在任何网络调用之前返回
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrInvalidConfig 模型金鑰配置缺失或格式错误
	ErrInvalidConfig = errors.New("invalid provider config")
)

// Error 上游 LLM 调用失败，保留原始错误
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap 包装为统一的 *Error；nil 原样返回，已是 *Error 的不重复包装
func Wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: name, Err: err}
}
