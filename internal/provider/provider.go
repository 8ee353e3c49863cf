package provider

import (
	"context"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message LLM 对话消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CompletionRequest LLM 补全请求（生成参数与供应商无关）
type CompletionRequest struct {
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	TopP             float64   `json:"top_p,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
}

// LastUserContent 返回最后一条 user 消息内容，没有则返回最后一条消息内容
func (r *CompletionRequest) LastUserContent() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return r.Messages[len(r.Messages)-1].Content
}

// CompletionResponse LLM 补全响应
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage Token 使用统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMProvider LLM 供应商接口。每个供应商一个实现，新增供应商只需新增实现并注册工厂。
type LLMProvider interface {
	// Name 返回供应商名称
	Name() string

	// Complete 非流式补全
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// SingleTurnProvider 只接收最后一条 user 消息的供应商。
// 需要 system 指令的调用方应把指令并入 user 消息。
type SingleTurnProvider interface {
	SingleTurn() bool
}

// IsSingleTurn 判断供应商是否会丢弃 system 与历史消息
func IsSingleTurn(p LLMProvider) bool {
	st, ok := p.(SingleTurnProvider)
	return ok && st.SingleTurn()
}
