package memory

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	applog "rolechat/internal/platform/log"
)

// TokenCounter 计算文本 token 数。结果只作为元数据，不用于计费。
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// SimpleTokenEstimator 简单 Token 估算器
// 英文约 4 字符 ≈ 1 token，中文约 1.5 字符 ≈ 1 token
// 取保守估计：rune 数量 * 2 / 3
type SimpleTokenEstimator struct{}

// EstimateTokens 估算文本的 Token 数
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	runes := len([]rune(text))
	if runes == 0 {
		return 0
	}
	return runes * 2 / 3
}

// CountTokens 实现 TokenCounter
func (e *SimpleTokenEstimator) CountTokens(text string) (int, error) {
	return e.EstimateTokens(text), nil
}

// TiktokenCounter 使用固定模型的 BPE 编码计数，编码表首次使用时加载
type TiktokenCounter struct {
	model    string
	fallback TokenCounter

	once    sync.Once
	enc     *tiktoken.Tiktoken
	loadErr error
}

// NewTiktokenCounter 创建计数器。fallback 非 nil 时，编码表加载失败改用 fallback。
func NewTiktokenCounter(model string, fallback TokenCounter) *TiktokenCounter {
	if model == "" {
		model = "gpt-4"
	}
	return &TiktokenCounter{model: model, fallback: fallback}
}

// CountTokens 实现 TokenCounter
func (c *TiktokenCounter) CountTokens(text string) (int, error) {
	c.once.Do(func() {
		c.enc, c.loadErr = tiktoken.EncodingForModel(c.model)
		if c.loadErr != nil {
			applog.Warn("[Memory/Tokenizer] ⚠️ Failed to load encoding",
				"model", c.model,
				"has_fallback", c.fallback != nil,
				"error", c.loadErr,
			)
		}
	})

	if c.loadErr != nil {
		if c.fallback != nil {
			return c.fallback.CountTokens(text)
		}
		return 0, fmt.Errorf("load tiktoken encoding for %s: %w", c.model, c.loadErr)
	}
	if text == "" {
		return 0, nil
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}
