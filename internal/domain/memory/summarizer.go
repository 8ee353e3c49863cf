package memory

import (
	"context"
	"fmt"
	"strings"

	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
	"rolechat/internal/provider"
)

// SummarizerConfig 摘要参数
type SummarizerConfig struct {
	WindowSize  int     // 触发窗口，也是喂给模型的消息条数
	Temperature float64 // 低温度保证稳定摘要
	MaxTokens   int
}

// DefaultSummarizerConfig 每 10 条消息（5 轮）生成一条记忆
func DefaultSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		WindowSize:  10,
		Temperature: 0.5,
		MaxTokens:   200,
	}
}

// Target 一次摘要的归属
type Target struct {
	SessionID int64
	RoleID    int64
	// Provider 本轮对话使用的模型，未配置专用摘要模型时使用
	Provider provider.LLMProvider
}

// Summarizer 对话 -> 长期记忆流水线。
// 失败只记录日志，不向调用方返回错误，也不影响本轮对话。
type Summarizer struct {
	conv     port.ConversationStore
	mem      port.MemoryStore
	counter  TokenCounter
	lock     SummaryLock
	provider provider.LLMProvider // 可选：专用摘要模型
	config   SummarizerConfig
}

// NewSummarizer 创建摘要流水线
func NewSummarizer(conv port.ConversationStore, mem port.MemoryStore, counter TokenCounter, config SummarizerConfig) *Summarizer {
	def := DefaultSummarizerConfig()
	if config.WindowSize <= 0 {
		config.WindowSize = def.WindowSize
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if counter == nil {
		counter = &SimpleTokenEstimator{}
	}
	applog.Info("[Memory/Summarizer] Initialized",
		"window_size", config.WindowSize,
		"temperature", config.Temperature,
		"max_tokens", config.MaxTokens,
	)
	return &Summarizer{
		conv:    conv,
		mem:     mem,
		counter: counter,
		lock:    noopLock{},
		config:  config,
	}
}

// WithLock 设置摘要去重锁
func (s *Summarizer) WithLock(lock SummaryLock) *Summarizer {
	if lock != nil {
		s.lock = lock
	}
	return s
}

// WithProvider 设置专用摘要模型，覆盖本轮对话模型
func (s *Summarizer) WithProvider(p provider.LLMProvider) *Summarizer {
	s.provider = p
	return s
}

// WindowSize 当前触发窗口
func (s *Summarizer) WindowSize() int {
	return s.config.WindowSize
}

// Run 检查触发条件并生成记忆。未触发或失败时返回 nil。
func (s *Summarizer) Run(ctx context.Context, target Target) *port.Memory {
	total, err := s.conv.CountMessages(ctx, target.SessionID)
	if err != nil {
		applog.Warn("[Memory/Summarizer] ⚠️ Count messages failed, skip",
			"session_id", target.SessionID,
			"error", err,
		)
		return nil
	}
	if !ShouldSummarize(total, s.config.WindowSize) {
		applog.Debug("[Memory/Summarizer] Not at window boundary, skip",
			"session_id", target.SessionID,
			"total", total,
			"window_size", s.config.WindowSize,
		)
		return nil
	}

	key := BoundaryKey(target.SessionID, total)
	acquired, err := s.lock.Acquire(ctx, key)
	if err != nil {
		// 锁服务不可用时仍然生成，退化为无锁行为
		applog.Warn("[Memory/Summarizer] ⚠️ Lock unavailable, continue without lock",
			"session_id", target.SessionID,
			"error", err,
		)
		acquired = true
	}
	if !acquired {
		applog.Info("[Memory/Summarizer] 🔒 Boundary already being summarized, skip",
			"session_id", target.SessionID,
			"total", total,
		)
		return nil
	}

	mem, err := s.generate(ctx, target)
	if err != nil {
		applog.Warn("[Memory/Summarizer] ⚠️ Memory generation failed",
			"session_id", target.SessionID,
			"role_id", target.RoleID,
			"total", total,
			"error", err,
		)
		if relErr := s.lock.Release(ctx, key); relErr != nil {
			applog.Debug("[Memory/Summarizer] Lock release failed", "key", key, "error", relErr)
		}
		return nil
	}

	applog.Info("[Memory/Summarizer] ✅ Memory created",
		"session_id", target.SessionID,
		"memory_id", mem.ID,
		"token_count", mem.TokenCount,
		"tags", mem.Tags,
		"content_preview", applog.Preview(mem.Content, 80),
	)
	return mem
}

func (s *Summarizer) generate(ctx context.Context, target Target) (mem *port.Memory, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("summarizer panic: %v", r)
		}
	}()

	llm := s.provider
	if llm == nil {
		llm = target.Provider
	}
	if llm == nil {
		return nil, ErrNoSummaryProvider
	}

	recent, err := s.conv.RecentMessages(ctx, target.SessionID, s.config.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	chronological := make([]*port.ChatMessage, len(recent))
	for i, m := range recent {
		chronological[len(recent)-1-i] = m
	}

	messages := BuildSummaryPrompt(chronological, s.config.WindowSize)
	if provider.IsSingleTurn(llm) {
		messages = BuildSingleTurnSummaryPrompt(chronological, s.config.WindowSize)
	}
	req := &provider.CompletionRequest{
		Messages:    messages,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	}

	applog.Debug("[Memory/Summarizer] Calling LLM...",
		"provider", llm.Name(),
		"message_count", len(chronological),
		"temperature", req.Temperature,
		"max_tokens", req.MaxTokens,
	)

	resp, err := llm.Complete(ctx, req)
	if err != nil {
		return nil, provider.Wrap(llm.Name(), err)
	}

	parsed := ParseSummary(resp.Content)
	if parsed.Content == "" {
		applog.Warn("[Memory/Summarizer] ⚠️ Summary label missing, storing empty content",
			"session_id", target.SessionID,
			"raw_preview", applog.Preview(strings.TrimSpace(resp.Content), 120),
		)
	}

	tokens, err := s.counter.CountTokens(parsed.Content)
	if err != nil {
		return nil, fmt.Errorf("count tokens: %w", err)
	}

	mem = &port.Memory{
		RoleID:     target.RoleID,
		SessionID:  target.SessionID,
		Content:    parsed.Content,
		TokenCount: tokens,
		Tags:       parsed.Tags,
		IsActive:   true,
		Selected:   false,
	}
	if err := s.mem.CreateMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	return mem, nil
}
