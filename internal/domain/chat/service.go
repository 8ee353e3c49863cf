package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rolechat/internal/domain/memory"
	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
	"rolechat/internal/provider"
)

// Stores 聊天回合依赖的存储
type Stores struct {
	Conversations port.ConversationStore
	Sessions      port.SessionStore
	Roles         port.RoleStore
	Memories      port.MemoryStore
	ModelAPIs     port.ModelAPIStore
}

// Config 聊天回合参数
type Config struct {
	HistoryWindow int           // 注入 prompt 的最近消息条数
	MaxAttempts   int           // 模型调用总尝试次数，1 表示不重试
	RetryBackoff  time.Duration // 两次尝试之间的固定等待
	Timeout       time.Duration // 单次模型调用超时，0 表示不限制
	DefaultUserID int64
	DefaultRoleID int64
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		HistoryWindow: 10,
		MaxAttempts:   1,
		RetryBackoff:  time.Second,
		Timeout:       2 * time.Minute,
		DefaultUserID: 1,
		DefaultRoleID: 1,
	}
}

// SendRequest 一条用户消息
type SendRequest struct {
	TalkID           int64
	UserMessage      string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
	ModelAPIID       int64
	// UseSessionInput nil 视为 true
	UseSessionInput *bool
	// RoleID 仅在自动创建会话时使用
	RoleID *int64
	// UserID 已鉴权用户，0 表示匿名
	UserID int64
}

// SendResult 一轮对话结果
type SendResult struct {
	TalkID             int64     `json:"talk_id"`
	UserMessageID      int64     `json:"user_message_id"`
	AssistantMessageID int64     `json:"assistant_message_id"`
	AssistantMessage   string    `json:"assistant_message"`
	Timestamp          time.Time `json:"-"`
}

// History 分页历史
type History struct {
	TalkID   int64               `json:"talk_id"`
	Messages []*port.ChatMessage `json:"messages"`
	HasMore  bool                `json:"has_more"`
}

// EditResult 消息编辑结果
type EditResult struct {
	MessageID  int64     `json:"message_id"`
	OldMessage string    `json:"old_message"`
	NewMessage string    `json:"new_message"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Service 聊天回合编排
type Service struct {
	stores     Stores
	registry   *provider.Registry
	summarizer *memory.Summarizer
	config     Config

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewService 创建聊天服务。summarizer 为 nil 时不生成记忆。
func NewService(stores Stores, registry *provider.Registry, summarizer *memory.Summarizer, config Config) *Service {
	def := DefaultConfig()
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = def.HistoryWindow
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.RetryBackoff < 0 {
		config.RetryBackoff = 0
	}
	return &Service{
		stores:     stores,
		registry:   registry,
		summarizer: summarizer,
		config:     config,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Send 处理一条用户消息：解析会话与模型，生成回复，持久化，触发记忆摘要
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, port.Invalid("user_message 不能為空")
	}

	// 先解析模型，避免无效金鑰留下空会话
	llm, err := s.resolveProvider(ctx, req.ModelAPIID, req.UserID)
	if err != nil {
		return nil, err
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	messages, err := s.assemblePrompt(ctx, session, req)
	if err != nil {
		return nil, err
	}

	completion := &provider.CompletionRequest{
		Messages:         messages,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	reply, err := s.generate(ctx, llm, completion, session.ID)
	if err != nil {
		return nil, err
	}

	userMsg, assistantMsg, err := s.stores.Conversations.AppendTurn(ctx, session.ID, req.UserMessage, reply)
	if err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}

	if s.summarizer != nil {
		s.summarizer.Run(ctx, memory.Target{
			SessionID: session.ID,
			RoleID:    session.RoleID,
			Provider:  llm,
		})
	}

	applog.Info("[Chat] ✅ Turn completed",
		"talk_id", session.ID,
		"provider", llm.Name(),
		"user_message_id", userMsg.ID,
		"assistant_message_id", assistantMsg.ID,
	)

	return &SendResult{
		TalkID:             session.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		AssistantMessage:   reply,
		Timestamp:          s.now().UTC(),
	}, nil
}

// resolveProvider 查找模型金鑰并构建 Provider
func (s *Service) resolveProvider(ctx context.Context, modelAPIID, userID int64) (provider.LLMProvider, error) {
	api, err := s.stores.ModelAPIs.GetModelAPI(ctx, modelAPIID, userID)
	if err != nil {
		return nil, fmt.Errorf("get model api: %w", err)
	}
	if api == nil {
		return nil, port.NotFound("模型金鑰不存在")
	}
	return BuildProvider(s.registry, api)
}

// BuildProvider 校验模型金鑰并通过注册表构建 Provider
func BuildProvider(registry *provider.Registry, api *port.ModelAPI) (provider.LLMProvider, error) {
	if strings.TrimSpace(api.Provider) == "" || len(strings.TrimSpace(string(api.Config))) == 0 {
		return nil, port.Invalid("模型金鑰缺少 provider 或 config")
	}
	llm, err := registry.Build(api.Provider, api.Config)
	if err != nil {
		return nil, err
	}
	return llm, nil
}

// resolveSession 会话不存在时自动创建，之后使用新会话 id
func (s *Service) resolveSession(ctx context.Context, req SendRequest) (*port.ChatSession, error) {
	if req.TalkID > 0 {
		session, err := s.stores.Sessions.GetSession(ctx, req.TalkID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		if session != nil {
			return session, nil
		}
	}

	roleID := s.config.DefaultRoleID
	if req.RoleID != nil && *req.RoleID > 0 {
		roleID = *req.RoleID
	}
	role, err := s.stores.Roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	if role == nil {
		return nil, port.NotFound("角色不存在")
	}

	userID := req.UserID
	if userID <= 0 {
		userID = s.config.DefaultUserID
	}

	session := &port.ChatSession{
		RoleID:   role.ID,
		UserID:   &userID,
		IsActive: true,
	}
	if err := s.stores.Sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	applog.Info("[Chat] 🆕 Session auto-created",
		"requested_talk_id", req.TalkID,
		"talk_id", session.ID,
		"role_id", role.ID,
		"user_id", userID,
	)
	return session, nil
}

func (s *Service) assemblePrompt(ctx context.Context, session *port.ChatSession, req SendRequest) ([]provider.Message, error) {
	useSessionInput := req.UseSessionInput == nil || *req.UseSessionInput

	var memories []*port.Memory
	if !useSessionInput {
		var err error
		memories, err = s.stores.Memories.ListActiveMemories(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list active memories: %w", err)
		}
	}

	recent, err := s.stores.Conversations.RecentMessages(ctx, session.ID, s.config.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	history := make([]*port.ChatMessage, len(recent))
	for i, m := range recent {
		history[len(recent)-1-i] = m
	}

	return BuildMessages(PromptInput{
		Session:         session,
		UseSessionInput: useSessionInput,
		Memories:        memories,
		History:         history,
		UserMessage:     req.UserMessage,
	}), nil
}

// generate 有限次重试调用模型，全部失败返回 *provider.Error
func (s *Service) generate(ctx context.Context, llm provider.LLMProvider, req *provider.CompletionRequest, sessionID int64) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.config.RetryBackoff); err != nil {
				break
			}
		}

		resp, err := s.complete(ctx, llm, req)
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err
		applog.Warn("[Chat] ⚠️ LLM call failed",
			"talk_id", sessionID,
			"provider", llm.Name(),
			"attempt", attempt,
			"max_attempts", s.config.MaxAttempts,
			"error", err,
		)
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return "", provider.Wrap(llm.Name(), lastErr)
}

func (s *Service) complete(ctx context.Context, llm provider.LLMProvider, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	return llm.Complete(ctx, req)
}

// History 按 id 倒序分页读取
func (s *Service) History(ctx context.Context, talkID int64, limit, offset int) (*History, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := s.stores.Conversations.ListMessages(ctx, talkID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	total, err := s.stores.Conversations.CountMessages(ctx, talkID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if msgs == nil {
		msgs = []*port.ChatMessage{}
	}
	return &History{
		TalkID:   talkID,
		Messages: msgs,
		HasMore:  total > limit+offset,
	}, nil
}

// EditMessage 替换消息文本，空白文本拒绝且不修改原记录
func (s *Service) EditMessage(ctx context.Context, id int64, text string) (*EditResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, port.Invalid("訊息內容不能為空")
	}
	old, err := s.stores.Conversations.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if old == nil {
		return nil, port.NotFound("Message not found")
	}

	updated, err := s.stores.Conversations.UpdateMessageText(ctx, id, text)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, port.NotFound("Message not found")
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return &EditResult{
		MessageID:  id,
		OldMessage: old.Message,
		NewMessage: updated.Message,
		UpdatedAt:  updated.UpdatedAt,
	}, nil
}

// DeleteMessage 删除单条消息
func (s *Service) DeleteMessage(ctx context.Context, id int64) error {
	if err := s.stores.Conversations.DeleteMessage(ctx, id); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return port.NotFound("Message not found")
		}
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
