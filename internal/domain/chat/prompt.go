package chat

import (
	"rolechat/internal/domain/roleplay/port"
	"rolechat/internal/provider"
)

// personaPrompt 固定角色扮演指令：繁體中文回覆，不超过 500 字
const personaPrompt = "請和使用者玩戀愛角色扮演遊戲，請模仿角色性格，參考發生過的事件、回憶，以角色的角度回覆對話，請始終使用繁體中文回應使用者，回應內容必須符合以下對話規則，回覆字數接近500但不超過500。"

const memoryPrefix = "重要記憶："

// PromptInput 组装一轮 prompt 所需的材料
type PromptInput struct {
	Session *port.ChatSession
	// UseSessionInput true 时使用会话静态上下文，false 时使用 active 记忆
	UseSessionInput bool
	Memories        []*port.Memory
	// History 按时间正序
	History     []*port.ChatMessage
	UserMessage string
}

// BuildMessages 人设 + 静态上下文或记忆 + 历史 + 新消息
func BuildMessages(in PromptInput) []provider.Message {
	msgs := make([]provider.Message, 0, 2+len(in.Memories)+len(in.History))
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: personaPrompt})

	if in.UseSessionInput {
		if in.Session != nil && in.Session.SessionsInput != "" {
			msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: in.Session.SessionsInput})
		}
	} else {
		for _, m := range in.Memories {
			msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: memoryPrefix + m.Content})
		}
	}

	for _, m := range in.History {
		msgs = append(msgs, provider.Message{Role: string(m.Sender), Content: m.Message})
	}

	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: in.UserMessage})
	return msgs
}
