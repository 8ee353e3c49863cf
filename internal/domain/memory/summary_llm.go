package memory

import (
	"fmt"
	"strings"

	"rolechat/internal/domain/roleplay/port"
	"rolechat/internal/provider"
)

const (
	contentLabel = "記憶內容"
	tagsLabel    = "標籤"
)

// Summary 解析后的摘要
type Summary struct {
	Content string
	Tags    string
}

// summarySystemPrompt 要求模型输出一句事件摘要和 1～3 个标签
func summarySystemPrompt(window int) string {
	turns := window / 2
	if turns < 1 {
		turns = 1
	}
	return fmt.Sprintf("你是小說寫作助手，請根據以下 %d 輪對話（共 %d 則訊息），整理出一句具體的事件或記憶摘要（不超過 100 字），並加上 1～3 個合適的分類標籤。\n\n格式如下：\n%s：...\n%s：...\n",
		turns, window, contentLabel, tagsLabel)
}

// RenderContext 按时间顺序渲染为 "{sender}：{message}" 行
func RenderContext(messages []*port.ChatMessage) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(m.Sender))
		sb.WriteString("：")
		sb.WriteString(m.Message)
	}
	return sb.String()
}

// BuildSummaryPrompt 构建 system + user 两条消息的摘要 prompt
func BuildSummaryPrompt(messages []*port.ChatMessage, window int) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: summarySystemPrompt(window)},
		{Role: provider.RoleUser, Content: RenderContext(messages)},
	}
}

// BuildSingleTurnSummaryPrompt 把摘要指令并入对话块，供只接收一条 user 消息的供应商使用
func BuildSingleTurnSummaryPrompt(messages []*port.ChatMessage, window int) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleUser, Content: summarySystemPrompt(window) + "\n" + RenderContext(messages)},
	}
}

// ParseSummary 按标签前缀逐行解析模型输出。
// 不匹配的行忽略，缺失的标签得到空字符串，不会返回错误。
func ParseSummary(text string) Summary {
	var s Summary
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if v, ok := cutLabel(line, contentLabel); ok {
			s.Content = v
		} else if v, ok := cutLabel(line, tagsLabel); ok {
			s.Tags = v
		}
	}
	return s
}

// cutLabel 同时接受全角和半角冒号
func cutLabel(line, label string) (string, bool) {
	rest, ok := strings.CutPrefix(line, label)
	if !ok {
		return "", false
	}
	for _, colon := range []string{"：", ":"} {
		if v, ok := strings.CutPrefix(rest, colon); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
