package memory

// ShouldSummarize 会话累计消息数落在窗口边界时触发摘要。
// 同一边界只会命中一次，前提是消息数单调递增。
func ShouldSummarize(total, window int) bool {
	if window <= 0 {
		return false
	}
	return total > 0 && total%window == 0
}
