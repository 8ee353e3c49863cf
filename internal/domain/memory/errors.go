package memory

import "errors"

var (
	// ErrNoSummaryProvider 既没有专用摘要模型，本轮也没有可用模型
	ErrNoSummaryProvider = errors.New("no provider available for summarization")
)
