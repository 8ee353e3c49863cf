package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"rolechat/internal/adapter/provider/llm/gemini"
	"rolechat/internal/domain/roleplay/port"
	"rolechat/internal/provider"
)

// --- fakes ---

type fakeConversation struct {
	messages []*port.ChatMessage
	countErr error
}

func (f *fakeConversation) add(n int) {
	for i := 0; i < n; i++ {
		sender := port.SenderUser
		if i%2 == 1 {
			sender = port.SenderAssistant
		}
		id := int64(len(f.messages) + 1)
		f.messages = append(f.messages, &port.ChatMessage{ID: id, SessionID: 1, Sender: sender, Message: fmt.Sprintf("m%d", id)})
	}
}

func (f *fakeConversation) AppendMessage(ctx context.Context, sessionID int64, sender port.Sender, text string) (*port.ChatMessage, error) {
	return nil, errors.New("not used")
}

func (f *fakeConversation) AppendTurn(ctx context.Context, sessionID int64, userText, assistantText string) (*port.ChatMessage, *port.ChatMessage, error) {
	return nil, nil, errors.New("not used")
}

func (f *fakeConversation) RecentMessages(ctx context.Context, sessionID int64, limit int) ([]*port.ChatMessage, error) {
	var out []*port.ChatMessage
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.messages[i])
	}
	return out, nil
}

func (f *fakeConversation) CountMessages(ctx context.Context, sessionID int64) (int, error) {
	return len(f.messages), f.countErr
}

func (f *fakeConversation) ListMessages(ctx context.Context, sessionID int64, limit, offset int) ([]*port.ChatMessage, error) {
	return nil, nil
}

func (f *fakeConversation) GetMessage(ctx context.Context, id int64) (*port.ChatMessage, error) {
	return nil, nil
}

func (f *fakeConversation) UpdateMessageText(ctx context.Context, id int64, text string) (*port.ChatMessage, error) {
	return nil, nil
}

func (f *fakeConversation) DeleteMessage(ctx context.Context, id int64) error { return nil }

type fakeMemoryStore struct {
	mu       sync.Mutex
	items    []*port.Memory
	createFn func(m *port.Memory) error
}

func (f *fakeMemoryStore) CreateMemory(ctx context.Context, m *port.Memory) error {
	if f.createFn != nil {
		if err := f.createFn(m); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = int64(len(f.items) + 1)
	f.items = append(f.items, m)
	return nil
}

func (f *fakeMemoryStore) GetMemory(ctx context.Context, id int64) (*port.Memory, error) {
	return nil, nil
}

func (f *fakeMemoryStore) ListMemories(ctx context.Context) ([]*port.Memory, error) {
	return f.items, nil
}

func (f *fakeMemoryStore) ListMemoriesBySession(ctx context.Context, sessionID int64) ([]*port.Memory, error) {
	return f.items, nil
}

func (f *fakeMemoryStore) ListActiveMemories(ctx context.Context, sessionID int64) ([]*port.Memory, error) {
	var out []*port.Memory
	for _, m := range f.items {
		if m.SessionID == sessionID && m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemoryStore) UpdateMemory(ctx context.Context, id int64, patch port.MemoryPatch) (*port.Memory, error) {
	return nil, nil
}

func (f *fakeMemoryStore) DeleteMemory(ctx context.Context, id int64) (*port.Memory, error) {
	return nil, nil
}

type fakeProvider struct {
	reply    string
	err      error
	panicMsg string
	calls    int
	last     *provider.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CompletionResponse{Content: f.reply}, nil
}

type fakeLock struct {
	held     map[string]bool
	released []string
}

func (l *fakeLock) Acquire(ctx context.Context, key string) (bool, error) {
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, key string) error {
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

// --- tests ---

func TestShouldSummarize(t *testing.T) {
	tests := []struct {
		total, window int
		want          bool
	}{
		{0, 10, false},
		{9, 10, false},
		{10, 10, true},
		{11, 10, false},
		{15, 10, false},
		{20, 10, true},
		{30, 10, true},
		{10, 0, false},
		{5, 5, true},
	}
	for _, tt := range tests {
		if got := ShouldSummarize(tt.total, tt.window); got != tt.want {
			t.Errorf("ShouldSummarize(%d, %d) = %v, want %v", tt.total, tt.window, got, tt.want)
		}
	}
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantContent string
		wantTags    string
	}{
		{
			name:        "well formed",
			in:          "記憶內容：Alice confessed her past.\n標籤：confession,emotional",
			wantContent: "Alice confessed her past.",
			wantTags:    "confession,emotional",
		},
		{
			name:        "extra lines and whitespace",
			in:          "好的，以下是摘要：\n  記憶內容： 兩人在雨中相遇 \n\n標籤：邂逅\n謝謝",
			wantContent: "兩人在雨中相遇",
			wantTags:    "邂逅",
		},
		{
			name:        "ascii colon",
			in:          "記憶內容: 約定週末見面\n標籤: 約會",
			wantContent: "約定週末見面",
			wantTags:    "約會",
		},
		{
			name: "missing both labels",
			in:   "I cannot summarize this.",
		},
		{
			name:        "tags only",
			in:          "標籤：日常",
			wantTags:    "日常",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSummary(tt.in)
			if got.Content != tt.wantContent || got.Tags != tt.wantTags {
				t.Fatalf("ParseSummary() = %+v, want content=%q tags=%q", got, tt.wantContent, tt.wantTags)
			}
		})
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	msgs := []*port.ChatMessage{
		{Sender: port.SenderUser, Message: "你好"},
		{Sender: port.SenderAssistant, Message: "嗨"},
	}
	prompt := BuildSummaryPrompt(msgs, 10)
	if len(prompt) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(prompt))
	}
	if prompt[0].Role != provider.RoleSystem || !strings.Contains(prompt[0].Content, "5 輪對話（共 10 則訊息）") {
		t.Errorf("unexpected system prompt: %q", prompt[0].Content)
	}
	if prompt[1].Content != "user：你好\nassistant：嗨" {
		t.Errorf("unexpected context block: %q", prompt[1].Content)
	}
}

func TestSummarizerNoOpOffBoundary(t *testing.T) {
	conv := &fakeConversation{}
	conv.add(9)
	store := &fakeMemoryStore{}
	llm := &fakeProvider{reply: "記憶內容：x\n標籤：y"}

	s := NewSummarizer(conv, store, &SimpleTokenEstimator{}, DefaultSummarizerConfig())
	if got := s.Run(context.Background(), Target{SessionID: 1, RoleID: 1, Provider: llm}); got != nil {
		t.Fatalf("expected no memory, got %+v", got)
	}
	if llm.calls != 0 {
		t.Fatalf("expected zero provider calls, got %d", llm.calls)
	}
	if len(store.items) != 0 {
		t.Fatalf("expected zero memory writes, got %d", len(store.items))
	}
}

func TestSummarizerCreatesMemoryAtBoundary(t *testing.T) {
	conv := &fakeConversation{}
	conv.add(12)
	conv.messages = conv.messages[:10]
	store := &fakeMemoryStore{}
	llm := &fakeProvider{reply: "記憶內容：Alice confessed her past.\n標籤：confession,emotional"}

	s := NewSummarizer(conv, store, &SimpleTokenEstimator{}, DefaultSummarizerConfig())
	mem := s.Run(context.Background(), Target{SessionID: 1, RoleID: 3, Provider: llm})
	if mem == nil {
		t.Fatal("expected memory to be created")
	}

	if mem.Content != "Alice confessed her past." || mem.Tags != "confession,emotional" {
		t.Errorf("unexpected parsed memory: %+v", mem)
	}
	if !mem.IsActive || mem.Selected {
		t.Errorf("expected active=true selected=false, got %+v", mem)
	}
	if mem.RoleID != 3 || mem.SessionID != 1 {
		t.Errorf("unexpected ownership: %+v", mem)
	}
	want := (&SimpleTokenEstimator{}).EstimateTokens(mem.Content)
	if mem.TokenCount != want {
		t.Errorf("expected token count %d, got %d", want, mem.TokenCount)
	}

	if llm.last.Temperature != 0.5 || llm.last.MaxTokens != 200 {
		t.Errorf("unexpected generation params: %+v", llm.last)
	}
	ctxBlock := llm.last.Messages[1].Content
	if !strings.HasPrefix(ctxBlock, "user：m1\n") || !strings.HasSuffix(ctxBlock, "assistant：m10") {
		t.Errorf("expected chronological context, got %q", ctxBlock)
	}

	active, _ := store.ListActiveMemories(context.Background(), 1)
	if len(active) != 1 || active[0].ID != mem.ID {
		t.Errorf("expected new memory listed as active, got %+v", active)
	}
}

func TestSummarizerMalformedOutputStoresEmptyMemory(t *testing.T) {
	conv := &fakeConversation{}
	conv.add(10)
	store := &fakeMemoryStore{}
	llm := &fakeProvider{reply: "抱歉，我無法完成。"}

	s := NewSummarizer(conv, store, &SimpleTokenEstimator{}, DefaultSummarizerConfig())
	mem := s.Run(context.Background(), Target{SessionID: 1, RoleID: 1, Provider: llm})
	if mem == nil {
		t.Fatal("expected memory with empty content")
	}
	if mem.Content != "" || mem.Tags != "" || mem.TokenCount != 0 {
		t.Fatalf("expected empty memory, got %+v", mem)
	}
	active, _ := store.ListActiveMemories(context.Background(), 1)
	if len(active) != 1 {
		t.Fatalf("expected stored memory to be listed, got %d", len(active))
	}
}

type failingCounter struct{}

func (failingCounter) CountTokens(string) (int, error) { return 0, errors.New("no encoding") }

func TestSummarizerSwallowsFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(conv *fakeConversation, store *fakeMemoryStore, llm *fakeProvider) TokenCounter
		llmNil  bool
		wantLLM int
	}{
		{
			name: "provider error",
			setup: func(conv *fakeConversation, store *fakeMemoryStore, llm *fakeProvider) TokenCounter {
				llm.err = errors.New("timeout")
				return nil
			},
			wantLLM: 1,
		},
		{
			name: "store error",
			setup: func(conv *fakeConversation, store *fakeMemoryStore, llm *fakeProvider) TokenCounter {
				store.createFn = func(*port.Memory) error { return port.ErrNotFound }
				return nil
			},
			wantLLM: 1,
		},
		{
			name: "tokenizer error",
			setup: func(conv *fakeConversation, store *fakeMemoryStore, llm *fakeProvider) TokenCounter {
				return failingCounter{}
			},
			wantLLM: 1,
		},
		{
			name: "provider panic",
			setup: func(conv *fakeConversation, store *fakeMemoryStore, llm *fakeProvider) TokenCounter {
				llm.panicMsg = "nil map"
				return nil
			},
			wantLLM: 1,
		},
		{
			name: "count error",
			setup: func(conv *fakeConversation, store *fakeMemoryStore, llm *fakeProvider) TokenCounter {
				conv.countErr = errors.New("db down")
				return nil
			},
			wantLLM: 0,
		},
		{
			name: "no provider",
			setup: func(conv *fakeConversation, store *fakeMemoryStore, llm *fakeProvider) TokenCounter {
				return nil
			},
			llmNil:  true,
			wantLLM: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConversation{}
			conv.add(10)
			store := &fakeMemoryStore{}
			llm := &fakeProvider{reply: "記憶內容：x\n標籤：y"}
			counter := tt.setup(conv, store, llm)

			s := NewSummarizer(conv, store, counter, DefaultSummarizerConfig())
			target := Target{SessionID: 1, RoleID: 1, Provider: llm}
			if tt.llmNil {
				target.Provider = nil
			}

			if got := s.Run(context.Background(), target); got != nil {
				t.Fatalf("expected nil memory on failure, got %+v", got)
			}
			if llm.calls != tt.wantLLM {
				t.Fatalf("expected %d provider calls, got %d", tt.wantLLM, llm.calls)
			}
			if len(store.items) != 0 {
				t.Fatalf("expected no memory written, got %d", len(store.items))
			}
		})
	}
}

func TestSummarizerLockPreventsDuplicateBoundary(t *testing.T) {
	conv := &fakeConversation{}
	conv.add(10)
	store := &fakeMemoryStore{}
	llm := &fakeProvider{reply: "記憶內容：x\n標籤：y"}
	lock := &fakeLock{}

	s := NewSummarizer(conv, store, nil, DefaultSummarizerConfig()).WithLock(lock)
	first := s.Run(context.Background(), Target{SessionID: 1, RoleID: 1, Provider: llm})
	second := s.Run(context.Background(), Target{SessionID: 1, RoleID: 1, Provider: llm})

	if first == nil || second != nil {
		t.Fatalf("expected exactly one memory, got first=%v second=%v", first, second)
	}
	if llm.calls != 1 || len(store.items) != 1 {
		t.Fatalf("expected one call and one write, got calls=%d writes=%d", llm.calls, len(store.items))
	}
}

func TestSummarizerReleasesLockOnFailure(t *testing.T) {
	conv := &fakeConversation{}
	conv.add(10)
	lock := &fakeLock{}
	llm := &fakeProvider{err: errors.New("boom")}

	s := NewSummarizer(conv, &fakeMemoryStore{}, nil, DefaultSummarizerConfig()).WithLock(lock)
	s.Run(context.Background(), Target{SessionID: 1, RoleID: 1, Provider: llm})

	if len(lock.released) != 1 || lock.released[0] != BoundaryKey(1, 10) {
		t.Fatalf("expected boundary lock released, got %v", lock.released)
	}
}

func TestSummarizerPrefersDedicatedProvider(t *testing.T) {
	conv := &fakeConversation{}
	conv.add(10)
	turnLLM := &fakeProvider{reply: "記憶內容：turn"}
	dedicated := &fakeProvider{reply: "記憶內容：dedicated"}

	s := NewSummarizer(conv, &fakeMemoryStore{}, nil, DefaultSummarizerConfig()).WithProvider(dedicated)
	mem := s.Run(context.Background(), Target{SessionID: 1, RoleID: 1, Provider: turnLLM})

	if mem == nil || mem.Content != "dedicated" {
		t.Fatalf("expected dedicated provider output, got %+v", mem)
	}
	if turnLLM.calls != 0 {
		t.Fatalf("turn provider must not be called, got %d calls", turnLLM.calls)
	}
}

func TestSummarizerFoldsInstructionForGemini(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Contents) == 1 && len(body.Contents[0].Parts) == 1 {
			gotPrompt = body.Contents[0].Parts[0].Text
		}
		reply := "我不知道要做什麼。"
		if strings.Contains(gotPrompt, "記憶內容") {
			reply = "記憶內容：兩人在雨中相遇\n標籤：邂逅"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]string{{"text": reply}}}},
			},
		})
	}))
	defer srv.Close()

	llm, err := gemini.New(gemini.Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("gemini.New: %v", err)
	}

	conv := &fakeConversation{}
	conv.add(10)
	store := &fakeMemoryStore{}
	s := NewSummarizer(conv, store, &SimpleTokenEstimator{}, DefaultSummarizerConfig())
	mem := s.Run(context.Background(), Target{SessionID: 1, RoleID: 1, Provider: llm})

	if mem == nil || mem.Content != "兩人在雨中相遇" || mem.Tags != "邂逅" {
		t.Fatalf("unexpected memory: %+v", mem)
	}
	if mem.TokenCount == 0 {
		t.Fatalf("expected non-zero token count")
	}
	if !strings.Contains(gotPrompt, "5 輪對話") || !strings.HasSuffix(gotPrompt, "user：m1\nassistant：m2\nuser：m3\nassistant：m4\nuser：m5\nassistant：m6\nuser：m7\nassistant：m8\nuser：m9\nassistant：m10") {
		t.Fatalf("instruction and context should share one prompt, got %q", gotPrompt)
	}
}

func TestBuildSingleTurnSummaryPrompt(t *testing.T) {
	msgs := []*port.ChatMessage{{Sender: port.SenderUser, Message: "你好"}}
	prompt := BuildSingleTurnSummaryPrompt(msgs, 10)
	if len(prompt) != 1 || prompt[0].Role != provider.RoleUser {
		t.Fatalf("expected a single user message, got %+v", prompt)
	}
	if !strings.HasPrefix(prompt[0].Content, "你是小說寫作助手") || !strings.HasSuffix(prompt[0].Content, "user：你好") {
		t.Fatalf("unexpected prompt: %q", prompt[0].Content)
	}
}
