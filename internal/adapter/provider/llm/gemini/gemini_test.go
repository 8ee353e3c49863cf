package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rolechat/internal/provider"
)

func TestCompleteSendsOnlyLastUserMessage(t *testing.T) {
	var gotPath, gotKey string
	var gotBody apiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"哈囉"},{"text":"！"}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":7}}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "g-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	resp, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "persona"},
			{Role: provider.RoleUser, Content: "old"},
			{Role: provider.RoleAssistant, Content: "reply"},
			{Role: provider.RoleUser, Content: "latest"},
		},
		MaxTokens: 200,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if resp.Content != "哈囉！" {
		t.Fatalf("expected joined parts, got %q", resp.Content)
	}
	if gotPath != "/models/"+DefaultModel+":generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "g-key" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "latest" {
		t.Errorf("expected only the last user message, got %+v", gotBody.Contents)
	}
	if gotBody.GenerationConfig == nil || *gotBody.GenerationConfig.MaxOutputTokens != 200 {
		t.Errorf("expected maxOutputTokens 200, got %+v", gotBody.GenerationConfig)
	}
}

func TestCompleteBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	p, _ := New(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	})
	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *provider.Error, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, provider.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without api_key, got %v", err)
	}

	p, err := New(Config{APIKey: "k", Model: "models/gemini-2.0-flash"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Model() != "gemini-2.0-flash" {
		t.Fatalf("expected models/ prefix trimmed, got %q", p.Model())
	}
}
