package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "ok"}, nil
}

func TestRegistryBuild(t *testing.T) {
	built := 0
	reg := NewRegistry()
	reg.Register("Azure", func(config json.RawMessage) (LLMProvider, error) {
		built++
		return &stubProvider{name: "azure"}, nil
	})

	t.Run("registered provider is case insensitive", func(t *testing.T) {
		p, err := reg.Build(" azure ", json.RawMessage(`{"api_key":"k"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Name() != "azure" {
			t.Fatalf("expected azure, got %s", p.Name())
		}
	})

	t.Run("unsupported provider fails before factory", func(t *testing.T) {
		before := built
		_, err := reg.Build("claude", json.RawMessage(`{"api_key":"k"}`))
		if !errors.Is(err, ErrUnsupportedProvider) {
			t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
		}
		if built != before {
			t.Fatalf("factory must not run for unsupported provider")
		}
	})

	t.Run("empty config is invalid", func(t *testing.T) {
		for _, cfg := range []string{"", "null", "{}"} {
			_, err := reg.Build("azure", json.RawMessage(cfg))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("config %q: expected ErrInvalidConfig, got %v", cfg, err)
			}
		}
	})

	if names := reg.Names(); len(names) != 1 || names[0] != "azure" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestWrap(t *testing.T) {
	if Wrap("azure", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	base := errors.New("timeout")
	err := Wrap("azure", base)
	var pe *Error
	if !errors.As(err, &pe) || pe.Provider != "azure" {
		t.Fatalf("expected *Error for azure, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to unwrap to base")
	}
	if Wrap("gemini", err) != err {
		t.Fatal("expected already wrapped error to be returned as is")
	}
}

func TestLastUserContent(t *testing.T) {
	req := &CompletionRequest{Messages: []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
	}}
	if got := req.LastUserContent(); got != "second" {
		t.Fatalf("expected second, got %q", got)
	}

	onlySystem := &CompletionRequest{Messages: []Message{{Role: RoleSystem, Content: "s"}}}
	if got := onlySystem.LastUserContent(); got != "s" {
		t.Fatalf("expected fallback to last message, got %q", got)
	}
}
