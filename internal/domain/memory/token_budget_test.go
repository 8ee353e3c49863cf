package memory

import "testing"

func TestSimpleTokenEstimator(t *testing.T) {
	e := &SimpleTokenEstimator{}
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 2},
		{"你好世界啊哈", 4},
	}
	for _, tt := range tests {
		got, err := e.CountTokens(tt.in)
		if err != nil {
			t.Fatalf("CountTokens(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTiktokenCounterFallback(t *testing.T) {
	c := NewTiktokenCounter("no-such-model", &SimpleTokenEstimator{})
	got, err := c.CountTokens("abcdef")
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if got != 4 {
		t.Fatalf("expected fallback estimate 4, got %d", got)
	}
}

func TestTiktokenCounterWithoutFallback(t *testing.T) {
	c := NewTiktokenCounter("no-such-model", nil)
	if _, err := c.CountTokens("abc"); err == nil {
		t.Fatal("expected error when encoding cannot load")
	}
}
