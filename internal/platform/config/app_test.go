package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rolechat?sslmode=disable")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SUMMARY_WINDOW_SIZE", "6")
	t.Setenv("CHAT_DEFAULT_ROLE_ID", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Summary.WindowSize != 6 {
		t.Errorf("expected window size 6, got %d", cfg.Summary.WindowSize)
	}
	if cfg.Chat.DefaultRoleID != 7 {
		t.Errorf("expected default role 7, got %d", cfg.Chat.DefaultRoleID)
	}
	if cfg.Chat.HistoryWindow != 10 || cfg.Chat.MaxRetries != 1 {
		t.Errorf("unexpected chat defaults: %+v", cfg.Chat)
	}
	if cfg.Summary.TokenizerModel != "gpt-4" || cfg.Summary.MaxTokens != 200 {
		t.Errorf("unexpected summary defaults: %+v", cfg.Summary)
	}
	if cfg.Auth.AccessExpireMinutes != 60 {
		t.Errorf("expected 60 minute tokens, got %d", cfg.Auth.AccessExpireMinutes)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json")
	data, _ := json.Marshal(map[string]any{
		"database": map[string]any{"url": "postgres://file"},
		"auth":     map[string]any{"jwt_secret": "from-file"},
		"chat":     map[string]any{"max_retries": 3},
	})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("CHAT_MAX_RETRIES", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.URL != "postgres://file" {
		t.Errorf("expected database url from file, got %q", cfg.Database.URL)
	}
	if cfg.Chat.MaxRetries != 2 {
		t.Errorf("expected env to override file, got %d", cfg.Chat.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr string
	}{
		{
			name:    "missing database",
			mutate:  func(c *AppConfig) { c.Database.URL = "" },
			wantErr: "DATABASE_URL",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *AppConfig) { c.Auth.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *AppConfig) { c.Upload.Storage = "s3" },
			wantErr: "S3_BUCKET",
		},
		{
			name:    "azure summary without key",
			mutate:  func(c *AppConfig) { c.Summary.Provider = "azure" },
			wantErr: "AZURE_OPENAI",
		},
		{
			name:    "unknown summary provider",
			mutate:  func(c *AppConfig) { c.Summary.Provider = "claude" },
			wantErr: "unsupported SUMMARY_PROVIDER",
		},
		{
			name:   "valid",
			mutate: func(c *AppConfig) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://x"
			cfg.Auth.JWTSecret = "s"
			tt.mutate(cfg)
			cfg.normalize()

			err := cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSummaryCredential(t *testing.T) {
	cfg := Default()
	if name, raw := cfg.SummaryCredential(); name != "" || raw != nil {
		t.Fatalf("expected no summary credential, got %q %s", name, raw)
	}

	cfg.Summary.Provider = "azure"
	cfg.Summary.AzureAPIKey = "k"
	cfg.Summary.AzureEndpoint = "https://example.openai.azure.com"
	cfg.Summary.AzureDeploymentName = "gpt-4o"

	name, raw := cfg.SummaryCredential()
	if name != "azure" {
		t.Fatalf("expected azure, got %q", name)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["deployment_name"] != "gpt-4o" || got["api_key"] != "k" {
		t.Fatalf("unexpected credential payload: %v", got)
	}
}
