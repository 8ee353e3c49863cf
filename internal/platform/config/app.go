package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string         `json:"log_level"`
	LogFormat string         `json:"log_format"`
	Server    ServerConfig   `json:"server"`
	Database  DatabaseConfig `json:"database"`
	Redis     RedisConfig    `json:"redis"`
	Auth      AuthConfig     `json:"auth"`
	Chat      ChatConfig     `json:"chat"`
	Summary   SummaryConfig  `json:"summary"`
	Upload    UploadConfig   `json:"upload"`
	Runtime   RuntimeConfig  `json:"runtime"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
	// PublicBaseURL 用于拼接头像完整 URL，为空时按请求 Host 推断
	PublicBaseURL string `json:"public_base_url"`
}

type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// RedisConfig Redis 可选，未配置时关闭记忆缓存与摘要锁
type RedisConfig struct {
	URL             string `json:"url"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	LockTTLSeconds  int    `json:"lock_ttl_seconds"`
}

type AuthConfig struct {
	JWTSecret           string `json:"jwt_secret"`
	JWTIssuer           string `json:"jwt_issuer"`
	AccessExpireMinutes int    `json:"access_expire_minutes"`
}

// ChatConfig 聊天回合参数
type ChatConfig struct {
	HistoryWindow  int   `json:"history_window"`
	MaxRetries     int   `json:"max_retries"`
	RetryBackoffMs int   `json:"retry_backoff_ms"`
	DefaultUserID  int64 `json:"default_user_id"`
	DefaultRoleID  int64 `json:"default_role_id"`
	TimeoutSeconds int   `json:"timeout_seconds"`
}

// SummaryConfig 记忆摘要参数。
// Provider 为空时复用本轮对话使用的模型金鑰。
type SummaryConfig struct {
	WindowSize     int     `json:"window_size"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TokenizerModel string  `json:"tokenizer_model"`

	Provider            string `json:"provider"` // azure | gemini | ""
	AzureEndpoint       string `json:"azure_endpoint"`
	AzureAPIKey         string `json:"azure_api_key"`
	AzureDeploymentName string `json:"azure_deployment_name"`
	GeminiAPIKey        string `json:"gemini_api_key"`
	GeminiModel         string `json:"gemini_model"`
}

// UploadConfig 头像存储
type UploadConfig struct {
	Storage           string `json:"storage"` // local | s3
	Dir               string `json:"dir"`
	MaxFileMB         int    `json:"max_file_mb"`
	S3Bucket          string `json:"s3_bucket"`
	S3Region          string `json:"s3_region"`
	S3Endpoint        string `json:"s3_endpoint"`
	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"s3_secret_access_key"`
	S3PublicBaseURL   string `json:"s3_public_base_url"`
	S3UsePathStyle    bool   `json:"s3_use_path_style"`
}

type RuntimeConfig struct {
	MigrationTimeoutSeconds int `json:"migration_timeout_seconds"`
	RedisPingTimeoutSeconds int `json:"redis_ping_timeout_seconds"`
	ShutdownTimeoutSeconds  int `json:"shutdown_timeout_seconds"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8000,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 180,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		Redis: RedisConfig{
			CacheTTLSeconds: 1800,
			LockTTLSeconds:  120,
		},
		Auth: AuthConfig{
			AccessExpireMinutes: 60,
		},
		Chat: ChatConfig{
			HistoryWindow:  10,
			MaxRetries:     1,
			RetryBackoffMs: 1000,
			DefaultUserID:  1,
			DefaultRoleID:  1,
			TimeoutSeconds: 120,
		},
		Summary: SummaryConfig{
			WindowSize:     10,
			Temperature:    0.5,
			MaxTokens:      200,
			TokenizerModel: "gpt-4",
		},
		Upload: UploadConfig{
			Storage:   "local",
			Dir:       "uploads",
			MaxFileMB: 10,
		},
		Runtime: RuntimeConfig{
			MigrationTimeoutSeconds: 30,
			RedisPingTimeoutSeconds: 5,
			ShutdownTimeoutSeconds:  10,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)
	applyString("PUBLIC_BASE_URL", &c.Server.PublicBaseURL)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)
	applyInt("REDIS_CACHE_TTL", &c.Redis.CacheTTLSeconds)
	applyInt("REDIS_LOCK_TTL", &c.Redis.LockTTLSeconds)

	applyString("SECRET_KEY", &c.Auth.JWTSecret) // 兼容旧变量名，JWT_SECRET 优先
	applyString("JWT_SECRET", &c.Auth.JWTSecret)
	applyString("JWT_ISSUER", &c.Auth.JWTIssuer)
	applyInt("ACCESS_TOKEN_EXPIRE_MINUTES", &c.Auth.AccessExpireMinutes)

	applyInt("CHAT_HISTORY_WINDOW", &c.Chat.HistoryWindow)
	applyInt("CHAT_MAX_RETRIES", &c.Chat.MaxRetries)
	applyInt("CHAT_RETRY_BACKOFF_MS", &c.Chat.RetryBackoffMs)
	applyInt64("CHAT_DEFAULT_USER_ID", &c.Chat.DefaultUserID)
	applyInt64("CHAT_DEFAULT_ROLE_ID", &c.Chat.DefaultRoleID)
	applyInt("CHAT_TIMEOUT", &c.Chat.TimeoutSeconds)

	applyInt("SUMMARY_WINDOW_SIZE", &c.Summary.WindowSize)
	applyFloat64("SUMMARY_TEMPERATURE", &c.Summary.Temperature)
	applyInt("SUMMARY_MAX_TOKENS", &c.Summary.MaxTokens)
	applyString("SUMMARY_TOKENIZER_MODEL", &c.Summary.TokenizerModel)
	applyString("SUMMARY_PROVIDER", &c.Summary.Provider)
	applyString("AZURE_OPENAI_ENDPOINT", &c.Summary.AzureEndpoint)
	applyString("AZURE_OPENAI_KEY", &c.Summary.AzureAPIKey)
	applyString("AZURE_OPENAI_DEPLOYMENT_NAME", &c.Summary.AzureDeploymentName)
	applyString("GEMINI_API_KEY", &c.Summary.GeminiAPIKey)
	applyString("GEMINI_MODEL", &c.Summary.GeminiModel)

	applyString("AVATAR_STORAGE", &c.Upload.Storage)
	applyString("UPLOAD_DIR", &c.Upload.Dir)
	applyInt("UPLOAD_MAX_FILE_MB", &c.Upload.MaxFileMB)
	applyString("S3_BUCKET", &c.Upload.S3Bucket)
	applyString("S3_REGION", &c.Upload.S3Region)
	applyString("S3_ENDPOINT", &c.Upload.S3Endpoint)
	applyString("S3_ACCESS_KEY_ID", &c.Upload.S3AccessKeyID)
	applyString("S3_SECRET_ACCESS_KEY", &c.Upload.S3SecretAccessKey)
	applyString("S3_PUBLIC_BASE_URL", &c.Upload.S3PublicBaseURL)
	applyBool("S3_USE_PATH_STYLE", &c.Upload.S3UsePathStyle)
}

func (c *AppConfig) normalize() {
	if c.Chat.HistoryWindow <= 0 {
		c.Chat.HistoryWindow = 10
	}
	if c.Chat.MaxRetries <= 0 {
		c.Chat.MaxRetries = 1
	}
	if c.Chat.RetryBackoffMs < 0 {
		c.Chat.RetryBackoffMs = 0
	}
	if c.Summary.WindowSize <= 0 {
		c.Summary.WindowSize = 10
	}
	if c.Summary.MaxTokens <= 0 {
		c.Summary.MaxTokens = 200
	}
	if strings.TrimSpace(c.Summary.TokenizerModel) == "" {
		c.Summary.TokenizerModel = "gpt-4"
	}
	c.Summary.Provider = strings.ToLower(strings.TrimSpace(c.Summary.Provider))
	c.Upload.Storage = strings.ToLower(strings.TrimSpace(c.Upload.Storage))
	if c.Upload.Storage == "" {
		c.Upload.Storage = "local"
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = "uploads"
	}
	if c.Auth.AccessExpireMinutes <= 0 {
		c.Auth.AccessExpireMinutes = 60
	}
	c.Server.PublicBaseURL = strings.TrimRight(c.Server.PublicBaseURL, "/")
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Upload.Storage {
	case "local":
	case "s3":
		if c.Upload.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when AVATAR_STORAGE=s3")
		}
	default:
		return fmt.Errorf("unsupported AVATAR_STORAGE %q", c.Upload.Storage)
	}
	switch c.Summary.Provider {
	case "":
	case "azure":
		if c.Summary.AzureEndpoint == "" || c.Summary.AzureAPIKey == "" || c.Summary.AzureDeploymentName == "" {
			return fmt.Errorf("AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_KEY and AZURE_OPENAI_DEPLOYMENT_NAME are required when SUMMARY_PROVIDER=azure")
		}
	case "gemini":
		if c.Summary.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when SUMMARY_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unsupported SUMMARY_PROVIDER %q", c.Summary.Provider)
	}
	return nil
}

// SummaryCredential 返回摘要专用模型金鑰的 provider 名称与配置，未配置时返回空。
func (c *AppConfig) SummaryCredential() (string, json.RawMessage) {
	var payload map[string]string
	switch c.Summary.Provider {
	case "azure":
		payload = map[string]string{
			"api_key":         c.Summary.AzureAPIKey,
			"endpoint":        c.Summary.AzureEndpoint,
			"deployment_name": c.Summary.AzureDeploymentName,
		}
	case "gemini":
		payload = map[string]string{"api_key": c.Summary.GeminiAPIKey}
		if c.Summary.GeminiModel != "" {
			payload["model"] = c.Summary.GeminiModel
		}
	default:
		return "", nil
	}
	raw, _ := json.Marshal(payload)
	return c.Summary.Provider, raw
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func applyFloat64(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
