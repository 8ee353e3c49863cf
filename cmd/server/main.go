package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"rolechat/internal/adapter/storage/avatar"
	"rolechat/internal/api"
	"rolechat/internal/app/bootstrap"
	"rolechat/internal/db/postgres"
	redisdb "rolechat/internal/db/redis"
	"rolechat/internal/domain/chat"
	"rolechat/internal/domain/memory"
	"rolechat/internal/domain/roleplay/port"
	"rolechat/internal/platform/config"
	applog "rolechat/internal/platform/log"
	"rolechat/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.Ping(); err != nil {
		applog.Fatalf("❌ Failed to ping database: %v", err)
	}
	applog.Info("✅ Connected to PostgreSQL")

	repo := postgres.NewRepository(db)
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Runtime.MigrationTimeoutSeconds)*time.Second)
	err = repo.EnsureSchema(migrateCtx)
	migrateCancel()
	if err != nil {
		applog.Fatalf("❌ Failed to ensure schema: %v", err)
	}
	applog.Info("✅ Schema ready (users, roles, chat_sessions, chat_messages, memory_memories, memory_events, model_apis)")

	registry := bootstrap.NewProviderRegistry()
	counter := memory.NewTiktokenCounter(cfg.Summary.TokenizerModel, &memory.SimpleTokenEstimator{})

	var memories port.MemoryStore = repo
	var lock memory.SummaryLock
	if rds := initRedis(cfg); rds != nil {
		defer rds.Close()
		memories = redisdb.NewMemoryCache(repo, rds, cfg.Redis.CacheTTLSeconds)
		lock = redisdb.NewSummaryLock(rds, cfg.Redis.LockTTLSeconds)
	}

	summarizer := initSummarizer(cfg, repo, memories, counter, lock, registry)

	chatSvc := chat.NewService(chat.Stores{
		Conversations: repo,
		Sessions:      repo,
		Roles:         repo,
		Memories:      memories,
		ModelAPIs:     repo,
	}, registry, summarizer, chat.Config{
		HistoryWindow: cfg.Chat.HistoryWindow,
		MaxAttempts:   cfg.Chat.MaxRetries,
		RetryBackoff:  time.Duration(cfg.Chat.RetryBackoffMs) * time.Millisecond,
		Timeout:       time.Duration(cfg.Chat.TimeoutSeconds) * time.Second,
		DefaultUserID: cfg.Chat.DefaultUserID,
		DefaultRoleID: cfg.Chat.DefaultRoleID,
	})

	avatars, uploadDir := initAvatarStore(cfg)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.JWTSecret = cfg.Auth.JWTSecret
	serverConfig.JWTIssuer = cfg.Auth.JWTIssuer
	serverConfig.AccessTokenTTL = time.Duration(cfg.Auth.AccessExpireMinutes) * time.Minute
	serverConfig.PublicBaseURL = cfg.Server.PublicBaseURL
	serverConfig.UploadDir = uploadDir
	serverConfig.MaxUploadMB = cfg.Upload.MaxFileMB

	server := api.NewServer(serverConfig, api.Deps{
		Repo:     repo,
		Memories: memories,
		Chat:     chatSvc,
		Registry: registry,
		Counter:  counter,
		Avatars:  avatars,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Runtime.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}

// initRedis 未配置或连接失败时返回 nil，记忆缓存与摘要锁随之关闭
func initRedis(cfg *config.AppConfig) *goredis.Client {
	if cfg.Redis.URL == "" {
		applog.Info("ℹ️  No REDIS_URL set, memory cache and summary lock disabled")
		return nil
	}
	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		applog.Warnf("⚠️  Redis URL invalid, memory cache disabled: %v", err)
		return nil
	}

	client := goredis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Runtime.RedisPingTimeoutSeconds)*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		applog.Warnf("⚠️  Redis ping failed: %v (memory cache disabled)", err)
		client.Close()
		return nil
	}
	applog.Info("✅ Connected to Redis for memory cache and summary lock")
	return client
}

func initSummarizer(cfg *config.AppConfig, repo *postgres.Repository, memories port.MemoryStore, counter memory.TokenCounter, lock memory.SummaryLock, registry *provider.Registry) *memory.Summarizer {
	summarizer := memory.NewSummarizer(repo, memories, counter, memory.SummarizerConfig{
		WindowSize:  cfg.Summary.WindowSize,
		Temperature: cfg.Summary.Temperature,
		MaxTokens:   cfg.Summary.MaxTokens,
	})
	if lock != nil {
		summarizer.WithLock(lock)
	}

	name, credential := cfg.SummaryCredential()
	if name == "" {
		applog.Info("ℹ️  No SUMMARY_PROVIDER set, summaries reuse the chat credential")
		return summarizer
	}
	llm, err := registry.Build(name, credential)
	if err != nil {
		applog.Warnf("⚠️  Summary provider init failed: %v (falling back to chat credential)", err)
		return summarizer
	}
	summarizer.WithProvider(llm)
	applog.Infof("✅ Dedicated summary provider initialized (provider: %s)", name)
	return summarizer
}

// initAvatarStore 返回头像存储及需要挂载到 /uploads 的本地目录
func initAvatarStore(cfg *config.AppConfig) (avatar.Store, string) {
	up := cfg.Upload
	if up.Storage == "s3" {
		store, err := avatar.NewS3Store(context.Background(), avatar.S3Config{
			Bucket:          up.S3Bucket,
			Region:          up.S3Region,
			Endpoint:        up.S3Endpoint,
			AccessKeyID:     up.S3AccessKeyID,
			SecretAccessKey: up.S3SecretAccessKey,
			PublicBaseURL:   up.S3PublicBaseURL,
			UsePathStyle:    up.S3UsePathStyle,
			KeyPrefix:       "avatars/",
		})
		if err != nil {
			applog.Fatalf("❌ Failed to init S3 avatar store: %v", err)
		}
		applog.Infof("✅ Avatar storage: s3 (bucket: %s)", up.S3Bucket)
		return store, ""
	}

	store, err := avatar.NewLocalStore(up.Dir, up.MaxFileMB)
	if err != nil {
		applog.Fatalf("❌ Failed to init local avatar store: %v", err)
	}
	applog.Infof("✅ Avatar storage: local (dir: %s)", store.Dir())
	return store, store.Dir()
}
