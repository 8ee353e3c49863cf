package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rolechat/internal/adapter/storage/avatar"
	"rolechat/internal/domain/chat"
	"rolechat/internal/domain/memory"
	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
	"rolechat/internal/provider"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	JWTSecret      string        // JWT 签名密钥（必填）
	JWTIssuer      string        // JWT 签发者（可选）
	AccessTokenTTL time.Duration // access token 有效期
	PublicBaseURL  string        // 头像 URL 前缀，为空时按请求推导
	UploadDir      string        // 本地头像目录，为空不挂载 /uploads
	MaxUploadMB    int
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "0.0.0.0",
		Port:           8000,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   3 * time.Minute, // 聊天回合内联调用模型和摘要
		AccessTokenTTL: 60 * time.Minute,
		MaxUploadMB:    10,
	}
}

// Deps 路由依赖
type Deps struct {
	Repo     port.Repository
	Memories port.MemoryStore // 可为带缓存的装饰器，为 nil 时使用 Repo
	Chat     *chat.Service
	Registry *provider.Registry
	Counter  memory.TokenCounter
	Avatars  avatar.Store
}

// Server HTTP 服务器
type Server struct {
	config  *ServerConfig
	deps    Deps
	httpSrv *http.Server
}

// NewServer 创建服务器
func NewServer(config *ServerConfig, deps Deps) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if deps.Memories == nil && deps.Repo != nil {
		deps.Memories = deps.Repo
	}
	if deps.Counter == nil {
		deps.Counter = &memory.SimpleTokenEstimator{}
	}
	if deps.Registry == nil {
		deps.Registry = provider.NewRegistry()
	}
	return &Server{config: config, deps: deps}
}

// Start 启动服务器
func (s *Server) Start() error {
	r, err := s.buildRouter()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 Role chat API server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler 返回 HTTP Handler（用于测试）
func (s *Server) Handler() http.Handler {
	r, err := s.buildRouter()
	if err != nil {
		panic(err)
	}
	return r
}

func (s *Server) buildRouter() (http.Handler, error) {
	if strings.TrimSpace(s.config.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.config.UploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.config.UploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	jwtCfg := &JWTConfig{
		Secret:    s.config.JWTSecret,
		Issuer:    s.config.JWTIssuer,
		AccessTTL: s.config.AccessTokenTTL,
	}
	images := &imageResolver{baseURL: s.config.PublicBaseURL}

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(jwtCfg, s.deps.Repo))

		NewAuthHandler(s.deps.Repo, jwtCfg).RegisterRoutes(r)
		NewChatHandler(s.deps.Chat).RegisterRoutes(r)
		NewRoleHandler(s.deps.Repo, s.deps.Avatars, images, s.config.MaxUploadMB).RegisterRoutes(r)
		NewSessionHandler(s.deps.Repo, images).RegisterRoutes(r)
		NewMemoryHandler(s.deps.Memories, s.deps.Counter).RegisterRoutes(r)
		NewEventHandler(s.deps.Repo).RegisterRoutes(r)
		NewModelAPIHandler(s.deps.Repo, s.deps.Registry).RegisterRoutes(r)
	})
	return r, nil
}

// imageResolver 将头像引用渲染为绝对 URL
type imageResolver struct {
	baseURL string
}

func (ir *imageResolver) base(r *http.Request) string {
	if ir.baseURL != "" {
		return ir.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

// role 返回副本，不修改存储对象
func (ir *imageResolver) role(r *http.Request, role *port.Role) *port.Role {
	out := *role
	out.Image = avatar.ResolveURL(ir.base(r), role.Image)
	return &out
}

func (ir *imageResolver) roles(r *http.Request, roles []*port.Role) []*port.Role {
	out := make([]*port.Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, ir.role(r, role))
	}
	return out
}

// corsMiddleware CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
