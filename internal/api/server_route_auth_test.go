package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rolechat/internal/adapter/storage/avatar"
	"rolechat/internal/db/memstore"
	"rolechat/internal/domain/chat"
	"rolechat/internal/domain/roleplay/port"
	"rolechat/internal/provider"
)

const testSecret = "test-secret"

type stubProvider struct {
	reply string
	err   error
	calls int
	last  *provider.CompletionRequest
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	p.calls++
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &provider.CompletionResponse{Content: p.reply}, nil
}

type testEnv struct {
	store   *memstore.Store
	llm     *stubProvider
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{store: memstore.New(), llm: &stubProvider{reply: "你好呀"}}

	registry := provider.NewRegistry()
	registry.Register("stub", func(json.RawMessage) (provider.LLMProvider, error) { return env.llm, nil })

	avatars, err := avatar.NewLocalStore(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}

	svc := chat.NewService(chat.Stores{
		Conversations: env.store,
		Sessions:      env.store,
		Roles:         env.store,
		Memories:      env.store,
		ModelAPIs:     env.store,
	}, registry, nil, chat.DefaultConfig())

	cfg := DefaultServerConfig()
	cfg.JWTSecret = testSecret
	env.handler = NewServer(cfg, Deps{
		Repo:     env.store,
		Chat:     svc,
		Registry: registry,
		Avatars:  avatars,
	}).Handler()
	return env
}

// do 发送 JSON 请求，token 为空时匿名
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

// register 注册并登录，返回 token
func (env *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "pw-" + username}
	if rr := env.do(t, http.MethodPost, "/auth/register", "", creds); rr.Code != http.StatusOK {
		t.Fatalf("register status = %d, body = %s", rr.Code, rr.Body.String())
	}
	rr := env.do(t, http.MethodPost, "/auth/login", "", creds)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decodeData(t, rr, &out)
	return out.AccessToken
}

// decodeData 解析统一响应中的 data 字段
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	if v != nil {
		if err := json.Unmarshal(resp.Data, v); err != nil {
			t.Fatalf("decode data: %v (%s)", err, resp.Data)
		}
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v (%s)", err, rr.Body.String())
	}
	return resp.Message
}

func TestBuildRouterRequiresSecret(t *testing.T) {
	server := NewServer(DefaultServerConfig(), Deps{Repo: memstore.New()})
	if _, err := server.buildRouter(); err == nil {
		t.Fatal("expected error without JWT secret")
	}
}

func TestAnonymousRoutesBypassJWT(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "health", method: http.MethodGet, path: "/health"},
		{name: "list roles", method: http.MethodGet, path: "/api/roles/list"},
		{name: "public roles", method: http.MethodGet, path: "/api/roles/public"},
		{name: "list sessions", method: http.MethodGet, path: "/api/sessions"},
		{name: "list memories", method: http.MethodGet, path: "/api/memories"},
		{name: "list events", method: http.MethodGet, path: "/api/events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, "", nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200 for %s, got %d (%s)", tt.path, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestProtectedRoutesStillRequireJWT(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "me", method: http.MethodGet, path: "/auth/me"},
		{name: "change password", method: http.MethodPost, path: "/auth/change-password"},
		{name: "my roles", method: http.MethodGet, path: "/api/roles/my"},
		{name: "chatting roles", method: http.MethodGet, path: "/api/roles/chatting"},
		{name: "create role", method: http.MethodPost, path: "/api/roles/create"},
		{name: "model apis", method: http.MethodGet, path: "/api/model-apis"},
		{name: "model api simple list", method: http.MethodGet, path: "/api/model-apis/simple-list"},
		{name: "model api test", method: http.MethodPost, path: "/api/model-apis/1/test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, "", nil)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 for protected route %s, got %d", tt.path, rr.Code)
			}
		})
	}
}

func TestInvalidTokenRejectedOnAnyRoute(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/roles/list", "not-a-jwt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/roles/list", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-bearer scheme, got %d", rec.Code)
	}
}

func TestTokenForDeletedUserRejected(t *testing.T) {
	env := newTestEnv(t)
	token, err := issueToken(&JWTConfig{Secret: testSecret}, &port.User{ID: 999, Username: "ghost"}, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rr := env.do(t, http.MethodGet, "/auth/me", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "User no longer exists") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice")
	user, _ := env.store.GetUserByUsername(context.Background(), "alice")

	expired, err := issueToken(&JWTConfig{Secret: testSecret, AccessTTL: time.Minute}, user, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if rr := env.do(t, http.MethodGet, "/auth/me", expired, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/auth/me", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for fresh token, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodOptions, "/api/chat/send", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}
