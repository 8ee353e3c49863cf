package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"rolechat/internal/domain/roleplay/port"
)

// seedSession 创建角色和会话，返回 (roleID, sessionID)
func seedSession(t *testing.T, env *testEnv) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	role := &port.Role{Name: "Alice", Image: "uploads/a.png"}
	if err := env.store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	s := &port.ChatSession{RoleID: role.ID, Title: "first", IsActive: true}
	if err := env.store.CreateSession(ctx, s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return role.ID, s.ID
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	roleID, sessionID := seedSession(t, env)

	rr := env.do(t, http.MethodPost, "/api/sessions", "", map[string]any{"role_id": 9999})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("create with unknown role status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%d", sessionID), "", map[string]any{"sessions_input": "在城堡裡"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d", rr.Code)
	}
	var s port.ChatSession
	decodeData(t, rr, &s)
	if s.SessionsInput != "在城堡裡" || s.Title != "first" {
		t.Fatalf("unexpected session: %+v", s)
	}

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/by-role/%d", roleID), "", nil)
	var list []port.ChatSession
	decodeData(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("by-role = %d", len(list))
	}

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d/role", sessionID), "", nil)
	var role port.Role
	decodeData(t, rr, &role)
	if role.Image != "http://example.com/uploads/a.png" {
		t.Fatalf("role image = %q", role.Image)
	}

	if rr := env.do(t, http.MethodDelete, fmt.Sprintf("/api/sessions/%d", sessionID), "", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d", sessionID), "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d", rr.Code)
	}
}

func TestMemoryTokenCount(t *testing.T) {
	env := newTestEnv(t)
	roleID, sessionID := seedSession(t, env)

	rr := env.do(t, http.MethodPost, "/api/memories", "", map[string]any{
		"role_id": roleID, "session_id": sessionID, "content": "abcdef",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d body = %s", rr.Code, rr.Body.String())
	}
	var m port.Memory
	decodeData(t, rr, &m)
	if m.TokenCount != 4 || !m.IsActive {
		t.Fatalf("unexpected memory: %+v", m)
	}

	path := fmt.Sprintf("/api/memories/%d", m.ID)
	rr = env.do(t, http.MethodPut, path, "", map[string]any{"content": "abcdefghi"})
	decodeData(t, rr, &m)
	if m.TokenCount != 6 {
		t.Fatalf("recounted tokens = %d", m.TokenCount)
	}

	rr = env.do(t, http.MethodPut, path, "", map[string]any{"content": "abc", "token_count": 42})
	decodeData(t, rr, &m)
	if m.TokenCount != 42 {
		t.Fatalf("explicit token_count = %d", m.TokenCount)
	}

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/memories/session/%d", sessionID), "", nil)
	var list []port.Memory
	decodeData(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("session memories = %d", len(list))
	}

	if rr := env.do(t, http.MethodDelete, path, "", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, path, "", nil)
	if rr.Code != http.StatusNotFound || errorMessage(t, rr) != "Memory not found" {
		t.Fatalf("get deleted: status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestMemoryCreateUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	roleID, _ := seedSession(t, env)
	rr := env.do(t, http.MethodPost, "/api/memories", "", map[string]any{"role_id": roleID, "session_id": 9999, "content": "x"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestEventEndpoints(t *testing.T) {
	env := newTestEnv(t)
	roleID, sessionID := seedSession(t, env)

	rr := env.do(t, http.MethodPost, "/api/events", "", map[string]any{
		"role_id": roleID, "session_id": sessionID, "title": "初遇", "date": "2024-01-01",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d", rr.Code)
	}
	var e port.Event
	decodeData(t, rr, &e)

	path := fmt.Sprintf("/api/events/%d", e.ID)
	rr = env.do(t, http.MethodPut, path, "", map[string]any{"selected": true})
	decodeData(t, rr, &e)
	if !e.Selected || e.Title != "初遇" {
		t.Fatalf("unexpected event: %+v", e)
	}

	if rr := env.do(t, http.MethodDelete, path, "", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodPut, path, "", map[string]any{"title": "x"})
	if rr.Code != http.StatusNotFound || errorMessage(t, rr) != "Event not found" {
		t.Fatalf("update deleted: status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestModelAPIEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice")
	other := env.register(t, "bob")

	rr := env.do(t, http.MethodPost, "/api/model-apis", token, map[string]any{
		"name": "mine", "provider": "stub", "config": map[string]string{"k": "v"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d body = %s", rr.Code, rr.Body.String())
	}
	var api port.ModelAPI
	decodeData(t, rr, &api)
	path := fmt.Sprintf("/api/model-apis/%d", api.ID)

	rr = env.do(t, http.MethodGet, "/api/model-apis/simple-list", token, nil)
	var items []modelAPIItem
	decodeData(t, rr, &items)
	if len(items) != 1 || items[0].Name != "mine" {
		t.Fatalf("simple list = %+v", items)
	}

	rr = env.do(t, http.MethodGet, path, other, nil)
	if rr.Code != http.StatusNotFound || errorMessage(t, rr) != "找不到金鑰" {
		t.Fatalf("foreign get: status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, path+"/test", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("test status = %d body = %s", rr.Code, rr.Body.String())
	}
	if env.llm.last == nil || env.llm.last.LastUserContent() != "hello" {
		t.Fatalf("test prompt = %+v", env.llm.last)
	}

	env.llm.err = errors.New("bad key")
	rr = env.do(t, http.MethodPost, path+"/test", token, nil)
	if rr.Code != http.StatusBadRequest || !strings.HasPrefix(errorMessage(t, rr), "測試失敗：") {
		t.Fatalf("failed test: status = %d body = %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPut, path, token, map[string]any{"name": "renamed", "is_active": false})
	decodeData(t, rr, &api)
	if api.Name != "renamed" || api.IsActive || api.Provider != "stub" {
		t.Fatalf("unexpected update: %+v", api)
	}

	rr = env.do(t, http.MethodDelete, path, token, nil)
	var msg messageBody
	decodeData(t, rr, &msg)
	if msg.Message != "已刪除" {
		t.Fatalf("delete message = %q", msg.Message)
	}
}

func TestModelAPICreateRejectsUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice")

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "unknown provider", body: map[string]any{"name": "x", "provider": "nope", "config": map[string]string{"k": "v"}}},
		{name: "missing config", body: map[string]any{"name": "x", "provider": "stub"}},
		{name: "missing name", body: map[string]any{"provider": "stub", "config": map[string]string{"k": "v"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/model-apis", token, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestDeleteDoesNotRemoveMemories(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	roleID, sessionID := seedSession(t, env)
	if _, err := env.store.AppendMessage(ctx, sessionID, port.SenderUser, "hi"); err != nil {
		t.Fatalf("append message: %v", err)
	}
	mem := &port.Memory{RoleID: roleID, SessionID: sessionID, Content: "初遇", IsActive: true}
	if err := env.store.CreateMemory(ctx, mem); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	rr := env.do(t, http.MethodDelete, fmt.Sprintf("/api/roles/delete/%d", roleID), "", nil)
	if rr.Code != http.StatusBadRequest || errorMessage(t, rr) != port.ErrRoleInUse.Error() {
		t.Fatalf("delete role in use: status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodDelete, fmt.Sprintf("/api/sessions/%d", sessionID), "", nil)
	if rr.Code != http.StatusBadRequest || errorMessage(t, rr) != port.ErrSessionInUse.Error() {
		t.Fatalf("delete session in use: status = %d body = %s", rr.Code, rr.Body.String())
	}
	if _, err := env.store.GetMemory(ctx, mem.ID); err != nil {
		t.Fatalf("memory should survive: %v", err)
	}
	if n, _ := env.store.CountMessages(ctx, sessionID); n != 1 {
		t.Fatalf("messages should survive a rejected delete, got %d", n)
	}

	if _, err := env.store.DeleteMemory(ctx, mem.ID); err != nil {
		t.Fatalf("delete memory: %v", err)
	}
	if rr := env.do(t, http.MethodDelete, fmt.Sprintf("/api/sessions/%d", sessionID), "", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete session status = %d", rr.Code)
	}
	if n, _ := env.store.CountMessages(ctx, sessionID); n != 0 {
		t.Fatalf("messages should follow their session, got %d", n)
	}
	if rr := env.do(t, http.MethodDelete, fmt.Sprintf("/api/roles/delete/%d", roleID), "", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete role status = %d body = %s", rr.Code, rr.Body.String())
	}
}
