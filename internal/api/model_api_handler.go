package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rolechat/internal/domain/chat"
	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
	"rolechat/internal/provider"
)

// modelAPITestTimeout 连通性测试超时
const modelAPITestTimeout = 30 * time.Second

// ModelAPIHandler 用户模型金鑰管理，全部路由需要登录
type ModelAPIHandler struct {
	apis     port.ModelAPIStore
	registry *provider.Registry
}

func NewModelAPIHandler(apis port.ModelAPIStore, registry *provider.Registry) *ModelAPIHandler {
	return &ModelAPIHandler{apis: apis, registry: registry}
}

func (h *ModelAPIHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/model-apis", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/simple-list", h.SimpleList)
		r.Get("/", h.ListModelAPIs)
		r.Post("/", h.CreateModelAPI)
		r.Get("/{id}", h.GetModelAPI)
		r.Put("/{id}", h.UpdateModelAPI)
		r.Delete("/{id}", h.DeleteModelAPI)
		r.Post("/{id}/test", h.TestModelAPI)
	})
}

type modelAPIItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *ModelAPIHandler) SimpleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.apis.ListModelAPIs(r.Context(), MustPrincipalFrom(r.Context()).UserID)
	if err != nil {
		writeDomainError(w, err, "failed to list model apis")
		return
	}
	items := make([]modelAPIItem, 0, len(list))
	for _, m := range list {
		items = append(items, modelAPIItem{ID: m.ID, Name: m.Name})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ModelAPIHandler) ListModelAPIs(w http.ResponseWriter, r *http.Request) {
	list, err := h.apis.ListModelAPIs(r.Context(), MustPrincipalFrom(r.Context()).UserID)
	if err != nil {
		writeDomainError(w, err, "failed to list model apis")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ModelAPIHandler) CreateModelAPI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		Provider string          `json:"provider"`
		Config   json.RawMessage `json:"config"`
		IsActive *bool           `json:"is_active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	m := &port.ModelAPI{
		UserID:   MustPrincipalFrom(r.Context()).UserID,
		Name:     strings.TrimSpace(req.Name),
		Provider: strings.ToLower(strings.TrimSpace(req.Provider)),
		Config:   req.Config,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if m.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	// 保存前校验 provider 与 config 能构建出客户端
	if _, err := chat.BuildProvider(h.registry, m); err != nil {
		writeDomainError(w, err, "invalid model api")
		return
	}

	if err := h.apis.CreateModelAPI(r.Context(), m); err != nil {
		writeDomainError(w, err, "failed to create model api")
		return
	}
	applog.Info("[API/ModelAPIs] ✅ Model API created", "id", m.ID, "provider", m.Provider, "user_id", m.UserID)
	writeJSON(w, http.StatusOK, m)
}

// load 读取当前用户的金鑰，不存在时写 404
func (h *ModelAPIHandler) load(w http.ResponseWriter, r *http.Request) (*port.ModelAPI, bool) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return nil, false
	}
	m, err := h.apis.GetModelAPI(r.Context(), id, MustPrincipalFrom(r.Context()).UserID)
	if err != nil {
		writeDomainError(w, err, "failed to get model api")
		return nil, false
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "找不到金鑰")
		return nil, false
	}
	return m, true
}

func (h *ModelAPIHandler) GetModelAPI(w http.ResponseWriter, r *http.Request) {
	if m, ok := h.load(w, r); ok {
		writeJSON(w, http.StatusOK, m)
	}
}

func (h *ModelAPIHandler) UpdateModelAPI(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	var patch port.ModelAPIPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if len(patch.Config) > 0 {
		probe := *existing
		patch.Apply(&probe)
		if _, err := chat.BuildProvider(h.registry, &probe); err != nil {
			writeDomainError(w, err, "invalid model api")
			return
		}
	}

	m, err := h.apis.UpdateModelAPI(r.Context(), existing.ID, existing.UserID, patch)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "找不到金鑰")
			return
		}
		writeDomainError(w, err, "failed to update model api")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ModelAPIHandler) DeleteModelAPI(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.apis.DeleteModelAPI(r.Context(), existing.ID, existing.UserID); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "找不到金鑰")
			return
		}
		writeDomainError(w, err, "failed to delete model api")
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "已刪除"})
}

// TestModelAPI 发送一条 hello 验证金鑰可用
func (h *ModelAPIHandler) TestModelAPI(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}
	llm, err := chat.BuildProvider(h.registry, m)
	if err != nil {
		writeError(w, http.StatusBadRequest, "測試失敗："+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), modelAPITestTimeout)
	defer cancel()
	_, err = llm.Complete(ctx, &provider.CompletionRequest{
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: "hello"}},
		MaxTokens: 16,
	})
	if err != nil {
		applog.Warn("[API/ModelAPIs] ⚠️ Connectivity test failed", "id", m.ID, "provider", m.Provider, "error", err)
		writeError(w, http.StatusBadRequest, "測試失敗："+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
