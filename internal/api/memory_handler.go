package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rolechat/internal/domain/memory"
	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
)

// MemoryHandler 长期记忆 CRUD
type MemoryHandler struct {
	memories port.MemoryStore
	counter  memory.TokenCounter
}

func NewMemoryHandler(memories port.MemoryStore, counter memory.TokenCounter) *MemoryHandler {
	return &MemoryHandler{memories: memories, counter: counter}
}

func (h *MemoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/memories", func(r chi.Router) {
		r.Get("/", h.ListMemories)
		r.Post("/", h.CreateMemory)
		r.Get("/session/{session_id}", h.ListSessionMemories)
		r.Get("/{id}", h.GetMemory)
		r.Put("/{id}", h.UpdateMemory)
		r.Delete("/{id}", h.DeleteMemory)
	})
}

// countTokens 计数失败时记 0，不阻断写入
func (h *MemoryHandler) countTokens(text string) int {
	n, err := h.counter.CountTokens(text)
	if err != nil {
		applog.Warn("[API/Memories] ⚠️ Token count failed", "error", err)
		return 0
	}
	return n
}

func (h *MemoryHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID    int64  `json:"role_id"`
		SessionID int64  `json:"session_id"`
		Content   string `json:"content"`
		Section   string `json:"section"`
		Tags      string `json:"tags"`
		IsActive  *bool  `json:"is_active"`
		Selected  bool   `json:"selected"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RoleID <= 0 || req.SessionID <= 0 {
		writeError(w, http.StatusBadRequest, "role_id and session_id are required")
		return
	}

	m := &port.Memory{
		RoleID:     req.RoleID,
		SessionID:  req.SessionID,
		Content:    req.Content,
		TokenCount: h.countTokens(req.Content),
		Section:    req.Section,
		Tags:       req.Tags,
		IsActive:   req.IsActive == nil || *req.IsActive,
		Selected:   req.Selected,
	}
	if err := h.memories.CreateMemory(r.Context(), m); err != nil {
		writeDomainError(w, err, "failed to create memory")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	list, err := h.memories.ListMemories(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list memories")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *MemoryHandler) ListSessionMemories(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlID(w, r, "session_id")
	if !ok {
		return
	}
	list, err := h.memories.ListMemoriesBySession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "failed to list memories")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.memories.GetMemory(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get memory")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Memory not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var patch port.MemoryPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	// 内容变化但未显式给出 token_count 时重新计数
	if patch.Content != nil && patch.TokenCount == nil {
		n := h.countTokens(*patch.Content)
		patch.TokenCount = &n
	}

	m, err := h.memories.UpdateMemory(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Memory not found")
			return
		}
		writeDomainError(w, err, "failed to update memory")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.memories.DeleteMemory(r.Context(), id)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Memory not found")
			return
		}
		writeDomainError(w, err, "failed to delete memory")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
