package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rolechat/internal/domain/roleplay/port"
)

// SessionHandler 会话 API
type SessionHandler struct {
	repo   port.Repository
	images *imageResolver
}

func NewSessionHandler(repo port.Repository, images *imageResolver) *SessionHandler {
	return &SessionHandler{repo: repo, images: images}
}

func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.CreateSession)
		r.Get("/by-role/{role_id}", h.ListSessionsByRole)
		r.Get("/{id}", h.GetSession)
		r.Put("/{id}", h.UpdateSession)
		r.Delete("/{id}", h.DeleteSession)
		r.Get("/{id}/role", h.GetSessionRole)
	})
}

func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) ListSessionsByRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := urlID(w, r, "role_id")
	if !ok {
		return
	}
	sessions, err := h.repo.ListSessionsByRole(r.Context(), roleID)
	if err != nil {
		writeDomainError(w, err, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID        int64  `json:"role_id"`
		UserID        *int64 `json:"user_id"`
		Title         string `json:"title"`
		Rule          string `json:"rule"`
		SessionsInput string `json:"sessions_input"`
		IsActive      *bool  `json:"is_active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RoleID <= 0 {
		writeError(w, http.StatusBadRequest, "role_id is required")
		return
	}

	s := &port.ChatSession{
		RoleID:        req.RoleID,
		UserID:        req.UserID,
		Title:         req.Title,
		Rule:          req.Rule,
		SessionsInput: req.SessionsInput,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if uid := principalUserID(r.Context()); uid > 0 {
		s.UserID = &uid
	}
	if err := h.repo.CreateSession(r.Context(), s); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "角色不存在")
			return
		}
		writeDomainError(w, err, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	s, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get session")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var patch port.SessionPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	s, err := h.repo.UpdateSession(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeDomainError(w, err, "failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeDomainError(w, err, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Session deleted"})
}

func (h *SessionHandler) GetSessionRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.repo.GetRoleBySession(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get role")
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "角色不存在")
		return
	}
	writeJSON(w, http.StatusOK, h.images.role(r, role))
}
