package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rolechat/internal/domain/roleplay/port"
)

// EventHandler 剧情事件 CRUD
type EventHandler struct {
	events port.EventStore
}

func NewEventHandler(events port.EventStore) *EventHandler {
	return &EventHandler{events: events}
}

func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Post("/", h.CreateEvent)
		r.Get("/session/{session_id}", h.ListSessionEvents)
		r.Get("/{id}", h.GetEvent)
		r.Put("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
	})
}

func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID      int64  `json:"role_id"`
		SessionID   int64  `json:"session_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Date        string `json:"date"`
		Tags        string `json:"tags"`
		IsActive    *bool  `json:"is_active"`
		Selected    bool   `json:"selected"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RoleID <= 0 || req.SessionID <= 0 {
		writeError(w, http.StatusBadRequest, "role_id and session_id are required")
		return
	}

	e := &port.Event{
		RoleID:      req.RoleID,
		SessionID:   req.SessionID,
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Tags:        req.Tags,
		IsActive:    req.IsActive == nil || *req.IsActive,
		Selected:    req.Selected,
	}
	if err := h.events.CreateEvent(r.Context(), e); err != nil {
		writeDomainError(w, err, "failed to create event")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *EventHandler) ListSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlID(w, r, "session_id")
	if !ok {
		return
	}
	list, err := h.events.ListEventsBySession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	e, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get event")
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var patch port.EventPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	e, err := h.events.UpdateEvent(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Event not found")
			return
		}
		writeDomainError(w, err, "failed to update event")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	e, err := h.events.DeleteEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Event not found")
			return
		}
		writeDomainError(w, err, "failed to delete event")
		return
	}
	writeJSON(w, http.StatusOK, e)
}
