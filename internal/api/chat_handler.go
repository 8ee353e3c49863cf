package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rolechat/internal/domain/chat"
)

// timestampLayout 回复时间戳格式（UTC）
const timestampLayout = "2006-01-02T15:04:05Z"

// ChatHandler 聊天 API
type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/send", h.Send)
		r.Get("/{talk_id}/history", h.History)
		r.Put("/message/{id}", h.EditMessage)
		r.Delete("/message/{id}", h.DeleteMessage)
	})
}

type sendRequest struct {
	TalkID           int64   `json:"talk_id"`
	UserMessage      string  `json:"user_message"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	ModelAPIID       int64   `json:"model_api_id"`
	UseSessionInput  *bool   `json:"use_session_input"`
	RoleID           *int64  `json:"role_id"`
}

type sendResponse struct {
	*chat.SendResult
	Timestamp string `json:"timestamp"`
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Send(r.Context(), chat.SendRequest{
		TalkID:           req.TalkID,
		UserMessage:      req.UserMessage,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		ModelAPIID:       req.ModelAPIID,
		UseSessionInput:  req.UseSessionInput,
		RoleID:           req.RoleID,
		UserID:           principalUserID(r.Context()),
	})
	if err != nil {
		writeDomainError(w, err, "failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{
		SendResult: res,
		Timestamp:  res.Timestamp.UTC().Format(timestampLayout),
	})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	talkID, ok := urlID(w, r, "talk_id")
	if !ok {
		return
	}
	limit, offset := 10, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	hist, err := h.svc.History(r.Context(), talkID, limit, offset)
	if err != nil {
		writeDomainError(w, err, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		NewMessage string `json:"new_message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.EditMessage(r.Context(), id, req.NewMessage)
	if err != nil {
		writeDomainError(w, err, "failed to edit message")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteMessage(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to delete message")
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Message " + strconv.FormatInt(id, 10) + " deleted successfully"})
}
