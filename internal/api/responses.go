package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
	"rolechat/internal/provider"
)

// APIResponse 统一 JSON 响应
type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&APIResponse{
		Code:    status,
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&APIResponse{
		Code:    status,
		Message: message,
	})
}

// writeErrorCode 带错误码的统一错误响应
func writeErrorCode(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    status,
		"error":   code,
		"message": message,
	})
}

// writeDomainError 领域错误映射为 HTTP 状态码；未知错误记录日志并返回 fallback
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var llmErr *provider.Error
	switch {
	case errors.Is(err, port.ErrNotFound):
		writeError(w, http.StatusNotFound, userMessage(err, "not found"))
	case errors.Is(err, port.ErrValidation), errors.Is(err, port.ErrConflict):
		writeError(w, http.StatusBadRequest, userMessage(err, err.Error()))
	case errors.Is(err, provider.ErrUnsupportedProvider), errors.Is(err, provider.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &llmErr):
		applog.Error("[API] LLM call failed", "provider", llmErr.Provider, "error", llmErr.Err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("模型呼叫失敗：%v", llmErr.Err))
	default:
		applog.Error("[API] "+fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func userMessage(err error, def string) string {
	var pe *port.Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return def
}

// urlID 解析路径中的数字 id，失败时写 400 并返回 false
func urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// decodeJSON 解析请求体，失败时写 400 并返回 false
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// messageBody 只有提示消息的响应体
type messageBody struct {
	Message string `json:"message"`
}
