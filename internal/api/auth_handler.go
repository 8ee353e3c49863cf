package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
)

// AuthHandler 注册、登录和密码管理
type AuthHandler struct {
	users port.UserStore
	jwt   *JWTConfig
	now   func() time.Time
}

func NewAuthHandler(users port.UserStore, jwt *JWTConfig) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, now: time.Now}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(requireUser).Get("/me", h.Me)
		r.With(requireUser).Post("/change-password", h.ChangePassword)
	})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeDomainError(w, err, "failed to hash password")
		return
	}

	user := &port.User{Username: req.Username, PasswordHash: string(hash)}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, port.ErrConflict) {
			writeError(w, http.StatusBadRequest, "使用者名稱已存在")
			return
		}
		writeDomainError(w, err, "failed to register user")
		return
	}

	applog.Info("[Auth] ✅ User registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, messageBody{Message: "註冊成功"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.users.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		writeDomainError(w, err, "failed to login")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "帳號或密碼錯誤")
		return
	}

	token, err := issueToken(h.jwt, user, h.now())
	if err != nil {
		writeDomainError(w, err, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFrom(r.Context())
	user, err := h.users.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeDomainError(w, err, "failed to get user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFrom(r.Context())
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new_password is required")
		return
	}

	user, err := h.users.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeDomainError(w, err, "failed to get user")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
		writeError(w, http.StatusBadRequest, "舊密碼錯誤")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeDomainError(w, err, "failed to hash password")
		return
	}
	if err := h.users.UpdatePassword(r.Context(), user.ID, string(hash)); err != nil {
		writeDomainError(w, err, "failed to change password")
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "密碼已更新"})
}
