package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
)

// JWTConfig JWT 鉴权配置
type JWTConfig struct {
	Secret    string        // HMAC 签名密钥
	Issuer    string        // 可选签发者校验
	AccessTTL time.Duration // access token 有效期
}

// issueToken 签发 HS256 access token
func issueToken(cfg *JWTConfig, user *port.User, now time.Time) (string, error) {
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	claims := jwt.MapClaims{
		"sub":      user.Username,
		"user_id":  user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// authMiddleware JWT 鉴权中间件。
// 没有 Authorization 头时按匿名放行，由 requireUser 决定是否拒绝；
// 带了头但无效时直接 401。
func authMiddleware(cfg *JWTConfig, users port.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
				return
			}
			tokenStr := parts[1]

			// 解析并验证 JWT
			parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
			if cfg.Issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
			}

			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(cfg.Secret), nil
			}, parserOpts...)

			if err != nil || !token.Valid {
				applog.Warn("[Auth] Invalid JWT token", "error", err)
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid token claims")
				return
			}

			// JSON 数字解析为 float64
			rawID, _ := claims["user_id"].(float64)
			userID := int64(rawID)
			if userID <= 0 {
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Missing user_id in token")
				return
			}

			if users != nil {
				user, err := users.GetUser(r.Context(), userID)
				if err != nil {
					applog.Error("[Auth] User lookup failed", "user_id", userID, "error", err)
					writeErrorCode(w, http.StatusInternalServerError, "user_lookup_failed", "Failed to validate token user")
					return
				}
				if user == nil {
					writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "User no longer exists")
					return
				}
			}

			username, _ := claims["username"].(string)
			ctx := WithPrincipal(r.Context(), &Principal{UserID: userID, Username: username})

			applog.Debug("[Auth] Principal injected", "user_id", userID, "username", username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireUser 拒绝匿名请求
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := PrincipalFrom(r.Context()); err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
			return
		}
		next.ServeHTTP(w, r)
	})
}
