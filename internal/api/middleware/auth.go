package middleware

import (
	"Clubhouse/internal/pkg/consts"
	"Clubhouse/internal/pkg/redis"
	"Clubhouse/internal/pkg/response"
	"Clubhouse/internal/pkg/security"
	"Clubhouse/internal/service"
	"context"
	log "log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey 当前登录用户在 gin.Context 中的键
const UserIDKey = "user_id"

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func AuthMiddleware(tm *security.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Fail(c, response.Unauthorized, service.ErrMissingCredentials.Error())
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		signature, err := security.ExtractSignature(tokenString)
		if err != nil {
			response.Fail(c, response.Unauthorized, service.ErrTokenInvalid.Error())
			c.Abort()
			return
		}

		// 已注销的 Token 签名在黑名单中
		if redis.Enabled() {
			value, err := redis.GetValue(c.Request.Context(), consts.JWTBlacklistKey+signature)
			if err != nil {
				log.WarnContext(c.Request.Context(), "Token blacklist lookup failed", "err", err)
			} else if value != "" {
				response.Fail(c, response.Unauthorized, service.ErrTokenInvalid.Error())
				c.Abort()
				return
			}
		}

		claims, err := tm.ValidateToken(tokenString)
		if err != nil {
			response.Fail(c, response.Unauthorized, service.ErrTokenInvalid.Error())
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)

		newCtx := context.WithValue(c.Request.Context(), UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(newCtx)

		c.Next()
	}
}
