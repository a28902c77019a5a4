package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/himera_gate_server/internal/pkg/jwt"
	"github.com/qs3c/himera_gate_server/internal/pkg/response"
)

const (
	UserIDKey = "userID"
)

// Auth 校验聊天传输层签发的 Bearer 令牌，令牌中的用户 ID 即会话身份
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		switch {
		case errors.Is(err, jwt.ErrExpiredToken):
			response.AuthError(c, "令牌已过期")
			c.Abort()
			return
		case err != nil:
			response.AuthError(c, "认证失败")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	id, ok := c.Value(UserIDKey).(int64)
	return id, ok
}
