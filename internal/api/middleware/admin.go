package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/pkg/response"
)

// AdminOnly 仅允许配置中的管理员访问，需挂在 Auth 之后
func AdminOnly(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}
		if !cfg.IsAdmin(userID) {
			response.PermissionError(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}
