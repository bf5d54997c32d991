package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marataitester/tarot_go_server/internal/pkg/jwt"
	"github.com/marataitester/tarot_go_server/internal/pkg/response"
)

const (
	AdminUserKey = "adminUser"
)

// AdminAuth 管理端 JWT 认证中间件
func AdminAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "Требуется авторизация")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "Неверный формат токена")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "Токен недействителен или истек")
			c.Abort()
			return
		}

		c.Set(AdminUserKey, claims.Subject)
		c.Next()
	}
}

// GetAdminUser 从上下文获取已认证的管理员用户名
func GetAdminUser(c *gin.Context) (string, bool) {
	user, exists := c.Get(AdminUserKey)
	if !exists {
		return "", false
	}
	name, ok := user.(string)
	return name, ok
}
