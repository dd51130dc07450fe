// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它从 Authorization 头中提取 bearer token，解析出用户并存入 Gin 的上下文。
func AuthMiddleware(userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abortUnauthorized(c)
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))

		user, err := userService.ResolveToken(c.Request.Context(), tokenString)
		if err != nil {
			log.Warnf("AuthMiddleware: token 校验失败, path: %s, error: %v", c.Request.URL.Path, err)
			abortUnauthorized(c)
			return
		}

		// 后续处理函数通过 "user" 取得完整的 User 对象，登出时需要原始 token
		c.Set("user", user)
		c.Set("token", tokenString)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"error":   string(apperr.Unauthorized),
		"message": "Could not validate credentials",
	})
}
