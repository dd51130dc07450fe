// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/model"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// respondOK 写出统一的成功响应。
func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

// respondError 把服务层错误转换为统一的错误响应。内部错误只记录日志，不向调用方暴露原因。
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)
	if status >= http.StatusInternalServerError {
		log.Errorw("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"kind", string(kind),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    status,
		"error":   string(kind),
		"message": apperr.DetailOf(err),
	})
}

// currentUser 取出 AuthMiddleware 放入上下文的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil
}

// mustUser 在路由未挂载认证中间件时返回 Unauthorized。
func mustUser(c *gin.Context) (*model.User, bool) {
	user, ok := currentUser(c)
	if !ok {
		log.Errorf("[Handler] 无法从 Gin 上下文中获取用户信息, path: %s", c.Request.URL.Path)
		respondError(c, apperr.New(apperr.Unauthorized, "Could not validate credentials"))
	}
	return user, ok
}
