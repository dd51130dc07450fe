package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 这些路径的请求体或响应体含有凭据或二进制音频，两者都不写入日志。
var bodylessPaths = map[string]bool{
	"/register":      true,
	"/token":         true,
	"/token/refresh": true,
	"/transcribe":    true,
	"/synthesize":    true,
}

// bodyLogWriter 用于捕获响应体，capture 为 false 时只透传
type bodyLogWriter struct {
	gin.ResponseWriter
	body    *bytes.Buffer
	capture bool
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if w.capture {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path
		logBody := !bodylessPaths[path]

		var requestBody []byte
		if logBody && c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer, capture: logBody}
		c.Writer = blw

		c.Next()

		responseBody := ""
		if logBody && strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "application/json") {
			responseBody = blw.body.String()
		}

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"requestBody", string(requestBody),
			"responseBody", responseBody,
		)
	}
}
