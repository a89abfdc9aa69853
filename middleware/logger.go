// middleware/logger.go
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

// AccessLog 请求日志，5xx 记为错误
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		switch {
		case status >= 500:
			logger.Error("[%s] %s %d %s %v %s", c.Request.Method, path, status, c.ClientIP(), latency, c.Errors.String())
		case status >= 400:
			logger.Warn("[%s] %s %d %s %v", c.Request.Method, path, status, c.ClientIP(), latency)
		default:
			logger.Info("[%s] %s %d %s %v", c.Request.Method, path, status, c.ClientIP(), latency)
		}
	}
}

// Recovery 捕获处理器中的 panic 并返回 500
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		logger.Error("panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "msg": "服务器内部错误"})
	})
}
