package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/auth"
	"github.com/mautops/timesheet-gin/internal/metrics"
	"github.com/sirupsen/logrus"
)

// unmatchedRoute 未匹配路由的指标标签,避免任意路径撑爆标签基数
const unmatchedRoute = "unmatched"

// RequestLogMiddleware 记录请求日志与请求指标
// 探活与指标抓取只在 debug 级别输出
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordAPIRequest(c.Request.Method, route, status, latency.Seconds())

		fields := logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"route":      route,
			"path":       c.Request.URL.Path,
			"status":     status,
			"bytes":      c.Writer.Size(),
			"latency":    latency.String(),
			"ip":         c.ClientIP(),
		}
		if identity, ok := auth.IdentityFromContext(c); ok {
			fields["user_id"] = identity.UserID
			fields["role"] = string(identity.Role)
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		entry := GetLogger().WithFields(fields)

		switch {
		case untracedPaths[c.Request.URL.Path]:
			entry.Debug("API request")
		case status >= 500:
			entry.Error("API request")
		case status >= 400:
			entry.Warn("API request")
		default:
			entry.Info("API request")
		}
	}
}
