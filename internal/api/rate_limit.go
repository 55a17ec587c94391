package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/config"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware 按调用者限流,已认证请求按用户,否则按客户端 IP
func RateLimitMiddleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var limiters sync.Map
	limiterFor := func(key string) *rate.Limiter {
		if l, ok := limiters.Load(key); ok {
			return l.(*rate.Limiter)
		}
		l, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst))
		return l.(*rate.Limiter)
	}

	return func(c *gin.Context) {
		key := c.GetString("user_id")
		if key == "" {
			key = c.ClientIP()
		}
		if !limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    429,
				Message: "too many requests",
			})
			return
		}
		c.Next()
	}
}
