package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/mautops/timesheet-gin/internal/metrics"
	"github.com/sirupsen/logrus"
)

// SLA 操作分类
const (
	OperationApproval = "approval"
	OperationBulk     = "bulk"
	OperationQuery    = "query"
	OperationExport   = "export"
	OperationUnknown  = "unknown"
)

// getOperation 根据路由模板判断操作类型
func getOperation(c *gin.Context) string {
	path := c.FullPath()
	method := c.Request.Method

	switch {
	case path == "":
		return OperationUnknown
	case strings.HasSuffix(path, "/export"):
		return OperationExport
	case strings.Contains(path, "/bulk/"), strings.HasPrefix(path, "/api/v1/project-weeks/"):
		return OperationBulk
	case strings.HasPrefix(path, "/api/v1/timesheets/") && method != "GET":
		return OperationApproval
	case strings.HasPrefix(path, "/api/v1/") && method == "GET":
		return OperationQuery
	default:
		return OperationUnknown
	}
}

// expectedDuration 获取操作的响应时间上限,0 表示不检查
func expectedDuration(operation string, cfg config.SLAConfig) time.Duration {
	switch operation {
	case OperationApproval:
		return cfg.ApprovalMaxTime
	case OperationBulk:
		return cfg.BulkMaxTime
	case OperationQuery:
		return cfg.QueryMaxTime
	case OperationExport:
		return cfg.ExportMaxTime
	default:
		return 0
	}
}

// CheckSLA 检查 SLA
func CheckSLA(operation string, duration time.Duration, cfg config.SLAConfig) bool {
	expected := expectedDuration(operation, cfg)
	return expected <= 0 || duration <= expected
}

// SLAMonitorMiddleware SLA 监控中间件
// 响应已写出,违规只计入指标并记录告警日志
func SLAMonitorMiddleware(cfg config.SLAConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		operation := getOperation(c)
		duration := time.Since(start)
		if CheckSLA(operation, duration, cfg) {
			return
		}

		metrics.RecordSLAViolation(operation)
		GetLogger().WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"operation":  operation,
			"path":       c.FullPath(),
			"method":     c.Request.Method,
			"duration":   duration.String(),
			"expected":   expectedDuration(operation, cfg).String(),
		}).Warn("SLA violation")
	}
}
