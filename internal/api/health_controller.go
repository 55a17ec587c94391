package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/database"
	"gorm.io/gorm"
)

// HealthController 健康检查控制器
type HealthController struct {
	db *gorm.DB
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{db: db}
}

// Check 检查数据库连通性与表结构
// 数据库不可达或表未迁移时返回 503,负载均衡据此摘除实例
func (c *HealthController) Check(ctx *gin.Context) {
	checks := gin.H{}
	healthy := true

	switch {
	case c.db == nil:
		checks["database"] = "not configured"
	default:
		if err := database.Ping(ctx.Request.Context(), c.db); err != nil {
			healthy = false
			checks["database"] = "unhealthy: " + err.Error()
			break
		}
		checks["database"] = "healthy"

		if missing := database.MissingTables(c.db); len(missing) > 0 {
			healthy = false
			checks["schema"] = "missing tables: " + strings.Join(missing, ", ")
		} else {
			checks["schema"] = "healthy"
		}
	}

	status, httpStatus := "healthy", http.StatusOK
	if !healthy {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"service":   serviceName,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
