package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/auth"
	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/mautops/timesheet-gin/internal/metrics"
	"gorm.io/gorm"
)

// Handlers 路由依赖的控制器与校验器
type Handlers struct {
	DB          *gorm.DB
	Validator   *auth.TokenValidator
	Timesheets  *TimesheetController
	ProjectWeek *ProjectWeekController
	Statistics  *StatisticsController
}

// SetupRoutes 配置路由
func SetupRoutes(cfg *config.Config, h Handlers) *gin.Engine {
	if err := RegisterValidations(); err != nil {
		GetLogger().WithError(err).Error("Failed to register request validations")
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(RequestIDMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}
	router.Use(RequestLogMiddleware())
	router.Use(SLAMonitorMiddleware(cfg.SLA))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(ErrorHandlerMiddleware())

	healthController := NewHealthController(h.DB)
	router.GET("/health", healthController.Check)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(auth.AuthMiddleware(h.Validator))
	v1.Use(RateLimitMiddleware(cfg.RateLimit))
	{
		timesheets := v1.Group("/timesheets")
		{
			timesheets.POST("/bulk/verify", h.Timesheets.BulkVerify)
			timesheets.POST("/bulk/bill", h.Timesheets.BulkBill)
			timesheets.POST("/:id/submit", h.Timesheets.Submit)
			timesheets.GET("/:id/history", h.Timesheets.History)
			timesheets.POST("/:id/projects/:projectId/approve", h.Timesheets.Approve)
			timesheets.POST("/:id/projects/:projectId/reject", h.Timesheets.Reject)
			timesheets.PUT("/:id/projects/:projectId/billable-adjustment", h.Timesheets.UpdateBillableAdjustment)
		}

		projectWeeks := v1.Group("/project-weeks")
		{
			projectWeeks.GET("", h.ProjectWeek.List)
			projectWeeks.GET("/export", h.ProjectWeek.Export)
			projectWeeks.POST("/approve", h.ProjectWeek.Approve)
			projectWeeks.POST("/reject", h.ProjectWeek.Reject)
			projectWeeks.POST("/freeze", h.ProjectWeek.Freeze)
		}

		v1.GET("/leads/submit-check", h.ProjectWeek.LeadSubmitCheck)
		v1.GET("/statistics", h.Statistics.Get)
	}

	// 未匹配的路由返回 JSON 而不是 HTML
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
