package container

import (
	"fmt"
	"time"

	"github.com/mautops/timesheet-gin/internal/auth"
	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/mautops/timesheet-gin/internal/database"
	"github.com/mautops/timesheet-gin/internal/service"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理数据库、审批服务与认证组件
type Container struct {
	db        *gorm.DB
	logger    *logrus.Logger
	tunables  *service.Tunables
	validator *auth.TokenValidator

	history    service.HistoryService
	approval   service.ApprovalService
	submission service.SubmissionService
	grouping   service.GroupingService
	export     service.ExportService
	statistics service.StatisticsService
}

// TunablesFromConfig 将审批配置转换为服务参数
func TunablesFromConfig(cfg config.ApprovalConfig) service.ApprovalOptions {
	return service.ApprovalOptions{
		MinRejectionReasonLength: cfg.MinRejectionReasonLength,
		DefaultPageSize:          cfg.DefaultPageSize,
		MaxPageSize:              cfg.MaxPageSize,
	}
}

// NewContainer 创建依赖注入容器
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return NewContainerWithDB(cfg, db, logger), nil
}

// NewContainerWithDB 使用已有连接组装服务
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) *Container {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	tunables := service.NewTunables(TunablesFromConfig(cfg.Approval))

	history := service.NewHistoryService(db)
	grouping := service.NewGroupingService(db, logger, tunables)

	return &Container{
		db:         db,
		logger:     logger,
		tunables:   tunables,
		validator:  auth.NewTokenValidator(cfg.Auth),
		history:    history,
		approval:   service.NewApprovalService(db, history, logger, tunables),
		submission: service.NewSubmissionService(db, logger),
		grouping:   grouping,
		export:     service.NewExportService(grouping),
		statistics: service.NewStatisticsService(db),
	}
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Tunables 获取可热更新的审批参数
func (c *Container) Tunables() *service.Tunables {
	return c.tunables
}

// Validator 获取 Token 校验器
func (c *Container) Validator() *auth.TokenValidator {
	return c.validator
}

// HistoryService 获取审批历史服务
func (c *Container) HistoryService() service.HistoryService {
	return c.history
}

// ApprovalService 获取审批服务
func (c *Container) ApprovalService() service.ApprovalService {
	return c.approval
}

// SubmissionService 获取提交服务
func (c *Container) SubmissionService() service.SubmissionService {
	return c.submission
}

// GroupingService 获取项目周分组服务
func (c *Container) GroupingService() service.GroupingService {
	return c.grouping
}

// ExportService 获取导出服务
func (c *Container) ExportService() service.ExportService {
	return c.export
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statistics
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}
