package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 审批流转数
	approvalTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_transitions_total",
			Help: "Total number of approval transitions",
		},
		[]string{"tier", "action"}, // action: approved, rejected, verified, billed
	)

	// 批量操作处理的记录数
	bulkRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_records_total",
			Help: "Total number of records processed by bulk operations",
		},
		[]string{"operation", "outcome"}, // outcome: affected, skipped_self, skipped_ineligible, failed
	)

	// 单次查询返回的项目周分组数
	projectWeekGroups = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "project_week_groups",
			Help:    "Number of project-week groups returned per query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	// 超出 SLA 的请求数
	slaViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_violations_total",
			Help: "Total number of requests exceeding their SLA",
		},
		[]string{"operation"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 工时表状态分布
	timesheetsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "timesheets_by_status",
			Help: "Number of timesheets by status",
		},
		[]string{"status"},
	)

	// 已提交工时表中各层级待审批的项目记录数
	pendingApprovalTracks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "approval_pending_tracks",
			Help: "Number of project approval records awaiting a decision, by tier",
		},
		[]string{"tier"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(approvalTransitionsTotal)
	prometheus.MustRegister(bulkRecordsTotal)
	prometheus.MustRegister(projectWeekGroups)
	prometheus.MustRegister(slaViolationsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(timesheetsByStatus)
	prometheus.MustRegister(pendingApprovalTracks)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTransition 记录一次审批流转
func RecordTransition(tier, action string) {
	approvalTransitionsTotal.WithLabelValues(tier, action).Inc()
}

// RecordBulk 记录批量操作结果
func RecordBulk(operation, outcome string, count int) {
	if count <= 0 {
		return
	}
	bulkRecordsTotal.WithLabelValues(operation, outcome).Add(float64(count))
}

// ObserveProjectWeekGroups 记录分组查询返回数量
func ObserveProjectWeekGroups(count int) {
	projectWeekGroups.Observe(float64(count))
}

// RecordSLAViolation 记录一次 SLA 违规
func RecordSLAViolation(operation string) {
	slaViolationsTotal.WithLabelValues(operation).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateTimesheetsByStatus 统计各状态工时表数量
func UpdateTimesheetsByStatus(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var rows []struct {
		Status string
		Count  int64
	}
	err := db.Table("timesheets").
		Select("status, COUNT(*) AS count").
		Where("deleted_at IS NULL").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to count timesheets: %w", err)
	}

	timesheetsByStatus.Reset()
	for _, row := range rows {
		timesheetsByStatus.WithLabelValues(row.Status).Set(float64(row.Count))
	}
	return nil
}

// UpdatePendingTracks 统计已提交工时表中各层级处于 pending 的审批轨道数
func UpdatePendingTracks(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var row struct {
		LeadPending       int64
		ManagerPending    int64
		ManagementPending int64
	}
	err := db.Table("timesheet_project_approvals AS tpa").
		Select(`COALESCE(SUM(CASE WHEN tpa.lead_status = 'pending' THEN 1 ELSE 0 END), 0) AS lead_pending,
			COALESCE(SUM(CASE WHEN tpa.manager_status = 'pending' THEN 1 ELSE 0 END), 0) AS manager_pending,
			COALESCE(SUM(CASE WHEN tpa.management_status = 'pending' THEN 1 ELSE 0 END), 0) AS management_pending`).
		Joins("JOIN timesheets ts ON ts.id = tpa.timesheet_id").
		Where("ts.status = ? AND ts.deleted_at IS NULL", "submitted").
		Scan(&row).Error
	if err != nil {
		return fmt.Errorf("failed to count pending tracks: %w", err)
	}

	pendingApprovalTracks.WithLabelValues("lead").Set(float64(row.LeadPending))
	pendingApprovalTracks.WithLabelValues("manager").Set(float64(row.ManagerPending))
	pendingApprovalTracks.WithLabelValues("management").Set(float64(row.ManagementPending))
	return nil
}
