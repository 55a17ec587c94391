package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE timesheets (id TEXT PRIMARY KEY, status TEXT, deleted_at DATETIME)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO timesheets (id, status, deleted_at) VALUES
		('ts-1', 'submitted', NULL),
		('ts-2', 'submitted', NULL),
		('ts-3', 'frozen', NULL),
		('ts-4', 'frozen', '2025-01-01 00:00:00')`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE timesheet_project_approvals (
		id TEXT PRIMARY KEY, timesheet_id TEXT, lead_status TEXT, manager_status TEXT, management_status TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO timesheet_project_approvals VALUES
		('a-1', 'ts-1', 'pending', 'pending', 'pending'),
		('a-2', 'ts-2', 'approved', 'pending', 'pending'),
		('a-3', 'ts-2', 'not_required', 'approved', 'pending'),
		('a-4', 'ts-3', 'approved', 'approved', 'pending')`).Error)
	return db
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(approvalTransitionsTotal.WithLabelValues("manager", "approved"))
	RecordTransition("manager", "approved")
	RecordTransition("manager", "approved")
	assert.Equal(t, before+2, testutil.ToFloat64(approvalTransitionsTotal.WithLabelValues("manager", "approved")))
}

// TestRecordBulk 计数为 0 时不产生样本
func TestRecordBulk(t *testing.T) {
	before := testutil.ToFloat64(bulkRecordsTotal.WithLabelValues("approve_project_week", "affected"))
	RecordBulk("approve_project_week", "affected", 3)
	RecordBulk("approve_project_week", "affected", 0)
	assert.Equal(t, before+3, testutil.ToFloat64(bulkRecordsTotal.WithLabelValues("approve_project_week", "affected")))
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(apiRequestsTotal.WithLabelValues("GET", "/api/v1/project-weeks", "OK"))
	RecordAPIRequest("GET", "/api/v1/project-weeks", http.StatusOK, 0.01)
	assert.Equal(t, before+1, testutil.ToFloat64(apiRequestsTotal.WithLabelValues("GET", "/api/v1/project-weeks", "OK")))
}

func TestUpdateTimesheetsByStatus(t *testing.T) {
	db := openDB(t)
	require.NoError(t, UpdateTimesheetsByStatus(db))

	assert.Equal(t, float64(2), testutil.ToFloat64(timesheetsByStatus.WithLabelValues("submitted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(timesheetsByStatus.WithLabelValues("frozen")))

	assert.Error(t, UpdateTimesheetsByStatus(nil))
}

// TestUpdatePendingTracks 只统计 submitted 状态的工时表
func TestUpdatePendingTracks(t *testing.T) {
	db := openDB(t)
	require.NoError(t, UpdatePendingTracks(db))
	assert.Equal(t, float64(1), testutil.ToFloat64(pendingApprovalTracks.WithLabelValues("lead")))
	assert.Equal(t, float64(2), testutil.ToFloat64(pendingApprovalTracks.WithLabelValues("manager")))
	assert.Equal(t, float64(3), testutil.ToFloat64(pendingApprovalTracks.WithLabelValues("management")))

	assert.Error(t, UpdatePendingTracks(nil))
}

func TestUpdateDatabaseConnections(t *testing.T) {
	db := openDB(t)
	require.NoError(t, UpdateDatabaseConnections(db))
	assert.Equal(t, float64(1), testutil.ToFloat64(databaseConnectionsMax))

	assert.Error(t, UpdateDatabaseConnections(nil))
}

func TestCollector_StartStop(t *testing.T) {
	db := openDB(t)
	timesheetsByStatus.Reset()
	pendingApprovalTracks.Reset()
	collector := NewCollector(db, logrus.New(), 10*time.Millisecond)
	collector.Start()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(timesheetsByStatus.WithLabelValues("submitted")) == 2 &&
			testutil.ToFloat64(pendingApprovalTracks.WithLabelValues("management")) == 3
	}, time.Second, 10*time.Millisecond)
	collector.Stop()
}

// TestCollector_LogsFailures 查询失败只记录日志,采集循环不退出
func TestCollector_LogsFailures(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	log, hook := test.NewNullLogger()
	collector := NewCollector(db, log, time.Hour)
	collector.collectOnce()

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Data, "metric")
}

func TestHandler(t *testing.T) {
	ObserveProjectWeekGroups(3)
	RecordTransition("management", "verified")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP approval_transitions_total")
	assert.Contains(t, w.Body.String(), "project_week_groups_bucket")
}
