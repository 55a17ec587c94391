package service_test

import (
	"testing"

	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	exec := f.user("exec-1", model.RoleManagement)
	alice := f.user("emp-1", model.RoleEmployee)
	bob := f.user("emp-2", model.RoleEmployee)
	f.project("proj-s", projectOpts{managerID: mgr.UserID})

	approved := f.submitted(alice, testWeek, map[string]float64{"proj-s": 8})
	rejected := f.submitted(bob, testWeek, map[string]float64{"proj-s": 6})
	f.draft(alice.UserID, testWeek.AddDate(0, 0, 7), map[string]float64{"proj-s": 4})

	_, err := f.approval.ApproveTimesheetForProject(f.ctx, approved, "proj-s", mgr)
	require.NoError(t, err)
	_, err = f.approval.RejectTimesheetForProject(f.ctx, rejected, "proj-s", mgr, "please split by task")
	require.NoError(t, err)

	stats := service.NewStatisticsService(f.db)
	got, err := stats.GetStatistics(f.ctx, exec, service.StatisticsFilter{})
	require.NoError(t, err)

	require.Len(t, got.ByStatus, 3)
	assert.Equal(t, service.TimesheetStatisticsByStatus{Status: "draft", Count: 1}, *got.ByStatus[0])
	assert.Equal(t, service.TimesheetStatisticsByStatus{Status: "manager_approved", Count: 1}, *got.ByStatus[1])
	assert.Equal(t, service.TimesheetStatisticsByStatus{Status: "manager_rejected", Count: 1}, *got.ByStatus[2])

	require.Len(t, got.ByWeek, 2)
	assert.Equal(t, "2025-01-13", got.ByWeek[0].WeekStart)
	assert.Equal(t, int64(1), got.ByWeek[0].Count)
	assert.Equal(t, "2025-01-06", got.ByWeek[1].WeekStart)
	assert.Equal(t, int64(2), got.ByWeek[1].Count)

	approvals := got.Approvals
	assert.Equal(t, int64(2), approvals.TotalActions)
	assert.Equal(t, int64(1), approvals.ApprovedCount)
	assert.Equal(t, int64(1), approvals.RejectedCount)
	assert.InDelta(t, 50.0, approvals.ApprovalRate, 0.001)
	require.Len(t, approvals.ByTier, 3)
	assert.Equal(t, service.TierStatistics{Tier: "manager", ApprovedCount: 1, RejectedCount: 1, ApprovalRate: 50}, approvals.ByTier[1])
	assert.Equal(t, service.TierStatistics{Tier: "lead"}, approvals.ByTier[0])
}

// TestStatistics_WeekFilter 周范围同时约束工时表与审批动作时间
func TestStatistics_WeekFilter(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	exec := f.user("exec-1", model.RoleManagement)
	alice := f.user("emp-1", model.RoleEmployee)
	f.project("proj-s", projectOpts{managerID: mgr.UserID})

	tsID := f.submitted(alice, testWeek, map[string]float64{"proj-s": 8})
	f.draft(alice.UserID, testWeek.AddDate(0, 0, 14), map[string]float64{"proj-s": 8})
	_, err := f.approval.ApproveTimesheetForProject(f.ctx, tsID, "proj-s", mgr)
	require.NoError(t, err)

	stats := service.NewStatisticsService(f.db)
	got, err := stats.GetStatistics(f.ctx, exec, service.StatisticsFilter{WeekFrom: testWeek, WeekTo: testWeek})
	require.NoError(t, err)

	assert.Equal(t, "2025-01-06", got.WeekFrom)
	require.Len(t, got.ByWeek, 1)
	assert.Equal(t, int64(1), got.ByWeek[0].Count)
	// 审批动作发生在当前时间,不在 2025-01 的范围内
	assert.Equal(t, int64(0), got.Approvals.TotalActions)
	assert.Zero(t, got.Approvals.ApprovalRate)
}

func TestStatistics_Refusals(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	exec := f.user("exec-1", model.RoleManagement)
	stats := service.NewStatisticsService(f.db)

	_, err := stats.GetStatistics(f.ctx, mgr, service.StatisticsFilter{})
	assert.True(t, service.IsKind(err, service.KindAuthorization))

	_, err = stats.GetStatistics(f.ctx, exec, service.StatisticsFilter{WeekFrom: testWeek, WeekTo: testWeek.AddDate(0, 0, -7)})
	assert.True(t, service.IsKind(err, service.KindValidation))
}
