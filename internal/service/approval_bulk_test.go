package service_test

import (
	"testing"

	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekKey(projectID string) service.ProjectWeekKey {
	return service.ProjectWeekKey{ProjectID: projectID, WeekStart: testWeek}
}

// TestBulkFreeze_FreezesApprovedAndSkipsFrozen 5 份工时表中 2 份已冻结 3 份已由 Manager 通过
func TestBulkFreeze_FreezesApprovedAndSkipsFrozen(t *testing.T) {
	f := newFixture(t)
	exec := f.user("exec-1", model.RoleManagement)
	f.user("mgr-1", model.RoleManager)
	f.project("proj-f", projectOpts{managerID: "mgr-1"})

	var approved []string
	for i, status := range []model.TimesheetStatus{
		model.StatusFrozen, model.StatusFrozen,
		model.StatusManagerApproved, model.StatusManagerApproved, model.StatusManagerApproved,
	} {
		owner := f.user(f.nextID("emp"), model.RoleEmployee)
		management := model.TrackPending
		if status == model.StatusFrozen {
			management = model.TrackApproved
		}
		id := f.seed(owner.UserID, "proj-f", testWeek, status, model.TrackNotRequired, model.TrackApproved, management)
		if i >= 2 {
			approved = append(approved, id)
		}
	}

	res, err := f.approval.BulkFreezeProjectWeek(f.ctx, weekKey("proj-f"), exec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FrozenCount)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Equal(t, 0, res.FailedCount)
	assert.Equal(t, "2025-01-06", res.WeekStart)

	for _, id := range approved {
		ts := f.timesheet(id)
		assert.Equal(t, model.StatusFrozen, ts.Status)
		assert.True(t, ts.IsFrozen)
		assert.Equal(t, model.TrackApproved, f.record(id, "proj-f").Management.Status)
		assert.Equal(t, int64(1), f.historyCount(id))
	}
}

// TestBulkFreeze_BlockedByPendingTimesheets 存在待处理工时表时整体拒绝并列出用户
func TestBulkFreeze_BlockedByPendingTimesheets(t *testing.T) {
	f := newFixture(t)
	exec := f.user("exec-1", model.RoleManagement)
	f.user("mgr-1", model.RoleManager)
	f.project("proj-f", projectOpts{managerID: "mgr-1"})

	alice := f.user("alice", model.RoleEmployee)
	bob := f.user("bob", model.RoleEmployee)
	ready := f.seed(alice.UserID, "proj-f", testWeek, model.StatusManagerApproved, model.TrackNotRequired, model.TrackApproved, model.TrackPending)
	pending := f.seed(bob.UserID, "proj-f", testWeek, model.StatusSubmitted, model.TrackNotRequired, model.TrackPending, model.TrackPending)

	_, err := f.approval.BulkFreezeProjectWeek(f.ctx, weekKey("proj-f"), exec)
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindInvalidTransition))
	assert.Contains(t, err.Error(), "User bob")

	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	blocking, ok := svcErr.Details.([]service.BlockingTimesheet)
	require.True(t, ok)
	require.Len(t, blocking, 1)
	assert.Equal(t, pending, blocking[0].TimesheetID)
	assert.Equal(t, "User bob", blocking[0].UserName)
	assert.Equal(t, string(model.StatusSubmitted), blocking[0].Status)

	// 全部不变
	assert.Equal(t, model.StatusManagerApproved, f.timesheet(ready).Status)
	assert.False(t, f.timesheet(ready).IsFrozen)
}

func TestBulkFreeze_RequiresManagement(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	f.project("proj-f", projectOpts{managerID: mgr.UserID})

	_, err := f.approval.BulkFreezeProjectWeek(f.ctx, weekKey("proj-f"), mgr)
	assert.True(t, service.IsKind(err, service.KindAuthorization))

	exec := f.user("exec-1", model.RoleManagement)
	_, err = f.approval.BulkFreezeProjectWeek(f.ctx, weekKey("proj-missing"), exec)
	assert.True(t, service.IsKind(err, service.KindNotFound))

	_, err = f.approval.BulkFreezeProjectWeek(f.ctx, service.ProjectWeekKey{ProjectID: "proj-f"}, exec)
	assert.True(t, service.IsKind(err, service.KindValidation))
}

// TestApproveProjectWeek_SkipsIneligible 已通过与前置状态不满足的记录计入跳过
func TestApproveProjectWeek_SkipsIneligible(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	f.project("proj-w", projectOpts{managerID: mgr.UserID})

	a := f.user("emp-a", model.RoleEmployee)
	b := f.user("emp-b", model.RoleEmployee)
	c := f.user("emp-c", model.RoleEmployee)
	tsA := f.seed(a.UserID, "proj-w", testWeek, model.StatusSubmitted, model.TrackNotRequired, model.TrackPending, model.TrackPending)
	tsB := f.seed(b.UserID, "proj-w", testWeek, model.StatusManagerApproved, model.TrackNotRequired, model.TrackApproved, model.TrackPending)
	tsC := f.seed(c.UserID, "proj-w", testWeek, model.StatusFrozen, model.TrackNotRequired, model.TrackApproved, model.TrackApproved)
	// 其它周的工时表不受影响
	other := f.seed(a.UserID, "proj-w", testWeek.AddDate(0, 0, 7), model.StatusSubmitted, model.TrackNotRequired, model.TrackPending, model.TrackPending)

	res, err := f.approval.ApproveProjectWeek(f.ctx, weekKey("proj-w"), mgr)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AffectedTimesheets)
	assert.Equal(t, 1, res.AffectedUsers)
	assert.Equal(t, 2, res.SkippedIneligible)
	assert.Equal(t, 0, res.SkippedSelfApprovals)

	assert.Equal(t, model.StatusManagerApproved, f.timesheet(tsA).Status)
	assert.Equal(t, model.StatusManagerApproved, f.timesheet(tsB).Status)
	assert.Equal(t, model.StatusFrozen, f.timesheet(tsC).Status)
	assert.Equal(t, model.StatusSubmitted, f.timesheet(other).Status)
}

func TestApproveProjectWeek_RequiresProjectAuthority(t *testing.T) {
	f := newFixture(t)
	f.user("mgr-1", model.RoleManager)
	outsider := f.user("mgr-2", model.RoleManager)
	employee := f.user("emp-1", model.RoleEmployee)
	f.project("proj-w", projectOpts{managerID: "mgr-1"})

	_, err := f.approval.ApproveProjectWeek(f.ctx, weekKey("proj-w"), outsider)
	assert.True(t, service.IsKind(err, service.KindAuthorization))

	_, err = f.approval.ApproveProjectWeek(f.ctx, weekKey("proj-w"), employee)
	assert.True(t, service.IsKind(err, service.KindAuthorization))

	_, err = f.approval.ApproveProjectWeek(f.ctx, service.ProjectWeekKey{WeekStart: testWeek}, outsider)
	assert.True(t, service.IsKind(err, service.KindValidation))
}

func TestBulkVerifyAndBill(t *testing.T) {
	f := newFixture(t)
	exec := f.user("exec-1", model.RoleManagement)
	mgr := f.user("mgr-1", model.RoleManager)
	f.project("proj-b", projectOpts{managerID: mgr.UserID})
	emp := f.user("emp-1", model.RoleEmployee)
	emp2 := f.user("emp-2", model.RoleEmployee)

	ready := f.seed(emp.UserID, "proj-b", testWeek, model.StatusManagerApproved, model.TrackNotRequired, model.TrackApproved, model.TrackPending)
	notReady := f.seed(emp2.UserID, "proj-b", testWeek, model.StatusSubmitted, model.TrackNotRequired, model.TrackPending, model.TrackPending)

	_, err := f.approval.BulkVerifyTimesheets(f.ctx, []string{ready}, mgr)
	assert.True(t, service.IsKind(err, service.KindAuthorization))

	res, err := f.approval.BulkVerifyTimesheets(f.ctx, []string{ready, notReady, ready, "ts-missing"}, exec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 2, res.FailedCount)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, string(model.StatusFrozen), res.Results[0].Status)
	assert.False(t, res.Results[1].Success)
	assert.NotEmpty(t, res.Results[1].Error)

	assert.True(t, f.timesheet(ready).IsFrozen)
	assert.Equal(t, model.StatusSubmitted, f.timesheet(notReady).Status)

	res, err = f.approval.BulkBillTimesheets(f.ctx, []string{ready, notReady}, exec)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailedCount)

	billed := f.timesheet(ready)
	assert.Equal(t, model.StatusBilled, billed.Status)
	assert.NotNil(t, billed.BilledAt)

	// 已计费不可再审批
	_, err = f.approval.RejectTimesheetForProject(f.ctx, ready, "proj-b", exec, "late correction needed")
	assert.True(t, service.IsKind(err, service.KindInvalidTransition))

	_, err = f.approval.BulkBillTimesheets(f.ctx, nil, exec)
	assert.True(t, service.IsKind(err, service.KindValidation))
}

func TestUpdateBillableAdjustment(t *testing.T) {
	f := newFixture(t)
	exec := f.user("exec-1", model.RoleManagement)
	mgr := f.user("mgr-1", model.RoleManager)
	outsider := f.user("mgr-2", model.RoleManager)
	lead := f.user("lead-1", model.RoleLead)
	emp := f.user("emp-1", model.RoleEmployee)
	f.project("proj-b", projectOpts{managerID: mgr.UserID, leadID: lead.UserID})

	tsID := f.seed(emp.UserID, "proj-b", testWeek, model.StatusManagerApproved, model.TrackApproved, model.TrackApproved, model.TrackPending)

	view, err := f.approval.UpdateBillableAdjustment(f.ctx, tsID, "proj-b", decimal.RequireFromString("-1.5"), mgr)
	require.NoError(t, err)
	assert.Equal(t, "8.00", view.WorkedHours)
	assert.Equal(t, "-1.50", view.BillableAdjustment)
	assert.Equal(t, "6.50", view.BillableHours)

	rec := f.record(tsID, "proj-b")
	assert.True(t, rec.BillableHours.Equal(decimal.RequireFromString("6.5")))

	view, err = f.approval.UpdateBillableAdjustment(f.ctx, tsID, "proj-b", decimal.NewFromInt(2), exec)
	require.NoError(t, err)
	assert.Equal(t, "10.00", view.BillableHours)

	_, err = f.approval.UpdateBillableAdjustment(f.ctx, tsID, "proj-b", decimal.NewFromInt(-9), exec)
	assert.True(t, service.IsKind(err, service.KindValidation))
	assert.True(t, f.record(tsID, "proj-b").BillableHours.Equal(decimal.NewFromInt(10)))

	_, err = f.approval.UpdateBillableAdjustment(f.ctx, tsID, "proj-b", decimal.NewFromInt(1), outsider)
	assert.True(t, service.IsKind(err, service.KindAuthorization))

	_, err = f.approval.UpdateBillableAdjustment(f.ctx, tsID, "proj-b", decimal.NewFromInt(1), lead)
	assert.True(t, service.IsKind(err, service.KindAuthorization))

	_, err = f.approval.UpdateBillableAdjustment(f.ctx, tsID, "proj-other", decimal.NewFromInt(1), exec)
	assert.True(t, service.IsKind(err, service.KindNotFound))
}

// TestBulkFreeze_IncludesManagerOwnTimesheet Manager 本人的工时表不阻塞冻结并一同冻结
func TestBulkFreeze_IncludesManagerOwnTimesheet(t *testing.T) {
	f := newFixture(t)
	exec := f.user("exec-1", model.RoleManagement)
	mgr := f.user("mgr-1", model.RoleManager)
	emp := f.user("emp-1", model.RoleEmployee)
	f.project("proj-f", projectOpts{managerID: mgr.UserID})

	own := f.submitted(mgr, testWeek, map[string]float64{"proj-f": 8})
	staff := f.submitted(emp, testWeek, map[string]float64{"proj-f": 6})
	_, err := f.approval.ApproveTimesheetForProject(f.ctx, staff, "proj-f", mgr)
	require.NoError(t, err)

	res, err := f.approval.BulkFreezeProjectWeek(f.ctx, weekKey("proj-f"), exec)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FrozenCount)
	assert.Equal(t, 0, res.SkippedCount)
	assert.Equal(t, model.StatusFrozen, f.timesheet(own).Status)
	assert.Equal(t, model.StatusFrozen, f.timesheet(staff).Status)
}
