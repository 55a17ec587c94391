package service_test

import (
	"testing"
	"time"

	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) groups(actor service.Actor, filter service.ProjectWeekFilter) *service.ProjectWeekPage {
	f.t.Helper()
	page, err := f.grouping.GetProjectWeekGroups(f.ctx, actor, filter)
	require.NoError(f.t, err)
	return page
}

// TestGroups_HiddenProjectIsolation 审核人只能看到自己负责项目的记录
func TestGroups_HiddenProjectIsolation(t *testing.T) {
	f := newFixture(t)
	mine := f.user("mgr-1", model.RoleManager)
	theirs := f.user("mgr-2", model.RoleManager)
	emp := f.user("emp-1", model.RoleEmployee)
	f.project("proj-mine", projectOpts{managerID: mine.UserID})
	f.project("proj-hidden", projectOpts{managerID: theirs.UserID})

	f.submitted(emp, testWeek, map[string]float64{"proj-mine": 5, "proj-hidden": 3})
	// 自己的工时表不出现在自己的审批视图里
	f.submitted(mine, testWeek, map[string]float64{"proj-mine": 2})

	page := f.groups(mine, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	group := page.Items[0]
	assert.Equal(t, "proj-mine", group.ProjectID)
	assert.Equal(t, "2025-01-06", group.WeekStart)
	assert.Equal(t, "2025-01-12", group.WeekEnd)
	assert.Equal(t, service.GroupPending, group.Status)
	assert.Equal(t, "5.00", group.WorkedHours)
	require.Len(t, group.Rows, 1)
	assert.Equal(t, emp.UserID, group.Rows[0].UserID)
	assert.Equal(t, "User emp-1", group.Rows[0].UserName)
	require.Len(t, group.Rows[0].Entries, 1)
	assert.Equal(t, "5.00", group.Rows[0].Entries[0].Hours)

	page = f.groups(theirs, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "proj-hidden", page.Items[0].ProjectID)
	assert.Equal(t, "3.00", page.Items[0].WorkedHours)
	assert.Equal(t, 1, page.Items[0].TotalUsers)

	// 指定他人项目时结果为空
	page = f.groups(mine, service.ProjectWeekFilter{ProjectIDs: []string{"proj-hidden"}})
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(0), page.Total)
}

// TestGroups_LeadWaitsForAllMembers Lead 须等项目其他员工都填写工时
func TestGroups_LeadWaitsForAllMembers(t *testing.T) {
	f := newFixture(t)
	lead := f.user("lead-1", model.RoleLead)
	e1 := f.user("emp-1", model.RoleEmployee)
	e2 := f.user("emp-2", model.RoleEmployee)
	f.project("proj-l", projectOpts{leadID: lead.UserID, managerID: "mgr-1", employees: []string{e1.UserID, e2.UserID}})

	f.submitted(e1, testWeek, map[string]float64{"proj-l": 8})
	assert.Empty(t, f.groups(lead, service.ProjectWeekFilter{}).Items)

	f.draft(e2.UserID, testWeek, map[string]float64{"proj-l": 6})
	page := f.groups(lead, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].TotalUsers)
	assert.Equal(t, 1, page.Items[0].PendingCount)
}

// TestGroups_ManagerWaitsForLead Manager 须等 Lead 处理完并提交本人工时
func TestGroups_ManagerWaitsForLead(t *testing.T) {
	f := newFixture(t)
	lead := f.user("lead-1", model.RoleLead)
	mgr := f.user("mgr-1", model.RoleManager)
	emp := f.user("emp-1", model.RoleEmployee)
	f.project("proj-g", projectOpts{leadID: lead.UserID, managerID: mgr.UserID, employees: []string{emp.UserID}})

	tsID := f.submitted(emp, testWeek, map[string]float64{"proj-g": 8})
	assert.Empty(t, f.groups(mgr, service.ProjectWeekFilter{}).Items)

	_, err := f.approval.ApproveTimesheetForProject(f.ctx, tsID, "proj-g", lead)
	require.NoError(t, err)
	assert.Empty(t, f.groups(mgr, service.ProjectWeekFilter{}).Items)

	f.submitted(lead, testWeek, map[string]float64{"proj-g": 4})
	page := f.groups(mgr, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Items[0].TotalUsers)
	assert.Equal(t, "12.00", page.Items[0].WorkedHours)
}

func TestGroups_TrainingProjectSkipsLeadGate(t *testing.T) {
	f := newFixture(t)
	lead := f.user("lead-1", model.RoleLead)
	mgr := f.user("mgr-1", model.RoleManager)
	emp := f.user("emp-1", model.RoleEmployee)
	f.project("proj-train", projectOpts{leadID: lead.UserID, managerID: mgr.UserID, training: true, employees: []string{emp.UserID}})

	f.submitted(emp, testWeek, map[string]float64{"proj-train": 3})
	page := f.groups(mgr, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	assert.Equal(t, string(model.ProjectTypeTraining), page.Items[0].ProjectType)
}

// TestGroups_ManagementWaitsForManager Management 须等 Manager 处理完并提交本人工时
func TestGroups_ManagementWaitsForManager(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	exec := f.user("exec-1", model.RoleManagement)
	emp := f.user("emp-1", model.RoleEmployee)
	f.project("proj-m", projectOpts{managerID: mgr.UserID})

	tsID := f.submitted(emp, testWeek, map[string]float64{"proj-m": 8})
	_, err := f.approval.ApproveTimesheetForProject(f.ctx, tsID, "proj-m", mgr)
	require.NoError(t, err)
	assert.Empty(t, f.groups(exec, service.ProjectWeekFilter{}).Items)

	// Manager 本人的工时表直接进入 Management 审核,与员工记录同组
	f.submitted(mgr, testWeek, map[string]float64{"proj-m": 8})
	page := f.groups(exec, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	require.Len(t, page.Items[0].Rows, 2)
	assert.Equal(t, emp.UserID, page.Items[0].Rows[0].UserID)
	assert.Equal(t, string(model.TrackPending), page.Items[0].Rows[0].TrackStatus)
	assert.Equal(t, mgr.UserID, page.Items[0].Rows[1].UserID)
	assert.Equal(t, string(model.StatusManagementPending), page.Items[0].Rows[1].TimesheetStatus)
}

func TestGroups_FiltersSortAndPaging(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	alice := f.user("alice", model.RoleEmployee)
	bob := f.user("bob", model.RoleEmployee)
	f.project("proj-alpha", projectOpts{managerID: mgr.UserID})
	f.project("proj-beta", projectOpts{managerID: mgr.UserID})
	nextWeek := testWeek.AddDate(0, 0, 7)

	aliceW1 := f.submitted(alice, testWeek, map[string]float64{"proj-alpha": 8, "proj-beta": 2})
	f.submitted(bob, testWeek, map[string]float64{"proj-alpha": 4})
	f.submitted(alice, nextWeek, map[string]float64{"proj-alpha": 6})

	page := f.groups(mgr, service.ProjectWeekFilter{})
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	require.Len(t, page.Items, 3)
	// 默认按周倒序
	assert.Equal(t, "2025-01-13", page.Items[0].WeekStart)
	assert.Equal(t, "proj-beta", page.Items[1].ProjectID)
	assert.Equal(t, "proj-alpha", page.Items[2].ProjectID)
	assert.Equal(t, "12.00", page.Items[2].WorkedHours)
	assert.Equal(t, "User alice", page.Items[2].Rows[0].UserName)

	_, err := f.approval.ApproveTimesheetForProject(f.ctx, aliceW1, "proj-alpha", mgr)
	require.NoError(t, err)

	page = f.groups(mgr, service.ProjectWeekFilter{Status: service.GroupPartiallyProcessed})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "proj-alpha", page.Items[0].ProjectID)
	assert.Equal(t, "2025-01-06", page.Items[0].WeekStart)
	assert.Equal(t, 1, page.Items[0].ApprovedCount)
	assert.Equal(t, 1, page.Items[0].PendingCount)

	page = f.groups(mgr, service.ProjectWeekFilter{ProjectIDs: []string{"proj-beta"}})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "proj-beta", page.Items[0].ProjectID)

	page = f.groups(mgr, service.ProjectWeekFilter{WeekFrom: nextWeek})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "2025-01-13", page.Items[0].WeekStart)

	page = f.groups(mgr, service.ProjectWeekFilter{WeekTo: testWeek})
	assert.Len(t, page.Items, 2)

	page = f.groups(mgr, service.ProjectWeekFilter{SortBy: service.SortByProject, Order: "asc"})
	require.Len(t, page.Items, 3)
	assert.Equal(t, "proj-alpha", page.Items[0].ProjectID)
	assert.Equal(t, "2025-01-06", page.Items[0].WeekStart)
	assert.Equal(t, "proj-alpha", page.Items[1].ProjectID)
	assert.Equal(t, "proj-beta", page.Items[2].ProjectID)

	page = f.groups(mgr, service.ProjectWeekFilter{SortBy: service.SortByProject, Order: "asc", Page: 2, Limit: 2})
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "proj-beta", page.Items[0].ProjectID)

	page = f.groups(mgr, service.ProjectWeekFilter{Page: 5})
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(3), page.Total)

	page = f.groups(mgr, service.ProjectWeekFilter{Limit: 1000})
	assert.Equal(t, 100, page.PageSize)

	page = f.groups(mgr, service.ProjectWeekFilter{Search: "bob"})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "proj-alpha", page.Items[0].ProjectID)
	assert.Equal(t, "2025-01-06", page.Items[0].WeekStart)

	assert.Empty(t, f.groups(mgr, service.ProjectWeekFilter{Search: "zzz"}).Items)
}

func TestGroups_InvalidFilter(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	emp := f.user("emp-1", model.RoleEmployee)

	for _, filter := range []service.ProjectWeekFilter{
		{SortBy: "owner"},
		{Order: "sideways"},
		{Status: "done"},
		{WeekFrom: testWeek.AddDate(0, 0, 7), WeekTo: testWeek},
	} {
		_, err := f.grouping.GetProjectWeekGroups(f.ctx, mgr, filter)
		assert.True(t, service.IsKind(err, service.KindValidation), "filter %+v", filter)
	}

	_, err := f.grouping.GetProjectWeekGroups(f.ctx, emp, service.ProjectWeekFilter{})
	assert.True(t, service.IsKind(err, service.KindAuthorization))
}

// TestGroups_ReopenedAfterApproval 整体通过后新增的待审记录使分组重开
func TestGroups_ReopenedAfterApproval(t *testing.T) {
	f := newFixture(t)
	mgr := f.user("mgr-1", model.RoleManager)
	f.project("proj-r", projectOpts{managerID: mgr.UserID})

	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	approvedAt := base.Add(24 * time.Hour)
	for i := 0; i < 3; i++ {
		owner := f.user(f.nextID("emp"), model.RoleEmployee)
		id := f.seed(owner.UserID, "proj-r", testWeek, model.StatusManagerApproved, model.TrackNotRequired, model.TrackApproved, model.TrackPending)
		f.stamp(id, base.Add(time.Duration(i)*time.Hour), &approvedAt)
	}
	late := f.user("late-joiner", model.RoleEmployee)
	lateID := f.seed(late.UserID, "proj-r", testWeek, model.StatusSubmitted, model.TrackNotRequired, model.TrackPending, model.TrackPending)
	f.stamp(lateID, base.Add(48*time.Hour), nil)

	page := f.groups(mgr, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	group := page.Items[0]
	assert.True(t, group.IsReopened)
	assert.Equal(t, 3, group.OriginalApprovalCount)
	assert.Equal(t, late.UserID, group.ReopenedBy)
	assert.Equal(t, service.GroupPartiallyProcessed, group.Status)
	assert.Equal(t, 4, group.TotalUsers)
	assert.Equal(t, 3, group.ApprovedCount)
}

// stamp 改写记录的创建与 Manager 通过时间
func (f *fixture) stamp(timesheetID string, createdAt time.Time, approvedAt *time.Time) {
	updates := map[string]interface{}{"created_at": createdAt}
	if approvedAt != nil {
		updates["manager_approved_at"] = *approvedAt
	}
	require.NoError(f.t, f.db.Model(&model.TimesheetProjectApprovalModel{}).
		Where("timesheet_id = ?", timesheetID).
		Updates(updates).Error)
}

// TestGroups_LateHiddenSubmissionKeepsApprovedGroup 对 Management 不可见的迟交记录不重开已通过的分组
func TestGroups_LateHiddenSubmissionKeepsApprovedGroup(t *testing.T) {
	f := newFixture(t)
	exec := f.user("exec-1", model.RoleManagement)
	mgr := f.user("mgr-1", model.RoleManager)
	other := f.user("mgr-2", model.RoleManager)
	emp := f.user("emp-1", model.RoleEmployee)
	late := f.user("emp-2", model.RoleEmployee)
	f.project("proj-g", projectOpts{managerID: mgr.UserID})
	f.project("proj-h", projectOpts{managerID: other.UserID})

	empTS := f.submitted(emp, testWeek, map[string]float64{"proj-g": 8})
	_, err := f.approval.ApproveTimesheetForProject(f.ctx, empTS, "proj-g", mgr)
	require.NoError(t, err)
	mgrTS := f.submitted(mgr, testWeek, map[string]float64{"proj-g": 4})
	for _, id := range []string{empTS, mgrTS} {
		_, err = f.approval.ApproveTimesheetForProject(f.ctx, id, "proj-g", exec)
		require.NoError(t, err)
	}

	page := f.groups(exec, service.ProjectWeekFilter{ProjectIDs: []string{"proj-g"}})
	require.Len(t, page.Items, 1)
	require.Equal(t, service.GroupApproved, page.Items[0].Status)
	require.Equal(t, 2, page.Items[0].TotalUsers)

	f.submitted(late, testWeek, map[string]float64{"proj-g": 6, "proj-h": 2})

	page = f.groups(exec, service.ProjectWeekFilter{ProjectIDs: []string{"proj-g"}})
	require.Len(t, page.Items, 1)
	group := page.Items[0]
	assert.Equal(t, service.GroupApproved, group.Status)
	assert.False(t, group.IsReopened)
	assert.Equal(t, 2, group.TotalUsers)
	assert.Equal(t, "12.00", group.WorkedHours)

	// 迟交记录仍在各自 Manager 的视图中等待审核
	page = f.groups(mgr, service.ProjectWeekFilter{ProjectIDs: []string{"proj-g"}})
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].PendingCount)
	page = f.groups(other, service.ProjectWeekFilter{})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "proj-h", page.Items[0].ProjectID)
}
