package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWeekBounds(t *testing.T) {
	tests := []struct {
		in        time.Time
		wantStart string
		wantEnd   string
	}{
		{time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), "2025-01-06", "2025-01-12"},
		{time.Date(2025, 1, 9, 15, 30, 0, 0, time.UTC), "2025-01-06", "2025-01-12"},
		{time.Date(2025, 1, 12, 23, 59, 0, 0, time.UTC), "2025-01-06", "2025-01-12"},
		// 跨年周
		{time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), "2024-12-30", "2025-01-05"},
	}
	for _, tt := range tests {
		start, end := WeekBounds(tt.in)
		assert.Equal(t, tt.wantStart, start.Format("2006-01-02"), "start of %s", tt.in)
		assert.Equal(t, tt.wantEnd, end.Format("2006-01-02"), "end of %s", tt.in)
		assert.Equal(t, time.UTC, start.Location())
	}
}

func TestInitialLeadStatus(t *testing.T) {
	assert.Equal(t, TrackPending, InitialLeadStatus(true, RoleEmployee))
	assert.Equal(t, TrackNotRequired, InitialLeadStatus(false, RoleEmployee))
	assert.Equal(t, TrackNotRequired, InitialLeadStatus(true, RoleLead))
	assert.Equal(t, TrackNotRequired, InitialLeadStatus(true, RoleManager))
}

func TestTierForRole(t *testing.T) {
	for role, want := range map[Role]Tier{
		RoleLead:       TierLead,
		RoleManager:    TierManager,
		RoleManagement: TierManagement,
		RoleSuperAdmin: TierManagement,
	} {
		got, ok := TierForRole(role)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := TierForRole(RoleEmployee)
	assert.False(t, ok)

	assert.True(t, RoleSuperAdmin.IsManagement())
	assert.False(t, RoleManager.IsManagement())
	assert.False(t, Role("guest").Valid())
}

func TestApprovalTrack(t *testing.T) {
	now := time.Now()
	var track ApprovalTrack

	track.Reject("not enough detail", now)
	assert.Equal(t, TrackRejected, track.Status)
	assert.Equal(t, "not enough detail", track.RejectionReason)
	assert.NotNil(t, track.RejectedAt)

	track.Approve("mgr-1", now)
	assert.Equal(t, TrackApproved, track.Status)
	assert.Equal(t, "mgr-1", track.ApprovedBy)
	assert.Empty(t, track.RejectionReason)
	assert.Nil(t, track.RejectedAt)

	track.Reset(TrackNotRequired)
	assert.Equal(t, ApprovalTrack{Status: TrackNotRequired}, track)
}

func TestProjectApprovalValidate(t *testing.T) {
	rec := &TimesheetProjectApprovalModel{
		ID:          "tpa-1",
		TimesheetID: "ts-1",
		ProjectID:   "p-1",
		Lead:        ApprovalTrack{Status: TrackNotRequired},
		Manager:     ApprovalTrack{Status: TrackPending},
		Management:  ApprovalTrack{Status: TrackPending},
		WorkedHours: decimal.NewFromInt(8),
	}
	assert.NoError(t, rec.Validate())

	rec.BillableAdjustment = decimal.RequireFromString("-0.5")
	rec.RecalculateBillable()
	assert.True(t, rec.BillableHours.Equal(decimal.RequireFromString("7.5")))

	rec.Manager.Status = TrackNotRequired
	assert.Error(t, rec.Validate())

	rec.Manager.Status = "maybe"
	assert.Error(t, rec.Validate())
}

func TestTimesheetTransitions(t *testing.T) {
	now := time.Now()
	ts := &TimesheetModel{ID: "ts-1", UserID: "u-1"}
	start, end := WeekBounds(now)
	ts.WeekStart, ts.WeekEnd = start, end
	assert.NoError(t, ts.Validate())
	assert.Equal(t, StatusDraft, ts.Status)

	ts.MarkRejected(TierManager, "wrong project", now)
	assert.Equal(t, "wrong project", ts.ManagerRejectionReason)
	ts.ClearRejections()
	assert.Empty(t, ts.ManagerRejectionReason)
	assert.Nil(t, ts.ManagerRejectedAt)

	ts.MarkApprovedBy(TierLead, "lead-1", now)
	assert.Equal(t, "lead-1", ts.LeadApprovedBy)

	ts.Freeze(now)
	assert.True(t, ts.IsFrozen)
	assert.Equal(t, StatusFrozen, ts.Status)

	ts.WeekEnd = start.AddDate(0, 0, -1)
	assert.Error(t, ts.Validate())
}

func TestTimeEntryValidate(t *testing.T) {
	entry := &TimeEntryModel{ID: "e-1", TimesheetID: "ts-1", ProjectID: "p-1", Hours: decimal.NewFromInt(8)}
	assert.NoError(t, entry.Validate())

	entry.Hours = decimal.NewFromInt(25)
	assert.Error(t, entry.Validate())

	entry.Hours = decimal.NewFromInt(-1)
	assert.Error(t, entry.Validate())
}
