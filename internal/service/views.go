package service

import (
	"time"

	"github.com/mautops/timesheet-gin/internal/model"
)

// TrackView 审批轨道展示
// @Description 单个层级的审批状态
type TrackView struct {
	Status          string `json:"status"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	RejectedAt      string `json:"rejected_at,omitempty"`
}

// ProjectApprovalView 项目审批记录展示
// @Description 工时表在单个项目上的三级审批状态与计费工时
type ProjectApprovalView struct {
	ID                 string    `json:"id"`
	TimesheetID        string    `json:"timesheet_id"`
	ProjectID          string    `json:"project_id"`
	Lead               TrackView `json:"lead"`
	Manager            TrackView `json:"manager"`
	Management         TrackView `json:"management"`
	WorkedHours        string    `json:"worked_hours"`
	BillableAdjustment string    `json:"billable_adjustment"`
	BillableHours      string    `json:"billable_hours"`
	CreatedAt          string    `json:"created_at"`
}

// TransitionResult 单次审批流转结果
// @Description 审批或驳回后的工时表状态
type TransitionResult struct {
	TimesheetID  string               `json:"timesheet_id"`
	ProjectID    string               `json:"project_id"`
	StatusBefore string               `json:"status_before"`
	Status       string               `json:"status"`
	IsFrozen     bool                 `json:"is_frozen"`
	Changed      bool                 `json:"changed"`
	Approval     *ProjectApprovalView `json:"approval"`
}

func newTrackView(t model.ApprovalTrack) TrackView {
	return TrackView{
		Status:          string(t.Status),
		ApprovedBy:      t.ApprovedBy,
		ApprovedAt:      formatTime(t.ApprovedAt),
		RejectionReason: t.RejectionReason,
		RejectedAt:      formatTime(t.RejectedAt),
	}
}

func newProjectApprovalView(m *model.TimesheetProjectApprovalModel) *ProjectApprovalView {
	if m == nil {
		return nil
	}
	return &ProjectApprovalView{
		ID:                 m.ID,
		TimesheetID:        m.TimesheetID,
		ProjectID:          m.ProjectID,
		Lead:               newTrackView(m.Lead),
		Manager:            newTrackView(m.Manager),
		Management:         newTrackView(m.Management),
		WorkedHours:        m.WorkedHours.StringFixed(2),
		BillableAdjustment: m.BillableAdjustment.StringFixed(2),
		BillableHours:      m.BillableHours.StringFixed(2),
		CreatedAt:          m.CreatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
