package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalTrack 单个层级的审批轨道
type ApprovalTrack struct {
	Status          TrackStatus `gorm:"type:varchar(20);not null"`
	ApprovedBy      string      `gorm:"type:varchar(64)"`
	ApprovedAt      *time.Time
	RejectionReason string `gorm:"type:text"`
	RejectedAt      *time.Time
}

// Approve 标记为通过
func (t *ApprovalTrack) Approve(actorID string, at time.Time) {
	t.Status = TrackApproved
	t.ApprovedBy = actorID
	t.ApprovedAt = &at
	t.RejectionReason = ""
	t.RejectedAt = nil
}

// Reject 标记为驳回
func (t *ApprovalTrack) Reject(reason string, at time.Time) {
	t.Status = TrackRejected
	t.RejectionReason = reason
	t.RejectedAt = &at
	t.ApprovedBy = ""
	t.ApprovedAt = nil
}

// Reset 重置轨道到初始状态
func (t *ApprovalTrack) Reset(initial TrackStatus) {
	*t = ApprovalTrack{Status: initial}
}

// TimesheetProjectApprovalModel 工时表在单个项目上的审批记录
// (timesheet_id, project_id) 唯一
type TimesheetProjectApprovalModel struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	TimesheetID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_tpa_timesheet_project"`
	ProjectID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_tpa_timesheet_project;index"`

	Lead       ApprovalTrack `gorm:"embedded;embeddedPrefix:lead_"`
	Manager    ApprovalTrack `gorm:"embedded;embeddedPrefix:manager_"`
	Management ApprovalTrack `gorm:"embedded;embeddedPrefix:management_"`

	WorkedHours        decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	BillableAdjustment decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	BillableHours      decimal.Decimal `gorm:"type:decimal(10,2);not null"`

	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (TimesheetProjectApprovalModel) TableName() string {
	return "timesheet_project_approvals"
}

// Track 返回指定层级的轨道
func (m *TimesheetProjectApprovalModel) Track(tier Tier) *ApprovalTrack {
	switch tier {
	case TierLead:
		return &m.Lead
	case TierManager:
		return &m.Manager
	default:
		return &m.Management
	}
}

// RecalculateBillable billable_hours = worked_hours + billable_adjustment
func (m *TimesheetProjectApprovalModel) RecalculateBillable() {
	m.BillableHours = m.WorkedHours.Add(m.BillableAdjustment)
}

// Validate 验证审批记录
func (m *TimesheetProjectApprovalModel) Validate() error {
	if m.ID == "" {
		return errors.New("approval ID is required")
	}
	if m.TimesheetID == "" {
		return errors.New("timesheet ID is required")
	}
	if m.ProjectID == "" {
		return errors.New("project ID is required")
	}
	for _, tier := range Tiers {
		if !m.Track(tier).Status.Valid() {
			return errors.New("invalid " + string(tier) + " track status")
		}
	}
	if m.Manager.Status == TrackNotRequired {
		return errors.New("manager track is always required")
	}
	return nil
}

// InitialLeadStatus 只有项目配置了 Lead 且工时表所有者为 Employee 时 lead 轨道才需要审批
func InitialLeadStatus(projectHasLead bool, ownerRole Role) TrackStatus {
	if projectHasLead && ownerRole == RoleEmployee {
		return TrackPending
	}
	return TrackNotRequired
}
