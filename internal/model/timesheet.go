package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// TimesheetModel 工时表数据模型,每个用户每个 ISO 周一份
type TimesheetModel struct {
	ID        string          `gorm:"primaryKey;type:varchar(64)"`
	UserID    string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_timesheets_user_week"`
	WeekStart time.Time       `gorm:"not null;uniqueIndex:idx_timesheets_user_week;index"`
	WeekEnd   time.Time       `gorm:"not null;index"`
	Status    TimesheetStatus `gorm:"type:varchar(32);not null;index"`
	IsFrozen  bool            `gorm:"not null;default:false"`

	SubmittedAt *time.Time
	FrozenAt    *time.Time
	BilledAt    *time.Time

	LeadApprovedBy       string `gorm:"type:varchar(64)"`
	LeadApprovedAt       *time.Time
	ManagerApprovedBy    string `gorm:"type:varchar(64)"`
	ManagerApprovedAt    *time.Time
	ManagementApprovedBy string `gorm:"type:varchar(64)"`
	ManagementApprovedAt *time.Time

	LeadRejectionReason       string `gorm:"type:text"`
	LeadRejectedAt            *time.Time
	ManagerRejectionReason    string `gorm:"type:text"`
	ManagerRejectedAt         *time.Time
	ManagementRejectionReason string `gorm:"type:text"`
	ManagementRejectedAt      *time.Time

	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (TimesheetModel) TableName() string {
	return "timesheets"
}

// Validate 验证工时表模型
func (m *TimesheetModel) Validate() error {
	if m.ID == "" {
		return errors.New("timesheet ID is required")
	}
	if m.UserID == "" {
		return errors.New("user ID is required")
	}
	if m.WeekStart.IsZero() || m.WeekEnd.IsZero() {
		return errors.New("week range is required")
	}
	if m.WeekEnd.Before(m.WeekStart) {
		return errors.New("week end is before week start")
	}
	if m.Status == "" {
		m.Status = StatusDraft
	}
	return nil
}

// MarkApprovedBy 记录某一层级的审批人
func (m *TimesheetModel) MarkApprovedBy(tier Tier, actorID string, at time.Time) {
	switch tier {
	case TierLead:
		m.LeadApprovedBy, m.LeadApprovedAt = actorID, &at
	case TierManager:
		m.ManagerApprovedBy, m.ManagerApprovedAt = actorID, &at
	case TierManagement:
		m.ManagementApprovedBy, m.ManagementApprovedAt = actorID, &at
	}
}

// MarkRejected 记录某一层级的驳回原因
func (m *TimesheetModel) MarkRejected(tier Tier, reason string, at time.Time) {
	switch tier {
	case TierLead:
		m.LeadRejectionReason, m.LeadRejectedAt = reason, &at
	case TierManager:
		m.ManagerRejectionReason, m.ManagerRejectedAt = reason, &at
	case TierManagement:
		m.ManagementRejectionReason, m.ManagementRejectedAt = reason, &at
	}
}

// ClearRejections 重新提交时清除所有层级的驳回信息
func (m *TimesheetModel) ClearRejections() {
	m.LeadRejectionReason, m.LeadRejectedAt = "", nil
	m.ManagerRejectionReason, m.ManagerRejectedAt = "", nil
	m.ManagementRejectionReason, m.ManagementRejectedAt = "", nil
}

// Freeze 冻结工时表
func (m *TimesheetModel) Freeze(at time.Time) {
	m.IsFrozen = true
	m.FrozenAt = &at
	m.Status = StatusFrozen
}

// WeekBounds 返回 t 所在 ISO 周的周一和周日(UTC 零点)
func WeekBounds(t time.Time) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

// NormalizeDate 截断到 UTC 零点
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
