package model

import (
	"errors"
	"time"
)

// ApprovalHistoryModel 审批历史,只追加不修改
type ApprovalHistoryModel struct {
	ID           string          `gorm:"primaryKey;type:varchar(64)"`
	TimesheetID  string          `gorm:"type:varchar(64);not null;index"`
	ProjectID    string          `gorm:"type:varchar(64);index"`
	ActorID      string          `gorm:"type:varchar(64);not null;index"`
	ActorRole    Role            `gorm:"type:varchar(32);not null"`
	Action       HistoryAction   `gorm:"type:varchar(32);not null"`
	StatusBefore TimesheetStatus `gorm:"type:varchar(32)"`
	StatusAfter  TimesheetStatus `gorm:"type:varchar(32);not null"`
	Reason       string          `gorm:"type:text"`
	CreatedAt    time.Time       `gorm:"not null;index"`
}

// TableName 指定表名
func (ApprovalHistoryModel) TableName() string {
	return "approval_history"
}

// Validate 验证审批历史
func (m *ApprovalHistoryModel) Validate() error {
	if m.ID == "" {
		return errors.New("history ID is required")
	}
	if m.TimesheetID == "" {
		return errors.New("timesheet ID is required")
	}
	if m.ActorID == "" {
		return errors.New("actor is required")
	}
	if m.Action == "" {
		return errors.New("action is required")
	}
	if m.StatusAfter == "" {
		return errors.New("status after is required")
	}
	return nil
}
