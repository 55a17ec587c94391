package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TimeEntryModel 工时条目数据模型
type TimeEntryModel struct {
	ID              string          `gorm:"primaryKey;type:varchar(64)"`
	TimesheetID     string          `gorm:"type:varchar(64);not null;index:idx_entries_timesheet_project"`
	UserID          string          `gorm:"type:varchar(64);not null;index"`
	ProjectID       string          `gorm:"type:varchar(64);not null;index:idx_entries_timesheet_project"`
	TaskID          string          `gorm:"type:varchar(64)"`
	Date            time.Time       `gorm:"not null;index"`
	Hours           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Description     string          `gorm:"type:text"`
	IsBillable      bool            `gorm:"not null"`
	IsRejected      bool            `gorm:"not null;default:false"`
	RejectionReason string          `gorm:"type:text"`
	CreatedAt       time.Time       `gorm:"not null;index"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName 指定表名
func (TimeEntryModel) TableName() string {
	return "time_entries"
}

// Validate 验证工时条目
func (m *TimeEntryModel) Validate() error {
	if m.ID == "" {
		return errors.New("entry ID is required")
	}
	if m.TimesheetID == "" {
		return errors.New("timesheet ID is required")
	}
	if m.ProjectID == "" {
		return errors.New("project ID is required")
	}
	if m.Hours.IsNegative() {
		return errors.New("hours must not be negative")
	}
	if m.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return errors.New("hours must not exceed 24 per entry")
	}
	return nil
}
