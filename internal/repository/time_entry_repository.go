package repository

import (
	"context"

	"github.com/mautops/timesheet-gin/internal/model"
	"gorm.io/gorm"
)

// TimeEntryRepository 工时条目仓储接口
type TimeEntryRepository interface {
	Create(ctx context.Context, entry *model.TimeEntryModel) error
	FindByTimesheet(ctx context.Context, timesheetID string) ([]*model.TimeEntryModel, error)
	FindByTimesheets(ctx context.Context, timesheetIDs []string) ([]*model.TimeEntryModel, error)
	FlagRejected(ctx context.Context, timesheetID, projectID, reason string) error
	ClearRejected(ctx context.Context, timesheetID, projectID string) error
}

// timeEntryRepository 工时条目仓储实现
type timeEntryRepository struct {
	db *gorm.DB
}

// NewTimeEntryRepository 创建工时条目仓储
func NewTimeEntryRepository(db *gorm.DB) TimeEntryRepository {
	return &timeEntryRepository{db: db}
}

// Create 新增工时条目
func (r *timeEntryRepository) Create(ctx context.Context, entry *model.TimeEntryModel) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindByTimesheet 查找工时表的全部条目
func (r *timeEntryRepository) FindByTimesheet(ctx context.Context, timesheetID string) ([]*model.TimeEntryModel, error) {
	var entries []*model.TimeEntryModel
	err := r.db.WithContext(ctx).
		Where("timesheet_id = ?", timesheetID).
		Order("date ASC, created_at ASC").
		Find(&entries).Error
	return entries, err
}

// FindByTimesheets 批量查找工时条目
func (r *timeEntryRepository) FindByTimesheets(ctx context.Context, timesheetIDs []string) ([]*model.TimeEntryModel, error) {
	var entries []*model.TimeEntryModel
	if len(timesheetIDs) == 0 {
		return entries, nil
	}
	err := r.db.WithContext(ctx).
		Where("timesheet_id IN ?", timesheetIDs).
		Order("date ASC, created_at ASC").
		Find(&entries).Error
	return entries, err
}

// FlagRejected 将 (timesheet, project) 下全部条目标记为驳回
func (r *timeEntryRepository) FlagRejected(ctx context.Context, timesheetID, projectID, reason string) error {
	return r.db.WithContext(ctx).Model(&model.TimeEntryModel{}).
		Where("timesheet_id = ? AND project_id = ?", timesheetID, projectID).
		Updates(map[string]interface{}{"is_rejected": true, "rejection_reason": reason}).Error
}

// ClearRejected 清除 (timesheet, project) 下条目的驳回标记,projectID 为空时清除整张工时表
func (r *timeEntryRepository) ClearRejected(ctx context.Context, timesheetID, projectID string) error {
	query := r.db.WithContext(ctx).Model(&model.TimeEntryModel{}).Where("timesheet_id = ?", timesheetID)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	return query.Updates(map[string]interface{}{"is_rejected": false, "rejection_reason": ""}).Error
}
