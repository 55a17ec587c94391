package repository

import (
	"context"
	"fmt"

	"github.com/mautops/timesheet-gin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectApprovalRepository 工时表项目审批记录仓储接口
type ProjectApprovalRepository interface {
	Get(ctx context.Context, timesheetID, projectID string) (*model.TimesheetProjectApprovalModel, error)
	Upsert(ctx context.Context, record *model.TimesheetProjectApprovalModel) (*model.TimesheetProjectApprovalModel, error)
	Save(ctx context.Context, record *model.TimesheetProjectApprovalModel) error
	FindByTimesheet(ctx context.Context, timesheetID string) ([]*model.TimesheetProjectApprovalModel, error)
	FindByTimesheetsAndProject(ctx context.Context, timesheetIDs []string, projectID string) ([]*model.TimesheetProjectApprovalModel, error)
	FindByProjects(ctx context.Context, projectIDs []string) ([]*model.TimesheetProjectApprovalModel, error)
	DeleteByTimesheetExcept(ctx context.Context, timesheetID string, keepProjectIDs []string) error
}

// projectApprovalRepository 审批记录仓储实现
type projectApprovalRepository struct {
	db *gorm.DB
}

// NewProjectApprovalRepository 创建审批记录仓储
func NewProjectApprovalRepository(db *gorm.DB) ProjectApprovalRepository {
	return &projectApprovalRepository{db: db}
}

// Get 根据 (timesheet, project) 查找审批记录
func (r *projectApprovalRepository) Get(ctx context.Context, timesheetID, projectID string) (*model.TimesheetProjectApprovalModel, error) {
	var record model.TimesheetProjectApprovalModel
	err := forUpdate(r.db.WithContext(ctx)).
		Where("timesheet_id = ? AND project_id = ?", timesheetID, projectID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert 按 (timesheet_id, project_id) 插入或更新,返回库中的记录
func (r *projectApprovalRepository) Upsert(ctx context.Context, record *model.TimesheetProjectApprovalModel) (*model.TimesheetProjectApprovalModel, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "timesheet_id"}, {Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"lead_status", "lead_approved_by", "lead_approved_at", "lead_rejection_reason", "lead_rejected_at",
			"manager_status", "manager_approved_by", "manager_approved_at", "manager_rejection_reason", "manager_rejected_at",
			"management_status", "management_approved_by", "management_approved_at", "management_rejection_reason", "management_rejected_at",
			"worked_hours", "billable_adjustment", "billable_hours", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert approval record: %w", err)
	}
	return r.Get(ctx, record.TimesheetID, record.ProjectID)
}

// Save 保存审批记录
func (r *projectApprovalRepository) Save(ctx context.Context, record *model.TimesheetProjectApprovalModel) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(record).Error
}

// FindByTimesheet 查找工时表的全部项目审批记录
func (r *projectApprovalRepository) FindByTimesheet(ctx context.Context, timesheetID string) ([]*model.TimesheetProjectApprovalModel, error) {
	var records []*model.TimesheetProjectApprovalModel
	err := r.db.WithContext(ctx).
		Where("timesheet_id = ?", timesheetID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

// FindByTimesheetsAndProject 查找一组工时表在指定项目上的审批记录
func (r *projectApprovalRepository) FindByTimesheetsAndProject(ctx context.Context, timesheetIDs []string, projectID string) ([]*model.TimesheetProjectApprovalModel, error) {
	var records []*model.TimesheetProjectApprovalModel
	if len(timesheetIDs) == 0 {
		return records, nil
	}
	err := r.db.WithContext(ctx).
		Where("timesheet_id IN ? AND project_id = ?", timesheetIDs, projectID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

// FindByProjects 查找一组项目的全部审批记录
func (r *projectApprovalRepository) FindByProjects(ctx context.Context, projectIDs []string) ([]*model.TimesheetProjectApprovalModel, error) {
	var records []*model.TimesheetProjectApprovalModel
	if len(projectIDs) == 0 {
		return records, nil
	}
	err := r.db.WithContext(ctx).
		Where("project_id IN ?", projectIDs).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

// DeleteByTimesheetExcept 重新提交时删除已不再有工时条目的项目记录
func (r *projectApprovalRepository) DeleteByTimesheetExcept(ctx context.Context, timesheetID string, keepProjectIDs []string) error {
	query := r.db.WithContext(ctx).Where("timesheet_id = ?", timesheetID)
	if len(keepProjectIDs) > 0 {
		query = query.Where("project_id NOT IN ?", keepProjectIDs)
	}
	return query.Delete(&model.TimesheetProjectApprovalModel{}).Error
}
