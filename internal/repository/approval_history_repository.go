package repository

import (
	"context"

	"github.com/mautops/timesheet-gin/internal/model"
	"gorm.io/gorm"
)

// ApprovalHistoryRepository 审批历史仓储接口,只允许追加
type ApprovalHistoryRepository interface {
	Append(ctx context.Context, history *model.ApprovalHistoryModel) error
	FindByTimesheet(ctx context.Context, timesheetID string) ([]*model.ApprovalHistoryModel, error)
}

// approvalHistoryRepository 审批历史仓储实现
type approvalHistoryRepository struct {
	db *gorm.DB
}

// NewApprovalHistoryRepository 创建审批历史仓储
func NewApprovalHistoryRepository(db *gorm.DB) ApprovalHistoryRepository {
	return &approvalHistoryRepository{db: db}
}

// Append 追加一条审批历史
func (r *approvalHistoryRepository) Append(ctx context.Context, history *model.ApprovalHistoryModel) error {
	if err := history.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(history).Error
}

// FindByTimesheet 根据工时表查找审批历史
func (r *approvalHistoryRepository) FindByTimesheet(ctx context.Context, timesheetID string) ([]*model.ApprovalHistoryModel, error) {
	var histories []*model.ApprovalHistoryModel
	err := r.db.WithContext(ctx).
		Where("timesheet_id = ?", timesheetID).
		Order("created_at ASC").
		Find(&histories).Error
	return histories, err
}
