package repository

import (
	"context"
	"time"

	"github.com/mautops/timesheet-gin/internal/model"
	"gorm.io/gorm"
)

// TimesheetRepository 工时表仓储接口
type TimesheetRepository interface {
	Save(ctx context.Context, ts *model.TimesheetModel) error
	FindByID(ctx context.Context, id string) (*model.TimesheetModel, error)
	FindByIDForUpdate(ctx context.Context, id string) (*model.TimesheetModel, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.TimesheetModel, error)
	FindByWeek(ctx context.Context, weekStart, weekEnd time.Time) ([]*model.TimesheetModel, error)
	FindByUsersAndWeek(ctx context.Context, userIDs []string, weekStart time.Time) ([]*model.TimesheetModel, error)
}

// timesheetRepository 工时表仓储实现
type timesheetRepository struct {
	db *gorm.DB
}

// NewTimesheetRepository 创建工时表仓储
func NewTimesheetRepository(db *gorm.DB) TimesheetRepository {
	return &timesheetRepository{db: db}
}

// Save 保存工时表
func (r *timesheetRepository) Save(ctx context.Context, ts *model.TimesheetModel) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(ts).Error
}

// FindByID 根据 ID 查找工时表(不含软删除)
func (r *timesheetRepository) FindByID(ctx context.Context, id string) (*model.TimesheetModel, error) {
	var ts model.TimesheetModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ts).Error; err != nil {
		return nil, err
	}
	return &ts, nil
}

// FindByIDForUpdate 在事务内加锁读取工时表
func (r *timesheetRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.TimesheetModel, error) {
	var ts model.TimesheetModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&ts).Error; err != nil {
		return nil, err
	}
	return &ts, nil
}

// FindByIDs 批量查找工时表
func (r *timesheetRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.TimesheetModel, error) {
	var list []*model.TimesheetModel
	if len(ids) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at ASC").Find(&list).Error
	return list, err
}

// FindByWeek 查找指定周的全部工时表
func (r *timesheetRepository) FindByWeek(ctx context.Context, weekStart, weekEnd time.Time) ([]*model.TimesheetModel, error) {
	var list []*model.TimesheetModel
	err := r.db.WithContext(ctx).
		Where("week_start = ? AND week_end = ?", weekStart, weekEnd).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// FindByUsersAndWeek 查找一组用户在指定周的工时表
func (r *timesheetRepository) FindByUsersAndWeek(ctx context.Context, userIDs []string, weekStart time.Time) ([]*model.TimesheetModel, error) {
	var list []*model.TimesheetModel
	if len(userIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id IN ? AND week_start = ?", userIDs, weekStart).
		Find(&list).Error
	return list, err
}
