package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/repository"
	"gorm.io/gorm"
)

// HistoryEntry 一次审批流转
type HistoryEntry struct {
	TimesheetID  string
	ProjectID    string
	ActorID      string
	ActorRole    model.Role
	Action       model.HistoryAction
	StatusBefore model.TimesheetStatus
	StatusAfter  model.TimesheetStatus
	Reason       string
}

// HistoryItem 审批历史展示项
// @Description 审批时间线中的一条记录
type HistoryItem struct {
	ID           string `json:"id"`
	TimesheetID  string `json:"timesheet_id"`
	ProjectID    string `json:"project_id,omitempty"`
	ActorID      string `json:"actor_id"`
	ActorRole    string `json:"actor_role"`
	Action       string `json:"action"`
	StatusBefore string `json:"status_before,omitempty"`
	StatusAfter  string `json:"status_after"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// HistoryService 审批历史记录器
type HistoryService interface {
	Record(ctx context.Context, tx *gorm.DB, entry HistoryEntry) error
	ListByTimesheet(ctx context.Context, timesheetID string, viewer Actor) ([]*HistoryItem, error)
}

type historyService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewHistoryService 创建审批历史服务
func NewHistoryService(db *gorm.DB) HistoryService {
	return &historyService{db: db, now: time.Now}
}

// Record 在调用方事务内追加一条历史,tx 为空时使用默认连接
func (s *historyService) Record(ctx context.Context, tx *gorm.DB, entry HistoryEntry) error {
	if tx == nil {
		tx = s.db
	}
	history := &model.ApprovalHistoryModel{
		ID:           uuid.New().String(),
		TimesheetID:  entry.TimesheetID,
		ProjectID:    entry.ProjectID,
		ActorID:      entry.ActorID,
		ActorRole:    entry.ActorRole,
		Action:       entry.Action,
		StatusBefore: entry.StatusBefore,
		StatusAfter:  entry.StatusAfter,
		Reason:       entry.Reason,
		CreatedAt:    s.now(),
	}
	if err := repository.NewApprovalHistoryRepository(tx).Append(ctx, history); err != nil {
		return wrapDBError(err, "approval history")
	}
	return nil
}

// ListByTimesheet 获取工时表的审批时间线
// 仅工时表所有者、其项目的 Lead/Manager 与管理层可查看
func (s *historyService) ListByTimesheet(ctx context.Context, timesheetID string, viewer Actor) ([]*HistoryItem, error) {
	if err := s.authorizeViewer(ctx, timesheetID, viewer); err != nil {
		return nil, err
	}

	models, err := repository.NewApprovalHistoryRepository(s.db).FindByTimesheet(ctx, timesheetID)
	if err != nil {
		return nil, wrapDBError(err, "approval history")
	}

	items := make([]*HistoryItem, 0, len(models))
	for _, m := range models {
		items = append(items, &HistoryItem{
			ID:           m.ID,
			TimesheetID:  m.TimesheetID,
			ProjectID:    m.ProjectID,
			ActorID:      m.ActorID,
			ActorRole:    string(m.ActorRole),
			Action:       string(m.Action),
			StatusBefore: string(m.StatusBefore),
			StatusAfter:  string(m.StatusAfter),
			Reason:       m.Reason,
			CreatedAt:    m.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *historyService) authorizeViewer(ctx context.Context, timesheetID string, viewer Actor) error {
	ts, err := repository.NewTimesheetRepository(s.db).FindByID(ctx, timesheetID)
	if err != nil {
		return wrapDBError(err, "timesheet")
	}
	if ts.UserID == viewer.UserID || viewer.Role.IsManagement() {
		return nil
	}

	records, err := repository.NewProjectApprovalRepository(s.db).FindByTimesheet(ctx, ts.ID)
	if err != nil {
		return wrapDBError(err, "project approvals")
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ProjectID)
	}
	configs, err := loadProjectConfigs(ctx, repository.NewDirectoryRepository(s.db), ids)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if cfg.IsLead(viewer.UserID) || cfg.IsManager(viewer.UserID) {
			return nil
		}
	}
	return forbidden("user %s cannot view history of timesheet %s", viewer.UserID, timesheetID)
}
