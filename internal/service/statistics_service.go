package service

import (
	"context"
	"time"

	"github.com/mautops/timesheet-gin/internal/model"
	"gorm.io/gorm"
)

// StatisticsService 审批统计服务接口
type StatisticsService interface {
	GetStatistics(ctx context.Context, actor Actor, filter StatisticsFilter) (*Statistics, error)
}

// StatisticsFilter 统计时间范围,按周起始日过滤,零值表示不限
type StatisticsFilter struct {
	WeekFrom time.Time
	WeekTo   time.Time
}

// TimesheetStatisticsByStatus 按状态统计
type TimesheetStatisticsByStatus struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// TimesheetStatisticsByWeek 按周统计
type TimesheetStatisticsByWeek struct {
	WeekStart string `json:"week_start"`
	Count     int64  `json:"count"`
}

// TierStatistics 单个层级的审批动作统计
type TierStatistics struct {
	Tier          string  `json:"tier"`
	ApprovedCount int64   `json:"approved_count"`
	RejectedCount int64   `json:"rejected_count"`
	ApprovalRate  float64 `json:"approval_rate"`
}

// ApprovalStatistics 审批统计
type ApprovalStatistics struct {
	TotalActions  int64            `json:"total_actions"`
	ApprovedCount int64            `json:"approved_count"`
	RejectedCount int64            `json:"rejected_count"`
	VerifiedCount int64            `json:"verified_count"`
	BilledCount   int64            `json:"billed_count"`
	ApprovalRate  float64          `json:"approval_rate"` // 通过 / (通过 + 驳回),百分比
	ByTier        []TierStatistics `json:"by_tier"`
}

// Statistics 统计结果
type Statistics struct {
	WeekFrom  string                         `json:"week_from,omitempty"`
	WeekTo    string                         `json:"week_to,omitempty"`
	ByStatus  []*TimesheetStatisticsByStatus `json:"by_status"`
	ByWeek    []*TimesheetStatisticsByWeek   `json:"by_week"`
	Approvals *ApprovalStatistics            `json:"approvals"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db *gorm.DB
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetStatistics 统计工时表状态分布与审批动作,仅 Management 可见
func (s *statisticsService) GetStatistics(ctx context.Context, actor Actor, filter StatisticsFilter) (*Statistics, error) {
	if !actor.Role.IsManagement() {
		return nil, forbidden("only management can view approval statistics")
	}
	if !filter.WeekFrom.IsZero() && !filter.WeekTo.IsZero() && filter.WeekTo.Before(filter.WeekFrom) {
		return nil, validationError("week_to must not be before week_from")
	}

	stats := &Statistics{}
	if !filter.WeekFrom.IsZero() {
		stats.WeekFrom = formatDate(filter.WeekFrom)
	}
	if !filter.WeekTo.IsZero() {
		stats.WeekTo = formatDate(filter.WeekTo)
	}

	var err error
	if stats.ByStatus, err = s.byStatus(ctx, filter); err != nil {
		return nil, err
	}
	if stats.ByWeek, err = s.byWeek(ctx, filter); err != nil {
		return nil, err
	}
	if stats.Approvals, err = s.approvals(ctx, filter); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *statisticsService) timesheets(ctx context.Context, filter StatisticsFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&model.TimesheetModel{})
	if !filter.WeekFrom.IsZero() {
		q = q.Where("week_start >= ?", model.NormalizeDate(filter.WeekFrom))
	}
	if !filter.WeekTo.IsZero() {
		q = q.Where("week_start <= ?", model.NormalizeDate(filter.WeekTo))
	}
	return q
}

// byStatus 按状态统计工时表
func (s *statisticsService) byStatus(ctx context.Context, filter StatisticsFilter) ([]*TimesheetStatisticsByStatus, error) {
	var results []struct {
		Status string
		Count  int64
	}
	err := s.timesheets(ctx, filter).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status ASC").
		Scan(&results).Error
	if err != nil {
		return nil, wrapDBError(err, "timesheet statistics by status")
	}

	stats := make([]*TimesheetStatisticsByStatus, 0, len(results))
	for _, r := range results {
		stats = append(stats, &TimesheetStatisticsByStatus{Status: r.Status, Count: r.Count})
	}
	return stats, nil
}

// byWeek 按周统计工时表,最近的周在前
func (s *statisticsService) byWeek(ctx context.Context, filter StatisticsFilter) ([]*TimesheetStatisticsByWeek, error) {
	var results []struct {
		WeekStart time.Time
		Count     int64
	}
	err := s.timesheets(ctx, filter).
		Select("week_start, COUNT(*) as count").
		Group("week_start").
		Order("week_start DESC").
		Scan(&results).Error
	if err != nil {
		return nil, wrapDBError(err, "timesheet statistics by week")
	}

	stats := make([]*TimesheetStatisticsByWeek, 0, len(results))
	for _, r := range results {
		stats = append(stats, &TimesheetStatisticsByWeek{WeekStart: formatDate(r.WeekStart), Count: r.Count})
	}
	return stats, nil
}

// approvals 统计审批历史中的动作,按操作人角色归入层级
func (s *statisticsService) approvals(ctx context.Context, filter StatisticsFilter) (*ApprovalStatistics, error) {
	q := s.db.WithContext(ctx).Model(&model.ApprovalHistoryModel{})
	if !filter.WeekFrom.IsZero() {
		q = q.Where("created_at >= ?", model.NormalizeDate(filter.WeekFrom))
	}
	if !filter.WeekTo.IsZero() {
		// 截止周的周日结束
		q = q.Where("created_at < ?", model.NormalizeDate(filter.WeekTo).AddDate(0, 0, 7))
	}

	var results []struct {
		ActorRole string
		Action    string
		Count     int64
	}
	err := q.Select("actor_role, action, COUNT(*) as count").
		Group("actor_role, action").
		Scan(&results).Error
	if err != nil {
		return nil, wrapDBError(err, "approval statistics")
	}

	stats := &ApprovalStatistics{}
	byTier := make(map[model.Tier]*TierStatistics, len(model.Tiers))
	for _, tier := range model.Tiers {
		byTier[tier] = &TierStatistics{Tier: string(tier)}
	}

	for _, r := range results {
		stats.TotalActions += r.Count
		tier, hasTier := model.TierForRole(model.Role(r.ActorRole))
		switch model.HistoryAction(r.Action) {
		case model.ActionApproved:
			stats.ApprovedCount += r.Count
			if hasTier {
				byTier[tier].ApprovedCount += r.Count
			}
		case model.ActionRejected:
			stats.RejectedCount += r.Count
			if hasTier {
				byTier[tier].RejectedCount += r.Count
			}
		case model.ActionVerified:
			stats.VerifiedCount += r.Count
		case model.ActionBilled:
			stats.BilledCount += r.Count
		}
	}

	stats.ApprovalRate = approvalRate(stats.ApprovedCount, stats.RejectedCount)
	for _, tier := range model.Tiers {
		t := byTier[tier]
		t.ApprovalRate = approvalRate(t.ApprovedCount, t.RejectedCount)
		stats.ByTier = append(stats.ByTier, *t)
	}
	return stats, nil
}

func approvalRate(approved, rejected int64) float64 {
	if approved+rejected == 0 {
		return 0
	}
	return float64(approved) / float64(approved+rejected) * 100
}
