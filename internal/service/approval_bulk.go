package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mautops/timesheet-gin/internal/metrics"
	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProjectWeekKey 项目周标识
type ProjectWeekKey struct {
	ProjectID string
	WeekStart time.Time
	WeekEnd   time.Time
}

// normalize 日期截断到零点,缺省周末为周一 + 6 天
func (k ProjectWeekKey) normalize() (ProjectWeekKey, error) {
	if k.ProjectID == "" {
		return k, validationError("project_id is required")
	}
	if k.WeekStart.IsZero() {
		return k, validationError("week_start is required")
	}
	k.WeekStart = model.NormalizeDate(k.WeekStart)
	if k.WeekEnd.IsZero() {
		k.WeekEnd = k.WeekStart.AddDate(0, 0, 6)
	}
	k.WeekEnd = model.NormalizeDate(k.WeekEnd)
	if k.WeekEnd.Before(k.WeekStart) {
		return k, validationError("week_end must not be before week_start")
	}
	return k, nil
}

// ProjectWeekResult 项目周批量审批结果
// @Description 批量审批或驳回一个项目周的汇总
type ProjectWeekResult struct {
	ProjectID            string   `json:"project_id"`
	WeekStart            string   `json:"week_start"`
	WeekEnd              string   `json:"week_end"`
	AffectedUsers        int      `json:"affected_users"`
	AffectedUserIDs      []string `json:"affected_user_ids"`
	AffectedTimesheets   int      `json:"affected_timesheets"`
	SkippedSelfApprovals int      `json:"skipped_self_approvals"`
	SkippedIneligible    int      `json:"skipped_ineligible"`
}

// BlockingTimesheet 阻止冻结的工时表
type BlockingTimesheet struct {
	TimesheetID string `json:"timesheet_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Status      string `json:"status"`
}

// BulkItemResult 批量操作单项结果
type BulkItemResult struct {
	TimesheetID string `json:"timesheet_id"`
	Success     bool   `json:"success"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BulkFreezeResult 项目周冻结结果
// @Description 冻结一个项目周的汇总
type BulkFreezeResult struct {
	ProjectID    string           `json:"project_id"`
	WeekStart    string           `json:"week_start"`
	WeekEnd      string           `json:"week_end"`
	FrozenCount  int              `json:"frozen_count"`
	SkippedCount int              `json:"skipped_count"`
	FailedCount  int              `json:"failed_count"`
	Failures     []BulkItemResult `json:"failures,omitempty"`
}

// BulkResult 按工时表 ID 的批量操作结果
// @Description 批量核验或计费的结果
type BulkResult struct {
	Total        int              `json:"total"`
	SuccessCount int              `json:"success_count"`
	FailedCount  int              `json:"failed_count"`
	Results      []BulkItemResult `json:"results"`
}

type recordApplier func(ctx context.Context, tx *gorm.DB, st *timesheetState) (*transition, error)

// applyProjectWeek 在单个事务内对项目周的全部记录执行同一操作
func (s *approvalService) applyProjectWeek(ctx context.Context, key ProjectWeekKey, actor Actor, operation string, apply recordApplier) (*ProjectWeekResult, error) {
	key, err := key.normalize()
	if err != nil {
		return nil, err
	}
	tier, err := actorTier(actor)
	if err != nil {
		return nil, err
	}

	result := &ProjectWeekResult{
		ProjectID:       key.ProjectID,
		WeekStart:       formatDate(key.WeekStart),
		WeekEnd:         formatDate(key.WeekEnd),
		AffectedUserIDs: []string{},
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := loadProjectConfig(ctx, repository.NewDirectoryRepository(tx), key.ProjectID)
		if err != nil {
			return err
		}
		if err := checkTierAuthority(project, tier, actor); err != nil {
			return err
		}

		records, err := s.projectWeekRecords(ctx, tx, key)
		if err != nil {
			return err
		}

		users := map[string]bool{}
		for _, rec := range records {
			st, err := s.loadState(ctx, tx, rec.TimesheetID)
			if err != nil {
				return err
			}
			tr, err := apply(ctx, tx, st)
			switch {
			case errors.Is(err, ErrSelfApproval):
				result.SkippedSelfApprovals++
			case IsKind(err, KindInvalidTransition):
				result.SkippedIneligible++
			case err != nil:
				return err
			case !tr.changed:
				result.SkippedIneligible++
			default:
				result.AffectedTimesheets++
				if !users[st.timesheet.UserID] {
					users[st.timesheet.UserID] = true
					result.AffectedUserIDs = append(result.AffectedUserIDs, st.timesheet.UserID)
				}
			}
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, operation, "", key.ProjectID, actor)
		return nil, err
	}

	sort.Strings(result.AffectedUserIDs)
	result.AffectedUsers = len(result.AffectedUserIDs)
	metrics.RecordBulk(operation, "affected", result.AffectedTimesheets)
	metrics.RecordBulk(operation, "skipped_self", result.SkippedSelfApprovals)
	metrics.RecordBulk(operation, "skipped_ineligible", result.SkippedIneligible)
	s.logger.WithFields(logrus.Fields{
		"operation":              operation,
		"project_id":             key.ProjectID,
		"week_start":             result.WeekStart,
		"actor_id":               actor.UserID,
		"affected_timesheets":    result.AffectedTimesheets,
		"skipped_self_approvals": result.SkippedSelfApprovals,
		"skipped_ineligible":     result.SkippedIneligible,
	}).Info("Project week processed")
	return result, nil
}

// projectWeekRecords 项目周内全部工时表在该项目上的审批记录
func (s *approvalService) projectWeekRecords(ctx context.Context, tx *gorm.DB, key ProjectWeekKey) ([]*model.TimesheetProjectApprovalModel, error) {
	timesheets, err := repository.NewTimesheetRepository(tx).FindByWeek(ctx, key.WeekStart, key.WeekEnd)
	if err != nil {
		return nil, wrapDBError(err, "timesheets")
	}
	ids := make([]string, 0, len(timesheets))
	for _, ts := range timesheets {
		ids = append(ids, ts.ID)
	}
	records, err := repository.NewProjectApprovalRepository(tx).FindByTimesheetsAndProject(ctx, ids, key.ProjectID)
	if err != nil {
		return nil, wrapDBError(err, "project approvals")
	}
	sortRecordsByTimesheet(records)
	return records, nil
}

// ApproveProjectWeek 批量通过项目周,跳过自己的工时表与不满足前置条件的记录
func (s *approvalService) ApproveProjectWeek(ctx context.Context, key ProjectWeekKey, actor Actor) (*ProjectWeekResult, error) {
	return s.applyProjectWeek(ctx, key, actor, "approve_project_week", func(ctx context.Context, tx *gorm.DB, st *timesheetState) (*transition, error) {
		return s.approveRecord(ctx, tx, st, key.ProjectID, actor)
	})
}

// RejectProjectWeek 批量驳回项目周
func (s *approvalService) RejectProjectWeek(ctx context.Context, key ProjectWeekKey, actor Actor, reason string) (*ProjectWeekResult, error) {
	reason, err := normalizeReason(reason, s.tunables.Get().MinRejectionReasonLength)
	if err != nil {
		return nil, err
	}
	return s.applyProjectWeek(ctx, key, actor, "reject_project_week", func(ctx context.Context, tx *gorm.DB, st *timesheetState) (*transition, error) {
		return s.rejectRecord(ctx, tx, st, key.ProjectID, actor, reason, false)
	})
}

// BulkFreezeProjectWeek 冻结项目周内已由 Manager 通过的工时表
// 存在待处理或被驳回的工时表时整体拒绝
func (s *approvalService) BulkFreezeProjectWeek(ctx context.Context, key ProjectWeekKey, actor Actor) (*BulkFreezeResult, error) {
	if !actor.Role.IsManagement() {
		return nil, forbidden("only management can freeze a project week")
	}
	key, err := key.normalize()
	if err != nil {
		return nil, err
	}
	dir := repository.NewDirectoryRepository(s.db)
	if _, err := loadProjectConfig(ctx, dir, key.ProjectID); err != nil {
		return nil, err
	}

	records, err := s.projectWeekRecords(ctx, s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.TimesheetID)
	}
	timesheets, err := repository.NewTimesheetRepository(s.db).FindByIDs(ctx, ids)
	if err != nil {
		return nil, wrapDBError(err, "timesheets")
	}

	result := &BulkFreezeResult{
		ProjectID: key.ProjectID,
		WeekStart: formatDate(key.WeekStart),
		WeekEnd:   formatDate(key.WeekEnd),
	}
	var blocking []BlockingTimesheet
	var candidates []*model.TimesheetModel
	for _, ts := range timesheets {
		switch ts.Status {
		case model.StatusSubmitted, model.StatusManagerRejected, model.StatusManagementRejected:
			blocking = append(blocking, BlockingTimesheet{TimesheetID: ts.ID, UserID: ts.UserID, Status: string(ts.Status)})
		case model.StatusManagerApproved, model.StatusManagementPending:
			candidates = append(candidates, ts)
		default:
			result.SkippedCount++
		}
	}
	if len(blocking) > 0 {
		return nil, s.blockingError(ctx, dir, blocking)
	}

	for _, ts := range candidates {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			st, err := s.loadState(ctx, tx, ts.ID)
			if err != nil {
				return err
			}
			_, err = s.freezeTimesheet(ctx, tx, st, key.ProjectID, actor)
			return err
		})
		if err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, BulkItemResult{TimesheetID: ts.ID, Error: err.Error()})
			s.logFailure(err, "freeze_project_week", ts.ID, key.ProjectID, actor)
			continue
		}
		result.FrozenCount++
	}

	metrics.RecordBulk("freeze_project_week", "affected", result.FrozenCount)
	metrics.RecordBulk("freeze_project_week", "skipped_ineligible", result.SkippedCount)
	metrics.RecordBulk("freeze_project_week", "failed", result.FailedCount)
	s.logger.WithFields(logrus.Fields{
		"project_id": key.ProjectID,
		"week_start": result.WeekStart,
		"actor_id":   actor.UserID,
		"frozen":     result.FrozenCount,
		"skipped":    result.SkippedCount,
		"failed":     result.FailedCount,
	}).Info("Project week frozen")
	return result, nil
}

func (s *approvalService) blockingError(ctx context.Context, dir repository.DirectoryRepository, blocking []BlockingTimesheet) error {
	userIDs := make([]string, 0, len(blocking))
	for _, b := range blocking {
		userIDs = append(userIDs, b.UserID)
	}
	users, err := dir.FindUsers(ctx, userIDs)
	if err != nil {
		return wrapDBError(err, "users")
	}
	names := make([]string, 0, len(blocking))
	for i := range blocking {
		name := blocking[i].UserID
		if u, ok := users[blocking[i].UserID]; ok {
			name = u.Name
		}
		blocking[i].UserName = name
		names = append(names, name)
	}
	sort.Strings(names)
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot freeze project week, timesheets still awaiting action: %s", strings.Join(names, ", ")),
		Details: blocking,
	}
}

// freezeTimesheet 以 Management 身份通过全部项目并冻结工时表
func (s *approvalService) freezeTimesheet(ctx context.Context, tx *gorm.DB, st *timesheetState, projectID string, actor Actor) (*transition, error) {
	ts := st.timesheet
	tr := &transition{tier: model.TierManagement, before: ts.Status}
	if err := checkMutable(ts); err != nil {
		return nil, err
	}
	if !statusIn(ts.Status, model.StatusManagerApproved, model.StatusManagementPending) {
		return nil, invalidTransition("timesheet %s is %s and cannot be frozen", ts.ID, ts.Status)
	}

	now := s.now()
	approvals := repository.NewProjectApprovalRepository(tx)
	for _, rec := range st.records {
		if rec.Management.Status == model.TrackApproved {
			continue
		}
		rec.Management.Approve(actor.UserID, now)
		if err := approvals.Save(ctx, rec); err != nil {
			return nil, wrapDBError(err, "project approval")
		}
	}
	if err := repository.NewTimeEntryRepository(tx).ClearRejected(ctx, ts.ID, ""); err != nil {
		return nil, wrapDBError(err, "time entries")
	}
	ts.MarkApprovedBy(model.TierManagement, actor.UserID, now)
	ts.Freeze(now)

	after, err := s.recompute(ctx, tx, st, now)
	if err != nil {
		return nil, err
	}
	tr.after, tr.changed = after, true

	err = s.history.Record(ctx, tx, HistoryEntry{
		TimesheetID:  ts.ID,
		ProjectID:    projectID,
		ActorID:      actor.UserID,
		ActorRole:    actor.Role,
		Action:       model.ActionVerified,
		StatusBefore: tr.before,
		StatusAfter:  after,
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}
