package service

import (
	"context"
	"sort"
	"time"

	"github.com/mautops/timesheet-gin/internal/metrics"
	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Actor 当前操作人
type Actor struct {
	UserID string
	Role   model.Role
}

// ApprovalService 三级审批流转服务
type ApprovalService interface {
	ApproveTimesheetForProject(ctx context.Context, timesheetID, projectID string, actor Actor) (*TransitionResult, error)
	RejectTimesheetForProject(ctx context.Context, timesheetID, projectID string, actor Actor, reason string) (*TransitionResult, error)
	// 项目周批量操作
	ApproveProjectWeek(ctx context.Context, key ProjectWeekKey, actor Actor) (*ProjectWeekResult, error)
	RejectProjectWeek(ctx context.Context, key ProjectWeekKey, actor Actor, reason string) (*ProjectWeekResult, error)
	BulkFreezeProjectWeek(ctx context.Context, key ProjectWeekKey, actor Actor) (*BulkFreezeResult, error)
	// 核验与计费
	BulkVerifyTimesheets(ctx context.Context, timesheetIDs []string, actor Actor) (*BulkResult, error)
	BulkBillTimesheets(ctx context.Context, timesheetIDs []string, actor Actor) (*BulkResult, error)
	UpdateBillableAdjustment(ctx context.Context, timesheetID, projectID string, adjustment decimal.Decimal, actor Actor) (*ProjectApprovalView, error)
}

type approvalService struct {
	db       *gorm.DB
	history  HistoryService
	logger   *logrus.Logger
	tunables *Tunables
	now      func() time.Time
}

// NewApprovalService 创建审批服务
func NewApprovalService(db *gorm.DB, history HistoryService, logger *logrus.Logger, tunables *Tunables) ApprovalService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if tunables == nil {
		tunables = NewTunables(DefaultApprovalOptions())
	}
	return &approvalService{
		db:       db,
		history:  history,
		logger:   logger,
		tunables: tunables,
		now:      time.Now,
	}
}

// timesheetState 事务内加载的工时表快照
type timesheetState struct {
	timesheet *model.TimesheetModel
	owner     *model.UserModel
	records   []*model.TimesheetProjectApprovalModel
	projects  map[string]ProjectConfig
}

func (st *timesheetState) record(projectID string) *model.TimesheetProjectApprovalModel {
	for _, r := range st.records {
		if r.ProjectID == projectID {
			return r
		}
	}
	return nil
}

// transition 单条记录的流转结果
type transition struct {
	tier    model.Tier
	before  model.TimesheetStatus
	after   model.TimesheetStatus
	changed bool
	record  *model.TimesheetProjectApprovalModel
}

// loadState 加锁读取工时表及其全部项目审批记录
func (s *approvalService) loadState(ctx context.Context, tx *gorm.DB, timesheetID string) (*timesheetState, error) {
	ts, err := repository.NewTimesheetRepository(tx).FindByIDForUpdate(ctx, timesheetID)
	if err != nil {
		return nil, wrapDBError(err, "timesheet "+timesheetID)
	}
	dir := repository.NewDirectoryRepository(tx)
	owner, err := dir.FindUser(ctx, ts.UserID)
	if err != nil {
		return nil, wrapDBError(err, "timesheet owner "+ts.UserID)
	}
	records, err := repository.NewProjectApprovalRepository(tx).FindByTimesheet(ctx, ts.ID)
	if err != nil {
		return nil, wrapDBError(err, "project approvals")
	}
	projectIDs := make([]string, 0, len(records))
	for _, r := range records {
		projectIDs = append(projectIDs, r.ProjectID)
	}
	projects, err := loadProjectConfigs(ctx, dir, projectIDs)
	if err != nil {
		return nil, err
	}
	return &timesheetState{timesheet: ts, owner: owner, records: records, projects: projects}, nil
}

// targetRecord 返回目标项目的审批记录与项目配置
func (st *timesheetState) targetRecord(projectID string) (*model.TimesheetProjectApprovalModel, ProjectConfig, error) {
	rec := st.record(projectID)
	if rec == nil {
		return nil, ProjectConfig{}, notFound("timesheet %s has no approval record for project %s", st.timesheet.ID, projectID)
	}
	project, ok := st.projects[projectID]
	if !ok {
		return nil, ProjectConfig{}, notFound("project %s not found", projectID)
	}
	return rec, project, nil
}

// recompute 重新读取记录集并推导工时表状态
func (s *approvalService) recompute(ctx context.Context, tx *gorm.DB, st *timesheetState, now time.Time) (model.TimesheetStatus, error) {
	records, err := repository.NewProjectApprovalRepository(tx).FindByTimesheet(ctx, st.timesheet.ID)
	if err != nil {
		return "", wrapDBError(err, "project approvals")
	}
	st.records = records

	ts := st.timesheet
	status := DeriveTimesheetStatus(ts, st.owner.Role, records)
	if status == model.StatusFrozen && !ts.IsFrozen {
		ts.Freeze(now)
		if err := repository.NewTimeEntryRepository(tx).ClearRejected(ctx, ts.ID, ""); err != nil {
			return "", wrapDBError(err, "time entries")
		}
	}
	if !isRejectedStatus(status) {
		ts.ClearRejections()
	}
	ts.Status = status
	if err := repository.NewTimesheetRepository(tx).Save(ctx, ts); err != nil {
		return "", wrapDBError(err, "timesheet")
	}
	return status, nil
}

// approveRecord 在事务内对单条项目审批记录执行通过
func (s *approvalService) approveRecord(ctx context.Context, tx *gorm.DB, st *timesheetState, projectID string, actor Actor) (*transition, error) {
	tier, err := actorTier(actor)
	if err != nil {
		return nil, err
	}
	rec, project, err := st.targetRecord(projectID)
	if err != nil {
		return nil, err
	}
	ts := st.timesheet
	if err := checkSelfReview(ts, tier, actor); err != nil {
		return nil, err
	}
	if err := checkTierAuthority(project, tier, actor); err != nil {
		return nil, err
	}

	tr := &transition{tier: tier, before: ts.Status, after: ts.Status, record: rec}
	track := rec.Track(tier)
	if track.Status == model.TrackApproved {
		// 上层级驳回后允许本层级重新通过,否则视为重复操作
		reapprove := awaitsHigherTier(tier, ts.Status, rec) &&
			checkApprovePrecondition(tier, ts.Status, st.owner.Role, rec) == nil
		if !reapprove {
			return tr, nil
		}
	}
	if err := checkMutable(ts); err != nil {
		return nil, err
	}
	if err := checkApprovePrecondition(tier, ts.Status, st.owner.Role, rec); err != nil {
		return nil, err
	}

	now := s.now()
	wasRejected := track.Status == model.TrackRejected
	track.Approve(actor.UserID, now)
	ts.MarkApprovedBy(tier, actor.UserID, now)

	switch tier {
	case model.TierLead:
		if project.AutoEscalate && rec.Manager.Status != model.TrackApproved {
			rec.Manager.Approve(actor.UserID, now)
			ts.MarkApprovedBy(model.TierManager, actor.UserID, now)
		}
	case model.TierManager:
		// Manager 可越过未处理的 Lead
		if rec.Lead.Status == model.TrackPending {
			rec.Lead.Reset(model.TrackNotRequired)
		}
		if rec.Management.Status == model.TrackRejected {
			rec.Management.Reset(model.TrackPending)
			wasRejected = true
		}
	}

	if err := repository.NewProjectApprovalRepository(tx).Save(ctx, rec); err != nil {
		return nil, wrapDBError(err, "project approval")
	}
	if wasRejected || tier == model.TierManagement {
		if err := repository.NewTimeEntryRepository(tx).ClearRejected(ctx, ts.ID, projectID); err != nil {
			return nil, wrapDBError(err, "time entries")
		}
	}

	after, err := s.recompute(ctx, tx, st, now)
	if err != nil {
		return nil, err
	}
	tr.after, tr.changed = after, true
	tr.record = st.record(projectID)

	err = s.history.Record(ctx, tx, HistoryEntry{
		TimesheetID:  ts.ID,
		ProjectID:    projectID,
		ActorID:      actor.UserID,
		ActorRole:    actor.Role,
		Action:       model.ActionApproved,
		StatusBefore: tr.before,
		StatusAfter:  after,
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// rejectRecord 在事务内驳回单条项目审批记录
// resetTarget 为 false 时目标记录的其它轨道保持不变
func (s *approvalService) rejectRecord(ctx context.Context, tx *gorm.DB, st *timesheetState, projectID string, actor Actor, reason string, resetTarget bool) (*transition, error) {
	tier, err := actorTier(actor)
	if err != nil {
		return nil, err
	}
	rec, project, err := st.targetRecord(projectID)
	if err != nil {
		return nil, err
	}
	ts := st.timesheet
	if err := checkSelfReview(ts, tier, actor); err != nil {
		return nil, err
	}
	if err := checkTierAuthority(project, tier, actor); err != nil {
		return nil, err
	}

	tr := &transition{tier: tier, before: ts.Status, after: ts.Status, record: rec}
	track := rec.Track(tier)
	if track.Status == model.TrackRejected && track.RejectionReason == reason && ts.Status == model.RejectedStatus(tier) {
		return tr, nil
	}
	if err := checkMutable(ts); err != nil {
		return nil, err
	}
	if err := checkRejectPrecondition(tier, ts.Status, st.owner.Role, rec); err != nil {
		return nil, err
	}

	now := s.now()
	approvals := repository.NewProjectApprovalRepository(tx)
	for _, r := range st.records {
		isTarget := r.ID == rec.ID
		if isTarget && !resetTarget {
			continue
		}
		for _, t := range model.Tiers {
			if isTarget && t == tier {
				continue
			}
			r.Track(t).Reset(initialTrackStatus(t, st.projects[r.ProjectID], st.owner.Role))
		}
		if !isTarget {
			if err := approvals.Save(ctx, r); err != nil {
				return nil, wrapDBError(err, "project approval")
			}
		}
	}
	track.Reject(reason, now)
	if err := approvals.Save(ctx, rec); err != nil {
		return nil, wrapDBError(err, "project approval")
	}

	ts.ClearRejections()
	ts.MarkRejected(tier, reason, now)
	if err := repository.NewTimeEntryRepository(tx).FlagRejected(ctx, ts.ID, projectID, reason); err != nil {
		return nil, wrapDBError(err, "time entries")
	}

	after, err := s.recompute(ctx, tx, st, now)
	if err != nil {
		return nil, err
	}
	tr.after, tr.changed = after, true
	tr.record = st.record(projectID)

	err = s.history.Record(ctx, tx, HistoryEntry{
		TimesheetID:  ts.ID,
		ProjectID:    projectID,
		ActorID:      actor.UserID,
		ActorRole:    actor.Role,
		Action:       model.ActionRejected,
		StatusBefore: tr.before,
		StatusAfter:  after,
		Reason:       reason,
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// ApproveTimesheetForProject 审批通过工时表在某项目上的记录
func (s *approvalService) ApproveTimesheetForProject(ctx context.Context, timesheetID, projectID string, actor Actor) (*TransitionResult, error) {
	var result *TransitionResult
	var tier model.Tier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.loadState(ctx, tx, timesheetID)
		if err != nil {
			return err
		}
		tr, err := s.approveRecord(ctx, tx, st, projectID, actor)
		if err != nil {
			return err
		}
		tier = tr.tier
		result = newTransitionResult(st.timesheet, projectID, tr)
		return nil
	})
	if err != nil {
		s.logFailure(err, "approve", timesheetID, projectID, actor)
		return nil, err
	}

	if result.Changed {
		metrics.RecordTransition(string(tier), string(model.ActionApproved))
		s.logger.WithFields(logrus.Fields{
			"timesheet_id":  timesheetID,
			"project_id":    projectID,
			"actor_id":      actor.UserID,
			"tier":          tier,
			"status_before": result.StatusBefore,
			"status_after":  result.Status,
		}).Info("Timesheet approved for project")
	}
	return result, nil
}

// RejectTimesheetForProject 驳回工时表在某项目上的记录
func (s *approvalService) RejectTimesheetForProject(ctx context.Context, timesheetID, projectID string, actor Actor, reason string) (*TransitionResult, error) {
	reason, err := normalizeReason(reason, s.tunables.Get().MinRejectionReasonLength)
	if err != nil {
		return nil, err
	}

	var result *TransitionResult
	var tier model.Tier
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.loadState(ctx, tx, timesheetID)
		if err != nil {
			return err
		}
		tr, err := s.rejectRecord(ctx, tx, st, projectID, actor, reason, true)
		if err != nil {
			return err
		}
		tier = tr.tier
		result = newTransitionResult(st.timesheet, projectID, tr)
		return nil
	})
	if err != nil {
		s.logFailure(err, "reject", timesheetID, projectID, actor)
		return nil, err
	}

	if result.Changed {
		metrics.RecordTransition(string(tier), string(model.ActionRejected))
		s.logger.WithFields(logrus.Fields{
			"timesheet_id":  timesheetID,
			"project_id":    projectID,
			"actor_id":      actor.UserID,
			"tier":          tier,
			"status_before": result.StatusBefore,
			"status_after":  result.Status,
		}).Info("Timesheet rejected for project")
	}
	return result, nil
}

func (s *approvalService) logFailure(err error, op, timesheetID, projectID string, actor Actor) {
	entry := s.logger.WithFields(logrus.Fields{
		"operation":    op,
		"timesheet_id": timesheetID,
		"project_id":   projectID,
		"actor_id":     actor.UserID,
		"kind":         KindOf(err),
	}).WithError(err)
	if KindOf(err) == KindInternal {
		entry.Error("Approval operation failed")
		return
	}
	entry.Warn("Approval operation refused")
}

func newTransitionResult(ts *model.TimesheetModel, projectID string, tr *transition) *TransitionResult {
	return &TransitionResult{
		TimesheetID:  ts.ID,
		ProjectID:    projectID,
		StatusBefore: string(tr.before),
		Status:       string(tr.after),
		IsFrozen:     ts.IsFrozen,
		Changed:      tr.changed,
		Approval:     newProjectApprovalView(tr.record),
	}
}

// sortRecordsByTimesheet 按工时表 ID 排序以保证加锁顺序一致
func sortRecordsByTimesheet(records []*model.TimesheetProjectApprovalModel) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].TimesheetID < records[j].TimesheetID
	})
}
