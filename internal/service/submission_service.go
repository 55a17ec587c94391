package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SubmissionService 工时表提交服务
type SubmissionService interface {
	SubmitTimesheet(ctx context.Context, timesheetID string, actor Actor) (*SubmitResult, error)
	ValidateLeadCanSubmit(ctx context.Context, leadID string, weekStart time.Time) (*LeadSubmitCheck, error)
}

// SubmitResult 提交结果
// @Description 提交后的工时表状态与各项目审批记录
type SubmitResult struct {
	TimesheetID string                 `json:"timesheet_id"`
	Status      string                 `json:"status"`
	SubmittedAt string                 `json:"submitted_at"`
	Projects    []*ProjectApprovalView `json:"projects"`
}

// PendingReview Lead 尚未处理的员工工时
type PendingReview struct {
	TimesheetID string `json:"timesheet_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// LeadSubmitCheck Lead 提交前检查结果
// @Description Lead 是否已处理完本周所有员工工时
type LeadSubmitCheck struct {
	LeadID         string          `json:"lead_id"`
	WeekStart      string          `json:"week_start"`
	CanSubmit      bool            `json:"can_submit"`
	PendingReviews []PendingReview `json:"pending_reviews"`
}

var resubmittable = []model.TimesheetStatus{
	model.StatusDraft,
	model.StatusLeadRejected,
	model.StatusManagerRejected,
	model.StatusManagementRejected,
}

type submissionService struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewSubmissionService 创建提交服务
func NewSubmissionService(db *gorm.DB, logger *logrus.Logger) SubmissionService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &submissionService{db: db, logger: logger, now: time.Now}
}

// SubmitTimesheet 提交工时表,按条目中的项目重建审批记录
func (s *submissionService) SubmitTimesheet(ctx context.Context, timesheetID string, actor Actor) (*SubmitResult, error) {
	var result *SubmitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		timesheets := repository.NewTimesheetRepository(tx)
		ts, err := timesheets.FindByIDForUpdate(ctx, timesheetID)
		if err != nil {
			return wrapDBError(err, "timesheet "+timesheetID)
		}
		if ts.UserID != actor.UserID {
			return forbidden("only the owner can submit timesheet %s", ts.ID)
		}
		if ts.IsFrozen || ts.Status == model.StatusBilled {
			return invalidTransition("timesheet %s is %s", ts.ID, ts.Status)
		}
		if !statusIn(ts.Status, resubmittable...) {
			return invalidTransition("timesheet %s is %s and cannot be submitted", ts.ID, ts.Status)
		}

		dir := repository.NewDirectoryRepository(tx)
		owner, err := dir.FindUser(ctx, ts.UserID)
		if err != nil {
			return wrapDBError(err, "user "+ts.UserID)
		}
		if owner.Role == model.RoleLead {
			check, err := s.leadSubmitCheck(ctx, tx, owner.ID, ts.WeekStart)
			if err != nil {
				return err
			}
			if !check.CanSubmit {
				return &Error{
					Kind:    KindInvalidTransition,
					Message: "lead must review all employee timesheets for the week before submitting",
					Details: check.PendingReviews,
				}
			}
		}

		entries, err := repository.NewTimeEntryRepository(tx).FindByTimesheet(ctx, ts.ID)
		if err != nil {
			return wrapDBError(err, "time entries")
		}
		if len(entries) == 0 {
			return validationError("timesheet %s has no time entries", ts.ID)
		}
		hours := map[string]decimal.Decimal{}
		for _, e := range entries {
			hours[e.ProjectID] = hours[e.ProjectID].Add(e.Hours)
		}
		projectIDs := make([]string, 0, len(hours))
		for id := range hours {
			projectIDs = append(projectIDs, id)
		}
		sort.Strings(projectIDs)

		configs, err := loadProjectConfigs(ctx, dir, projectIDs)
		if err != nil {
			return err
		}

		now := s.now()
		approvals := repository.NewProjectApprovalRepository(tx)
		records := make([]*model.TimesheetProjectApprovalModel, 0, len(projectIDs))
		for _, projectID := range projectIDs {
			project, ok := configs[projectID]
			if !ok {
				return notFound("project %s not found", projectID)
			}
			rec, err := approvals.Get(ctx, ts.ID, projectID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return wrapDBError(err, "project approval")
			}
			isNew := rec == nil
			if isNew {
				rec = &model.TimesheetProjectApprovalModel{
					ID:          uuid.New().String(),
					TimesheetID: ts.ID,
					ProjectID:   projectID,
					CreatedAt:   now,
				}
			}
			for _, tier := range model.Tiers {
				rec.Track(tier).Reset(initialTrackStatus(tier, project, owner.Role))
			}
			rec.WorkedHours = hours[projectID]
			rec.RecalculateBillable()
			rec.UpdatedAt = now

			if isNew {
				saved, err := approvals.Upsert(ctx, rec)
				if err != nil {
					return wrapDBError(err, "project approval")
				}
				rec = saved
			} else if err := approvals.Save(ctx, rec); err != nil {
				return wrapDBError(err, "project approval")
			}
			records = append(records, rec)
		}
		if err := approvals.DeleteByTimesheetExcept(ctx, ts.ID, projectIDs); err != nil {
			return wrapDBError(err, "project approvals")
		}
		if err := repository.NewTimeEntryRepository(tx).ClearRejected(ctx, ts.ID, ""); err != nil {
			return wrapDBError(err, "time entries")
		}

		ts.ClearRejections()
		ts.SubmittedAt = &now
		ts.Status = DeriveTimesheetStatus(ts, owner.Role, records)
		if err := timesheets.Save(ctx, ts); err != nil {
			return wrapDBError(err, "timesheet")
		}

		result = &SubmitResult{
			TimesheetID: ts.ID,
			Status:      string(ts.Status),
			SubmittedAt: now.Format(time.RFC3339),
			Projects:    make([]*ProjectApprovalView, 0, len(records)),
		}
		for _, r := range records {
			result.Projects = append(result.Projects, newProjectApprovalView(r))
		}
		return nil
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"timesheet_id": timesheetID,
			"actor_id":     actor.UserID,
			"kind":         KindOf(err),
		}).WithError(err).Warn("Timesheet submission refused")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"timesheet_id": timesheetID,
		"actor_id":     actor.UserID,
		"projects":     len(result.Projects),
	}).Info("Timesheet submitted")
	return result, nil
}

// ValidateLeadCanSubmit 检查 Lead 是否已处理本周其负责项目上的全部员工工时
func (s *submissionService) ValidateLeadCanSubmit(ctx context.Context, leadID string, weekStart time.Time) (*LeadSubmitCheck, error) {
	if leadID == "" {
		return nil, validationError("lead id is required")
	}
	if weekStart.IsZero() {
		return nil, validationError("week_start is required")
	}
	return s.leadSubmitCheck(ctx, s.db.WithContext(ctx), leadID, weekStart)
}

func (s *submissionService) leadSubmitCheck(ctx context.Context, db *gorm.DB, leadID string, weekStart time.Time) (*LeadSubmitCheck, error) {
	start, end := model.WeekBounds(weekStart)
	check := &LeadSubmitCheck{
		LeadID:         leadID,
		WeekStart:      formatDate(start),
		CanSubmit:      true,
		PendingReviews: []PendingReview{},
	}

	dir := repository.NewDirectoryRepository(db)
	projects, err := dir.FindProjectsLedBy(ctx, leadID)
	if err != nil {
		return nil, wrapDBError(err, "projects")
	}
	if len(projects) == 0 {
		return check, nil
	}

	timesheets, err := repository.NewTimesheetRepository(db).FindByWeek(ctx, start, end)
	if err != nil {
		return nil, wrapDBError(err, "timesheets")
	}
	byID := make(map[string]*model.TimesheetModel, len(timesheets))
	ids := make([]string, 0, len(timesheets))
	ownerIDs := make([]string, 0, len(timesheets))
	for _, ts := range timesheets {
		if ts.UserID == leadID || ts.Status == model.StatusDraft {
			continue
		}
		byID[ts.ID] = ts
		ids = append(ids, ts.ID)
		ownerIDs = append(ownerIDs, ts.UserID)
	}
	owners, err := dir.FindUsers(ctx, uniqueStrings(ownerIDs))
	if err != nil {
		return nil, wrapDBError(err, "users")
	}

	approvals := repository.NewProjectApprovalRepository(db)
	for _, p := range projects {
		records, err := approvals.FindByTimesheetsAndProject(ctx, ids, p.ID)
		if err != nil {
			return nil, wrapDBError(err, "project approvals")
		}
		for _, rec := range records {
			ts := byID[rec.TimesheetID]
			owner, ok := owners[ts.UserID]
			if !ok || owner.Role != model.RoleEmployee {
				continue
			}
			if rec.Lead.Status != model.TrackPending {
				continue
			}
			check.PendingReviews = append(check.PendingReviews, PendingReview{
				TimesheetID: ts.ID,
				UserID:      owner.ID,
				UserName:    owner.Name,
				ProjectID:   p.ID,
				ProjectName: p.Name,
			})
		}
	}
	check.CanSubmit = len(check.PendingReviews) == 0
	return check, nil
}
