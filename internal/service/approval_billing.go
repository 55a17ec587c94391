package service

import (
	"context"

	"github.com/mautops/timesheet-gin/internal/metrics"
	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BulkVerifyTimesheets 按 ID 批量核验(冻结)工时表,单项失败互不影响
func (s *approvalService) BulkVerifyTimesheets(ctx context.Context, timesheetIDs []string, actor Actor) (*BulkResult, error) {
	if !actor.Role.IsManagement() {
		return nil, forbidden("only management can verify timesheets")
	}
	return s.eachTimesheet(ctx, "bulk_verify", timesheetIDs, actor, func(tx *gorm.DB, id string) (model.TimesheetStatus, error) {
		st, err := s.loadState(ctx, tx, id)
		if err != nil {
			return "", err
		}
		tr, err := s.freezeTimesheet(ctx, tx, st, "", actor)
		if err != nil {
			return "", err
		}
		return tr.after, nil
	})
}

// BulkBillTimesheets 将已冻结的工时表标记为已计费
func (s *approvalService) BulkBillTimesheets(ctx context.Context, timesheetIDs []string, actor Actor) (*BulkResult, error) {
	if !actor.Role.IsManagement() {
		return nil, forbidden("only management can bill timesheets")
	}
	return s.eachTimesheet(ctx, "bulk_bill", timesheetIDs, actor, func(tx *gorm.DB, id string) (model.TimesheetStatus, error) {
		repo := repository.NewTimesheetRepository(tx)
		ts, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return "", wrapDBError(err, "timesheet "+id)
		}
		if ts.Status != model.StatusFrozen {
			return "", invalidTransition("timesheet %s is %s, only frozen timesheets can be billed", id, ts.Status)
		}
		before := ts.Status
		now := s.now()
		ts.Status = model.StatusBilled
		ts.BilledAt = &now
		if err := repo.Save(ctx, ts); err != nil {
			return "", wrapDBError(err, "timesheet")
		}
		err = s.history.Record(ctx, tx, HistoryEntry{
			TimesheetID:  ts.ID,
			ActorID:      actor.UserID,
			ActorRole:    actor.Role,
			Action:       model.ActionBilled,
			StatusBefore: before,
			StatusAfter:  ts.Status,
		})
		if err != nil {
			return "", err
		}
		return ts.Status, nil
	})
}

// eachTimesheet 每个工时表独立事务执行
func (s *approvalService) eachTimesheet(ctx context.Context, operation string, ids []string, actor Actor, fn func(tx *gorm.DB, id string) (model.TimesheetStatus, error)) (*BulkResult, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, validationError("timesheet_ids must not be empty")
	}

	result := &BulkResult{Total: len(ids), Results: make([]BulkItemResult, 0, len(ids))}
	for _, id := range ids {
		var status model.TimesheetStatus
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			status, err = fn(tx, id)
			return err
		})
		item := BulkItemResult{TimesheetID: id, Success: err == nil, Status: string(status)}
		if err != nil {
			item.Error = err.Error()
			result.FailedCount++
			s.logFailure(err, operation, id, "", actor)
		} else {
			result.SuccessCount++
		}
		result.Results = append(result.Results, item)
	}

	metrics.RecordBulk(operation, "affected", result.SuccessCount)
	metrics.RecordBulk(operation, "failed", result.FailedCount)
	s.logger.WithFields(logrus.Fields{
		"operation": operation,
		"actor_id":  actor.UserID,
		"total":     result.Total,
		"succeeded": result.SuccessCount,
		"failed":    result.FailedCount,
	}).Info("Bulk timesheet operation completed")
	return result, nil
}

// UpdateBillableAdjustment 调整项目计费工时
// Management 可调整任意项目,Manager 只能调整自己负责的项目
func (s *approvalService) UpdateBillableAdjustment(ctx context.Context, timesheetID, projectID string, adjustment decimal.Decimal, actor Actor) (*ProjectApprovalView, error) {
	if !actor.Role.IsManagement() && actor.Role != model.RoleManager {
		return nil, forbidden("role %q cannot adjust billable hours", actor.Role)
	}

	var view *ProjectApprovalView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts, err := repository.NewTimesheetRepository(tx).FindByIDForUpdate(ctx, timesheetID)
		if err != nil {
			return wrapDBError(err, "timesheet "+timesheetID)
		}
		if actor.Role == model.RoleManager {
			project, err := loadProjectConfig(ctx, repository.NewDirectoryRepository(tx), projectID)
			if err != nil {
				return err
			}
			if !project.IsManager(actor.UserID) {
				return forbidden("user %s is not a manager of project %s", actor.UserID, projectID)
			}
		}
		if ts.Status == model.StatusBilled {
			return invalidTransition("timesheet %s is already billed", ts.ID)
		}

		approvals := repository.NewProjectApprovalRepository(tx)
		rec, err := approvals.Get(ctx, ts.ID, projectID)
		if err != nil {
			return wrapDBError(err, "project approval")
		}
		rec.BillableAdjustment = adjustment.Round(2)
		rec.RecalculateBillable()
		if rec.BillableHours.IsNegative() {
			return validationError("billable hours cannot be negative (worked %s, adjustment %s)",
				rec.WorkedHours.StringFixed(2), rec.BillableAdjustment.StringFixed(2))
		}
		if err := approvals.Save(ctx, rec); err != nil {
			return wrapDBError(err, "project approval")
		}
		view = newProjectApprovalView(rec)
		return nil
	})
	if err != nil {
		s.logFailure(err, "billable_adjustment", timesheetID, projectID, actor)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"timesheet_id":   timesheetID,
		"project_id":     projectID,
		"actor_id":       actor.UserID,
		"adjustment":     view.BillableAdjustment,
		"billable_hours": view.BillableHours,
	}).Info("Billable adjustment updated")
	return view, nil
}
