package service

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/mautops/timesheet-gin/internal/model"
)

// ErrSelfApproval Lead/Manager 审批自己的工时表
var ErrSelfApproval = errors.New("self approval is not allowed")

// checkSelfReview Lead 与 Manager 不能审批或驳回自己的工时表
func checkSelfReview(ts *model.TimesheetModel, tier model.Tier, actor Actor) error {
	if ts.UserID != actor.UserID {
		return nil
	}
	if tier == model.TierLead || tier == model.TierManager {
		return &Error{
			Kind:    KindAuthorization,
			Message: "cannot review your own timesheet",
			Err:     ErrSelfApproval,
		}
	}
	return nil
}

// checkTierAuthority Lead/Manager 只能处理自己负责的项目
func checkTierAuthority(project ProjectConfig, tier model.Tier, actor Actor) error {
	switch tier {
	case model.TierLead:
		if !project.IsLead(actor.UserID) {
			return forbidden("user %s is not a lead of project %s", actor.UserID, project.ID)
		}
	case model.TierManager:
		if !project.IsManager(actor.UserID) {
			return forbidden("user %s is not a manager of project %s", actor.UserID, project.ID)
		}
	}
	return nil
}

// actorTier 将角色映射为审批层级
func actorTier(actor Actor) (model.Tier, error) {
	tier, ok := model.TierForRole(actor.Role)
	if !ok {
		return "", forbidden("role %q cannot review timesheets", actor.Role)
	}
	return tier, nil
}

func statusIn(status model.TimesheetStatus, allowed ...model.TimesheetStatus) bool {
	for _, s := range allowed {
		if status == s {
			return true
		}
	}
	return false
}

func isRejectedStatus(status model.TimesheetStatus) bool {
	return statusIn(status, model.StatusLeadRejected, model.StatusManagerRejected, model.StatusManagementRejected)
}

// checkApprovePrecondition 审批通过的前置状态
func checkApprovePrecondition(tier model.Tier, status model.TimesheetStatus, ownerRole model.Role, rec *model.TimesheetProjectApprovalModel) error {
	switch tier {
	case model.TierLead:
		if err := checkLeadApplies(ownerRole, rec); err != nil {
			return err
		}
		if statusIn(status, model.StatusSubmitted, model.StatusLeadApproved, model.StatusLeadRejected) {
			return nil
		}
	case model.TierManager:
		if statusIn(status, model.StatusLeadApproved, model.StatusManagementRejected) {
			return nil
		}
		if status == model.StatusSubmitted && !ownerRole.IsManagement() {
			return nil
		}
	case model.TierManagement:
		if statusIn(status, model.StatusManagerApproved, model.StatusManagementPending) {
			return nil
		}
	}
	return invalidTransition("cannot approve as %s while timesheet is %s", tier, status)
}

// checkRejectPrecondition 驳回的前置状态,同层级可用新原因再次驳回
func checkRejectPrecondition(tier model.Tier, status model.TimesheetStatus, ownerRole model.Role, rec *model.TimesheetProjectApprovalModel) error {
	switch tier {
	case model.TierLead:
		if err := checkLeadApplies(ownerRole, rec); err != nil {
			return err
		}
		if statusIn(status, model.StatusSubmitted, model.StatusLeadApproved, model.StatusLeadRejected) {
			return nil
		}
	case model.TierManager:
		if statusIn(status,
			model.StatusSubmitted,
			model.StatusLeadApproved,
			model.StatusManagerApproved,
			model.StatusManagementPending,
			model.StatusManagerRejected,
			model.StatusManagementRejected,
		) {
			return nil
		}
	case model.TierManagement:
		if statusIn(status, model.StatusManagerApproved, model.StatusManagementPending, model.StatusManagementRejected) {
			return nil
		}
	}
	return invalidTransition("cannot reject as %s while timesheet is %s", tier, status)
}

// awaitsHigherTier 上层级已驳回时,本层级的通过需要重新执行以重置上层轨道
func awaitsHigherTier(tier model.Tier, status model.TimesheetStatus, rec *model.TimesheetProjectApprovalModel) bool {
	higher := false
	for _, t := range model.Tiers {
		if higher && (rec.Track(t).Status == model.TrackRejected || status == model.RejectedStatus(t)) {
			return true
		}
		if t == tier {
			higher = true
		}
	}
	return false
}

func checkLeadApplies(ownerRole model.Role, rec *model.TimesheetProjectApprovalModel) error {
	if ownerRole != model.RoleEmployee {
		return invalidTransition("lead review applies only to employee timesheets")
	}
	if rec.Lead.Status == model.TrackNotRequired {
		return invalidTransition("project %s does not require lead review for this timesheet", rec.ProjectID)
	}
	return nil
}

// checkMutable 已冻结或已计费的工时表不可变更
func checkMutable(ts *model.TimesheetModel) error {
	if ts.Status == model.StatusBilled {
		return invalidTransition("timesheet %s is already billed", ts.ID)
	}
	if ts.IsFrozen {
		return invalidTransition("timesheet %s is frozen", ts.ID)
	}
	if ts.Status == model.StatusDraft {
		return invalidTransition("timesheet %s has not been submitted", ts.ID)
	}
	return nil
}

// normalizeReason 校验驳回原因长度
func normalizeReason(reason string, minLength int) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", validationError("rejection reason is required")
	}
	if utf8.RuneCountInString(reason) < minLength {
		return "", validationError("rejection reason must be at least %d characters", minLength)
	}
	return reason, nil
}

// initialTrackStatus 驳回级联时各轨道恢复的初始状态
func initialTrackStatus(tier model.Tier, project ProjectConfig, ownerRole model.Role) model.TrackStatus {
	if tier == model.TierLead {
		return model.InitialLeadStatus(project.HasLead(), ownerRole)
	}
	return model.TrackPending
}
