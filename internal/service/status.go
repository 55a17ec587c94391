package service

import "github.com/mautops/timesheet-gin/internal/model"

// DeriveTimesheetStatus 根据全部项目审批记录计算工时表状态
// 驳回优先于通过,高层级优先于低层级
func DeriveTimesheetStatus(ts *model.TimesheetModel, ownerRole model.Role, records []*model.TimesheetProjectApprovalModel) model.TimesheetStatus {
	if ts.Status == model.StatusBilled {
		return model.StatusBilled
	}
	if ts.IsFrozen {
		return model.StatusFrozen
	}
	if len(records) == 0 {
		return ts.Status
	}

	for _, tier := range []model.Tier{model.TierManagement, model.TierManager, model.TierLead} {
		if anyTrack(records, tier, model.TrackRejected) {
			return model.RejectedStatus(tier)
		}
	}

	if allTracks(records, model.TierManagement, model.TrackApproved) {
		return model.StatusFrozen
	}
	// Manager 本人的工时表直接进入 Management 审核
	if ownerRole == model.RoleManager {
		return model.StatusManagementPending
	}
	if allTracks(records, model.TierManager, model.TrackApproved) {
		return model.StatusManagerApproved
	}
	if allCleared(records, model.TierLead) && anyTrack(records, model.TierLead, model.TrackApproved) {
		return model.StatusLeadApproved
	}
	return model.StatusSubmitted
}

func anyTrack(records []*model.TimesheetProjectApprovalModel, tier model.Tier, status model.TrackStatus) bool {
	for _, r := range records {
		if r.Track(tier).Status == status {
			return true
		}
	}
	return false
}

func allTracks(records []*model.TimesheetProjectApprovalModel, tier model.Tier, status model.TrackStatus) bool {
	for _, r := range records {
		if r.Track(tier).Status != status {
			return false
		}
	}
	return len(records) > 0
}

func allCleared(records []*model.TimesheetProjectApprovalModel, tier model.Tier) bool {
	for _, r := range records {
		if !r.Track(tier).Status.Cleared() {
			return false
		}
	}
	return len(records) > 0
}
