package service

import "github.com/mautops/timesheet-gin/internal/model"

// ownerRule 按工时表所有者角色进一步限定可见性
type ownerRule int

const (
	anyOwner ownerRule = iota
	employeeOwner
	reviewableOwner // employee, lead, manager
)

func (r ownerRule) allows(role model.Role) bool {
	switch r {
	case employeeOwner:
		return role == model.RoleEmployee
	case reviewableOwner:
		return role == model.RoleEmployee || role == model.RoleLead || role == model.RoleManager
	}
	return true
}

// statusVisibility 审核层级 × 工时表状态
var statusVisibility = map[model.Tier]map[model.TimesheetStatus]ownerRule{
	model.TierLead: {
		model.StatusSubmitted:    employeeOwner,
		model.StatusLeadApproved: employeeOwner,
		model.StatusLeadRejected: employeeOwner,
	},
	model.TierManager: {
		model.StatusSubmitted:          reviewableOwner,
		model.StatusLeadApproved:       anyOwner,
		model.StatusLeadRejected:       anyOwner,
		model.StatusManagerApproved:    anyOwner,
		model.StatusManagerRejected:    anyOwner,
		model.StatusManagementRejected: anyOwner,
	},
	model.TierManagement: {
		model.StatusManagerApproved:   anyOwner,
		model.StatusManagementPending: anyOwner,
		model.StatusFrozen:            anyOwner,
	},
}

type trackKey struct {
	track  model.Tier
	status model.TrackStatus
}

// trackFallback 审核层级 × 项目轨道 × 轨道状态
// 工时表整体状态受其它项目拖累时按本项目轨道判断
var trackFallback = map[model.Tier]map[trackKey]bool{
	model.TierLead: {
		{model.TierLead, model.TrackPending}:  true,
		{model.TierLead, model.TrackApproved}: true,
		{model.TierLead, model.TrackRejected}: true,
	},
	model.TierManager: {
		{model.TierLead, model.TrackApproved}:    true,
		{model.TierLead, model.TrackRejected}:    true,
		{model.TierManager, model.TrackApproved}: true,
		{model.TierManager, model.TrackRejected}: true,
	},
	model.TierManagement: {
		{model.TierManager, model.TrackApproved}:    true,
		{model.TierManagement, model.TrackPending}:  true,
		{model.TierManagement, model.TrackApproved}: true,
	},
}

// IsVisible 判断某条项目审批记录对审核层级是否可见
func IsVisible(viewer model.Tier, ts *model.TimesheetModel, ownerRole model.Role, rec *model.TimesheetProjectApprovalModel) bool {
	if ts == nil || rec == nil {
		return false
	}
	if ts.Status == model.StatusDraft || ts.DeletedAt.Valid {
		return false
	}
	if rule, ok := statusVisibility[viewer][ts.Status]; ok && rule.allows(ownerRole) {
		return true
	}
	if ts.Status == model.StatusBilled {
		return false
	}
	return trackVisible(viewer, rec)
}

func trackVisible(viewer model.Tier, rec *model.TimesheetProjectApprovalModel) bool {
	table := trackFallback[viewer]
	for _, tier := range model.Tiers {
		if !table[trackKey{tier, rec.Track(tier).Status}] {
			continue
		}
		// management 轨道在 Manager 通过前恒为 pending,此时不构成可见依据
		if viewer == model.TierManagement && tier == model.TierManagement && rec.Manager.Status != model.TrackApproved {
			continue
		}
		return true
	}
	return false
}

// GroupStatus 项目周分组状态
type GroupStatus string

const (
	GroupPending            GroupStatus = "pending"
	GroupPartiallyProcessed GroupStatus = "partially_processed"
	GroupApproved           GroupStatus = "approved"
	GroupRejected           GroupStatus = "rejected"
)

// AggregateGroupStatus 仅根据可见记录的轨道状态聚合
func AggregateGroupStatus(statuses []model.TrackStatus) GroupStatus {
	if len(statuses) == 0 {
		return GroupPending
	}
	cleared, approved := 0, 0
	for _, s := range statuses {
		switch s {
		case model.TrackRejected:
			return GroupRejected
		case model.TrackApproved:
			approved++
			cleared++
		case model.TrackNotRequired:
			cleared++
		}
	}
	switch {
	case cleared == len(statuses):
		return GroupApproved
	case approved > 0:
		return GroupPartiallyProcessed
	}
	return GroupPending
}
