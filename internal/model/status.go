package model

// Role 用户角色
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleLead       Role = "lead"
	RoleManager    Role = "manager"
	RoleManagement Role = "management"
	RoleSuperAdmin Role = "super_admin"
)

// Valid 判断角色是否合法
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleLead, RoleManager, RoleManagement, RoleSuperAdmin:
		return true
	}
	return false
}

// IsManagement Management 与 Super-admin 在审批上等价
func (r Role) IsManagement() bool {
	return r == RoleManagement || r == RoleSuperAdmin
}

// Tier 审批层级
type Tier string

const (
	TierLead       Tier = "lead"
	TierManager    Tier = "manager"
	TierManagement Tier = "management"
)

// Tiers 按审批顺序排列的层级
var Tiers = []Tier{TierLead, TierManager, TierManagement}

// TierForRole 返回角色对应的审批层级
func TierForRole(role Role) (Tier, bool) {
	switch role {
	case RoleLead:
		return TierLead, true
	case RoleManager:
		return TierManager, true
	case RoleManagement, RoleSuperAdmin:
		return TierManagement, true
	}
	return "", false
}

// TrackStatus 单个层级在单个项目上的审批状态
type TrackStatus string

const (
	TrackPending     TrackStatus = "pending"
	TrackApproved    TrackStatus = "approved"
	TrackRejected    TrackStatus = "rejected"
	TrackNotRequired TrackStatus = "not_required"
)

// Valid 判断轨道状态是否合法
func (s TrackStatus) Valid() bool {
	switch s {
	case TrackPending, TrackApproved, TrackRejected, TrackNotRequired:
		return true
	}
	return false
}

// Cleared 已通过或无需审批
func (s TrackStatus) Cleared() bool {
	return s == TrackApproved || s == TrackNotRequired
}

// TimesheetStatus 工时表状态
type TimesheetStatus string

const (
	StatusDraft              TimesheetStatus = "draft"
	StatusSubmitted          TimesheetStatus = "submitted"
	StatusLeadApproved       TimesheetStatus = "lead_approved"
	StatusLeadRejected       TimesheetStatus = "lead_rejected"
	StatusManagerApproved    TimesheetStatus = "manager_approved"
	StatusManagerRejected    TimesheetStatus = "manager_rejected"
	StatusManagementPending  TimesheetStatus = "management_pending"
	StatusManagementRejected TimesheetStatus = "management_rejected"
	StatusFrozen             TimesheetStatus = "frozen"
	StatusBilled             TimesheetStatus = "billed"
)

// RejectedStatus 返回层级对应的驳回状态
func RejectedStatus(tier Tier) TimesheetStatus {
	switch tier {
	case TierLead:
		return StatusLeadRejected
	case TierManager:
		return StatusManagerRejected
	default:
		return StatusManagementRejected
	}
}

// HistoryAction 审批历史动作
type HistoryAction string

const (
	ActionApproved HistoryAction = "approved"
	ActionRejected HistoryAction = "rejected"
	ActionVerified HistoryAction = "verified"
	ActionBilled   HistoryAction = "billed"
)

// ProjectType 项目类型
type ProjectType string

const (
	ProjectTypeRegular  ProjectType = "regular"
	ProjectTypeTraining ProjectType = "training"
)

// MemberRole 项目成员角色
type MemberRole string

const (
	MemberEmployee MemberRole = "employee"
	MemberLead     MemberRole = "lead"
	MemberManager  MemberRole = "manager"
)
