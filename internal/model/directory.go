package model

import "time"

// UserModel 用户目录(只读)
type UserModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Email     string    `gorm:"type:varchar(255)"`
	Role      Role      `gorm:"type:varchar(32);not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// ProjectModel 项目目录(只读)
type ProjectModel struct {
	ID                        string      `gorm:"primaryKey;type:varchar(64)"`
	Name                      string      `gorm:"type:varchar(255);not null"`
	Type                      ProjectType `gorm:"type:varchar(32);not null;default:'regular'"`
	LeadID                    string      `gorm:"type:varchar(64);index"`
	ManagerID                 string      `gorm:"type:varchar(64);index"`
	LeadApprovalAutoEscalates bool        `gorm:"not null;default:false"`
	CreatedAt                 time.Time   `gorm:"not null"`
}

// TableName 指定表名
func (ProjectModel) TableName() string {
	return "projects"
}

// ProjectMemberModel 项目成员(只读)
type ProjectMemberModel struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)"`
	ProjectID string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_members_project_user"`
	UserID    string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_members_project_user;index"`
	Role      MemberRole `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time  `gorm:"not null"`
}

// TableName 指定表名
func (ProjectMemberModel) TableName() string {
	return "project_members"
}
