package repository

import (
	"context"

	"github.com/mautops/timesheet-gin/internal/model"
	"gorm.io/gorm"
)

// DirectoryRepository 用户/项目/成员目录,只读
type DirectoryRepository interface {
	FindUser(ctx context.Context, id string) (*model.UserModel, error)
	FindUsers(ctx context.Context, ids []string) (map[string]*model.UserModel, error)
	FindProject(ctx context.Context, id string) (*model.ProjectModel, error)
	FindProjects(ctx context.Context, ids []string) ([]*model.ProjectModel, error)
	FindAllProjects(ctx context.Context) ([]*model.ProjectModel, error)
	FindProjectsLedBy(ctx context.Context, userID string) ([]*model.ProjectModel, error)
	FindProjectsManagedBy(ctx context.Context, userID string) ([]*model.ProjectModel, error)
	FindMembers(ctx context.Context, projectIDs []string) ([]*model.ProjectMemberModel, error)
}

// directoryRepository 目录仓储实现
type directoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository 创建目录仓储
func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

// FindUser 根据 ID 查找用户
func (r *directoryRepository) FindUser(ctx context.Context, id string) (*model.UserModel, error) {
	var user model.UserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUsers 批量查找用户,按 ID 索引
func (r *directoryRepository) FindUsers(ctx context.Context, ids []string) (map[string]*model.UserModel, error) {
	users := make(map[string]*model.UserModel, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var list []*model.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, u := range list {
		users[u.ID] = u
	}
	return users, nil
}

// FindProject 根据 ID 查找项目
func (r *directoryRepository) FindProject(ctx context.Context, id string) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// FindProjects 批量查找项目
func (r *directoryRepository) FindProjects(ctx context.Context, ids []string) ([]*model.ProjectModel, error) {
	var projects []*model.ProjectModel
	if len(ids) == 0 {
		return projects, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&projects).Error
	return projects, err
}

// FindAllProjects 查找全部项目
func (r *directoryRepository) FindAllProjects(ctx context.Context) ([]*model.ProjectModel, error) {
	var projects []*model.ProjectModel
	err := r.db.WithContext(ctx).Order("name ASC").Find(&projects).Error
	return projects, err
}

// FindProjectsLedBy 查找用户担任 Lead 的项目(项目负责人字段或成员角色)
func (r *directoryRepository) FindProjectsLedBy(ctx context.Context, userID string) ([]*model.ProjectModel, error) {
	var projects []*model.ProjectModel
	sub := r.db.Model(&model.ProjectMemberModel{}).Select("project_id").
		Where("user_id = ? AND role = ?", userID, model.MemberLead)
	err := r.db.WithContext(ctx).
		Where("lead_id = ? OR id IN (?)", userID, sub).
		Order("name ASC").
		Find(&projects).Error
	return projects, err
}

// FindProjectsManagedBy 查找用户担任 Manager 的项目
func (r *directoryRepository) FindProjectsManagedBy(ctx context.Context, userID string) ([]*model.ProjectModel, error) {
	var projects []*model.ProjectModel
	sub := r.db.Model(&model.ProjectMemberModel{}).Select("project_id").
		Where("user_id = ? AND role = ?", userID, model.MemberManager)
	err := r.db.WithContext(ctx).
		Where("manager_id = ? OR id IN (?)", userID, sub).
		Order("name ASC").
		Find(&projects).Error
	return projects, err
}

// FindMembers 查找项目成员
func (r *directoryRepository) FindMembers(ctx context.Context, projectIDs []string) ([]*model.ProjectMemberModel, error) {
	var members []*model.ProjectMemberModel
	if len(projectIDs) == 0 {
		return members, nil
	}
	err := r.db.WithContext(ctx).Where("project_id IN ?", projectIDs).Find(&members).Error
	return members, err
}
