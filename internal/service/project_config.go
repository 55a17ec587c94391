package service

import (
	"context"
	"errors"

	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/repository"
	"gorm.io/gorm"
)

// ProjectConfig 单次调用内只读的项目配置快照
type ProjectConfig struct {
	ID           string
	Name         string
	Type         model.ProjectType
	LeadID       string
	ManagerID    string
	AutoEscalate bool
	leads        map[string]bool
	managers     map[string]bool
	employees    []string
}

// HasLead 项目是否配置了 Lead
func (p ProjectConfig) HasLead() bool {
	return len(p.leads) > 0
}

// IsLead 用户是否为项目 Lead
func (p ProjectConfig) IsLead(userID string) bool {
	return p.leads[userID]
}

// IsManager 用户是否为项目 Manager
func (p ProjectConfig) IsManager(userID string) bool {
	return p.managers[userID]
}

// IsTraining 培训类项目跳过 Lead 门禁
func (p ProjectConfig) IsTraining() bool {
	return p.Type == model.ProjectTypeTraining
}

// Employees 角色为 employee 的项目成员
func (p ProjectConfig) Employees() []string {
	return p.employees
}

// buildProjectConfig 由项目与成员构建配置
func buildProjectConfig(project *model.ProjectModel, members []*model.ProjectMemberModel) ProjectConfig {
	cfg := ProjectConfig{
		ID:           project.ID,
		Name:         project.Name,
		Type:         project.Type,
		LeadID:       project.LeadID,
		ManagerID:    project.ManagerID,
		AutoEscalate: project.LeadApprovalAutoEscalates,
		leads:        map[string]bool{},
		managers:     map[string]bool{},
	}
	if project.LeadID != "" {
		cfg.leads[project.LeadID] = true
	}
	if project.ManagerID != "" {
		cfg.managers[project.ManagerID] = true
	}
	for _, m := range members {
		if m.ProjectID != project.ID {
			continue
		}
		switch m.Role {
		case model.MemberLead:
			cfg.leads[m.UserID] = true
			if cfg.LeadID == "" {
				cfg.LeadID = m.UserID
			}
		case model.MemberManager:
			cfg.managers[m.UserID] = true
			if cfg.ManagerID == "" {
				cfg.ManagerID = m.UserID
			}
		case model.MemberEmployee:
			cfg.employees = append(cfg.employees, m.UserID)
		}
	}
	return cfg
}

// loadProjectConfigs 批量加载项目配置
func loadProjectConfigs(ctx context.Context, dir repository.DirectoryRepository, projectIDs []string) (map[string]ProjectConfig, error) {
	projects, err := dir.FindProjects(ctx, projectIDs)
	if err != nil {
		return nil, wrapDBError(err, "projects")
	}
	return configsFor(ctx, dir, projects)
}

func configsFor(ctx context.Context, dir repository.DirectoryRepository, projects []*model.ProjectModel) (map[string]ProjectConfig, error) {
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	members, err := dir.FindMembers(ctx, ids)
	if err != nil {
		return nil, wrapDBError(err, "project members")
	}
	configs := make(map[string]ProjectConfig, len(projects))
	for _, p := range projects {
		configs[p.ID] = buildProjectConfig(p, members)
	}
	return configs, nil
}

// loadProjectConfig 加载单个项目配置
func loadProjectConfig(ctx context.Context, dir repository.DirectoryRepository, projectID string) (ProjectConfig, error) {
	project, err := dir.FindProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProjectConfig{}, notFound("project %s not found", projectID)
		}
		return ProjectConfig{}, wrapDBError(err, "project")
	}
	members, err := dir.FindMembers(ctx, []string{projectID})
	if err != nil {
		return ProjectConfig{}, wrapDBError(err, "project members")
	}
	return buildProjectConfig(project, members), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
