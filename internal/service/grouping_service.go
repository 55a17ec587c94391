package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mautops/timesheet-gin/internal/metrics"
	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 分组排序字段
const (
	SortByWeek    = "week"
	SortByProject = "project"
	SortByPending = "pending"
)

// ProjectWeekFilter 项目周查询条件
type ProjectWeekFilter struct {
	ProjectIDs []string
	WeekFrom   time.Time
	WeekTo     time.Time
	Status     GroupStatus
	SortBy     string
	Order      string
	Page       int
	Limit      int
	Search     string
}

// EntryView 工时条目展示
type EntryView struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	TaskID          string `json:"task_id,omitempty"`
	Hours           string `json:"hours"`
	Description     string `json:"description,omitempty"`
	IsBillable      bool   `json:"is_billable"`
	IsRejected      bool   `json:"is_rejected"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// GroupRow 分组内单个用户的行
type GroupRow struct {
	UserID             string      `json:"user_id"`
	UserName           string      `json:"user_name"`
	UserRole           string      `json:"user_role"`
	TimesheetID        string      `json:"timesheet_id"`
	TimesheetStatus    string      `json:"timesheet_status"`
	TrackStatus        string      `json:"track_status"`
	RejectionReason    string      `json:"rejection_reason,omitempty"`
	WorkedHours        string      `json:"worked_hours"`
	BillableAdjustment string      `json:"billable_adjustment"`
	BillableHours      string      `json:"billable_hours"`
	Entries            []EntryView `json:"entries"`
}

// ProjectWeekGroup 项目周分组
// @Description 某项目某周对当前审核人可见的全部工时
type ProjectWeekGroup struct {
	ProjectID             string      `json:"project_id"`
	ProjectName           string      `json:"project_name"`
	ProjectType           string      `json:"project_type"`
	WeekStart             string      `json:"week_start"`
	WeekEnd               string      `json:"week_end"`
	Status                GroupStatus `json:"status"`
	TotalUsers            int         `json:"total_users"`
	PendingCount          int         `json:"pending_count"`
	ApprovedCount         int         `json:"approved_count"`
	RejectedCount         int         `json:"rejected_count"`
	WorkedHours           string      `json:"worked_hours"`
	BillableHours         string      `json:"billable_hours"`
	IsReopened            bool        `json:"is_reopened"`
	ReopenedAt            string      `json:"reopened_at,omitempty"`
	ReopenedBy            string      `json:"reopened_by,omitempty"`
	OriginalApprovalCount int         `json:"original_approval_count,omitempty"`
	Rows                  []GroupRow  `json:"rows"`

	weekStart time.Time
}

// ProjectWeekPage 分页结果
type ProjectWeekPage struct {
	Items    []*ProjectWeekGroup `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// GroupingService 项目周分组查询(只读)
type GroupingService interface {
	GetProjectWeekGroups(ctx context.Context, actor Actor, filter ProjectWeekFilter) (*ProjectWeekPage, error)
	// AllProjectWeekGroups 不分页,供导出使用
	AllProjectWeekGroups(ctx context.Context, actor Actor, filter ProjectWeekFilter) ([]*ProjectWeekGroup, error)
}

type groupingService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	tunables *Tunables
}

// NewGroupingService 创建分组查询服务
func NewGroupingService(db *gorm.DB, logger *logrus.Logger, tunables *Tunables) GroupingService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if tunables == nil {
		tunables = NewTunables(DefaultApprovalOptions())
	}
	return &groupingService{db: db, logger: logger, tunables: tunables}
}

// normalizeFilter 校验排序与分页参数
func (s *groupingService) normalizeFilter(filter ProjectWeekFilter) (ProjectWeekFilter, error) {
	opts := s.tunables.Get()
	switch filter.SortBy {
	case "":
		filter.SortBy = SortByWeek
	case SortByWeek, SortByProject, SortByPending:
	default:
		return filter, validationError("invalid sort key %q", filter.SortBy)
	}
	switch strings.ToLower(filter.Order) {
	case "":
		filter.Order = "desc"
	case "asc", "desc":
		filter.Order = strings.ToLower(filter.Order)
	default:
		return filter, validationError("invalid sort order %q", filter.Order)
	}
	switch filter.Status {
	case "", GroupPending, GroupPartiallyProcessed, GroupApproved, GroupRejected:
	default:
		return filter, validationError("invalid group status %q", filter.Status)
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = opts.DefaultPageSize
	}
	if filter.Limit > opts.MaxPageSize {
		filter.Limit = opts.MaxPageSize
	}
	if !filter.WeekFrom.IsZero() {
		filter.WeekFrom = model.NormalizeDate(filter.WeekFrom)
	}
	if !filter.WeekTo.IsZero() {
		filter.WeekTo = model.NormalizeDate(filter.WeekTo)
	}
	if !filter.WeekFrom.IsZero() && !filter.WeekTo.IsZero() && filter.WeekTo.Before(filter.WeekFrom) {
		return filter, validationError("week_to must not be before week_from")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return filter, nil
}

// GetProjectWeekGroups 按审核层级聚合并分页
func (s *groupingService) GetProjectWeekGroups(ctx context.Context, actor Actor, filter ProjectWeekFilter) (*ProjectWeekPage, error) {
	filter, err := s.normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	groups, err := s.buildGroups(ctx, actor, filter)
	if err != nil {
		return nil, err
	}

	page := &ProjectWeekPage{
		Total:    int64(len(groups)),
		Page:     filter.Page,
		PageSize: filter.Limit,
		Items:    []*ProjectWeekGroup{},
	}
	start := (filter.Page - 1) * filter.Limit
	if start < len(groups) {
		end := start + filter.Limit
		if end > len(groups) {
			end = len(groups)
		}
		page.Items = groups[start:end]
	}
	metrics.ObserveProjectWeekGroups(len(page.Items))
	return page, nil
}

// AllProjectWeekGroups 返回全部分组
func (s *groupingService) AllProjectWeekGroups(ctx context.Context, actor Actor, filter ProjectWeekFilter) ([]*ProjectWeekGroup, error) {
	filter, err := s.normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return s.buildGroups(ctx, actor, filter)
}

type groupKey struct {
	projectID string
	weekStart time.Time
	weekEnd   time.Time
}

// groupData 构建分组所需的数据集
type groupData struct {
	timesheets map[string]*model.TimesheetModel
	owners     map[string]*model.UserModel
	entries    map[string][]*model.TimeEntryModel // key: timesheetID|projectID
}

func entryKey(timesheetID, projectID string) string {
	return timesheetID + "|" + projectID
}

func (d *groupData) ownerRole(ts *model.TimesheetModel) model.Role {
	if u, ok := d.owners[ts.UserID]; ok {
		return u.Role
	}
	return ""
}

func (s *groupingService) buildGroups(ctx context.Context, actor Actor, filter ProjectWeekFilter) ([]*ProjectWeekGroup, error) {
	tier, err := actorTier(actor)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	dir := repository.NewDirectoryRepository(db)

	projects, err := s.scopeProjects(ctx, dir, tier, actor, filter.ProjectIDs)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return []*ProjectWeekGroup{}, nil
	}
	configs, err := configsFor(ctx, dir, projects)
	if err != nil {
		return nil, err
	}
	projectIDs := make([]string, 0, len(projects))
	for _, p := range projects {
		projectIDs = append(projectIDs, p.ID)
	}

	records, err := repository.NewProjectApprovalRepository(db).FindByProjects(ctx, projectIDs)
	if err != nil {
		return nil, wrapDBError(err, "project approvals")
	}
	data, err := s.loadGroupData(ctx, db, dir, records, filter)
	if err != nil {
		return nil, err
	}

	buckets := map[groupKey][]*model.TimesheetProjectApprovalModel{}
	var keys []groupKey
	for _, rec := range records {
		ts, ok := data.timesheets[rec.TimesheetID]
		if !ok {
			continue
		}
		key := groupKey{projectID: rec.ProjectID, weekStart: ts.WeekStart, weekEnd: ts.WeekEnd}
		if _, seen := buckets[key]; !seen {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], rec)
	}

	groups := make([]*ProjectWeekGroup, 0, len(keys))
	for _, key := range keys {
		project := configs[key.projectID]
		all := buckets[key]

		visible := make([]*model.TimesheetProjectApprovalModel, 0, len(all))
		for _, rec := range all {
			ts := data.timesheets[rec.TimesheetID]
			if ts.UserID == actor.UserID {
				continue
			}
			if IsVisible(tier, ts, data.ownerRole(ts), rec) {
				visible = append(visible, rec)
			}
		}
		if len(visible) == 0 {
			continue
		}

		ok, err := s.passesGate(ctx, db, tier, actor, project, key, all, data)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		group := s.newGroup(tier, project, key, visible, data)
		if filter.Status != "" && group.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !matchesSearch(filter.Search, group) {
			continue
		}
		groups = append(groups, group)
	}

	sortGroups(groups, filter.SortBy, filter.Order)
	s.logger.WithFields(logrus.Fields{
		"actor_id": actor.UserID,
		"tier":     tier,
		"projects": len(projects),
		"records":  len(records),
		"groups":   len(groups),
	}).Debug("Project week groups built")
	return groups, nil
}

// scopeProjects 审核人可见的项目范围
func (s *groupingService) scopeProjects(ctx context.Context, dir repository.DirectoryRepository, tier model.Tier, actor Actor, only []string) ([]*model.ProjectModel, error) {
	var projects []*model.ProjectModel
	var err error
	switch tier {
	case model.TierLead:
		projects, err = dir.FindProjectsLedBy(ctx, actor.UserID)
	case model.TierManager:
		projects, err = dir.FindProjectsManagedBy(ctx, actor.UserID)
	default:
		projects, err = dir.FindAllProjects(ctx)
	}
	if err != nil {
		return nil, wrapDBError(err, "projects")
	}
	if len(only) == 0 {
		return projects, nil
	}
	wanted := make(map[string]bool, len(only))
	for _, id := range only {
		wanted[id] = true
	}
	filtered := projects[:0]
	for _, p := range projects {
		if wanted[p.ID] {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *groupingService) loadGroupData(ctx context.Context, db *gorm.DB, dir repository.DirectoryRepository, records []*model.TimesheetProjectApprovalModel, filter ProjectWeekFilter) (*groupData, error) {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.TimesheetID)
	}
	list, err := repository.NewTimesheetRepository(db).FindByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, wrapDBError(err, "timesheets")
	}

	data := &groupData{
		timesheets: make(map[string]*model.TimesheetModel, len(list)),
		entries:    map[string][]*model.TimeEntryModel{},
	}
	kept := make([]string, 0, len(list))
	ownerIDs := make([]string, 0, len(list))
	for _, ts := range list {
		if !filter.WeekFrom.IsZero() && ts.WeekStart.Before(filter.WeekFrom) {
			continue
		}
		if !filter.WeekTo.IsZero() && ts.WeekStart.After(filter.WeekTo) {
			continue
		}
		data.timesheets[ts.ID] = ts
		kept = append(kept, ts.ID)
		ownerIDs = append(ownerIDs, ts.UserID)
	}

	data.owners, err = dir.FindUsers(ctx, uniqueStrings(ownerIDs))
	if err != nil {
		return nil, wrapDBError(err, "users")
	}
	entries, err := repository.NewTimeEntryRepository(db).FindByTimesheets(ctx, kept)
	if err != nil {
		return nil, wrapDBError(err, "time entries")
	}
	for _, e := range entries {
		k := entryKey(e.TimesheetID, e.ProjectID)
		data.entries[k] = append(data.entries[k], e)
	}
	return data, nil
}

// passesGate 各层级在展示分组前的门禁
// 已被本层级处理过的分组不再受门禁影响
func (s *groupingService) passesGate(ctx context.Context, db *gorm.DB, tier model.Tier, actor Actor, project ProjectConfig, key groupKey, all []*model.TimesheetProjectApprovalModel, data *groupData) (bool, error) {
	for _, rec := range all {
		if st := rec.Track(tier).Status; st == model.TrackApproved || st == model.TrackRejected {
			return true, nil
		}
	}
	switch tier {
	case model.TierLead:
		return s.membersHaveEntries(ctx, db, actor, project, key)
	case model.TierManager:
		if project.IsTraining() || project.LeadID == "" || project.LeadID == actor.UserID {
			return true, nil
		}
		for _, rec := range all {
			ts := data.timesheets[rec.TimesheetID]
			if data.ownerRole(ts) == model.RoleEmployee && rec.Lead.Status == model.TrackPending {
				return false, nil
			}
		}
		return reviewerSubmitted(project.LeadID, all, data), nil
	case model.TierManagement:
		if project.ManagerID == "" || project.ManagerID == actor.UserID {
			return true, nil
		}
		for _, rec := range all {
			ts := data.timesheets[rec.TimesheetID]
			if ts.UserID == project.ManagerID || data.ownerRole(ts).IsManagement() {
				continue
			}
			if rec.Manager.Status == model.TrackPending {
				return false, nil
			}
		}
		return reviewerSubmitted(project.ManagerID, all, data), nil
	}
	return true, nil
}

// reviewerSubmitted 审核人本人是否已提交含该项目的工时表
func reviewerSubmitted(userID string, all []*model.TimesheetProjectApprovalModel, data *groupData) bool {
	for _, rec := range all {
		ts := data.timesheets[rec.TimesheetID]
		if ts.UserID == userID && ts.Status != model.StatusDraft {
			return true
		}
	}
	return false
}

// membersHaveEntries 项目其他员工成员本周均已填写工时
func (s *groupingService) membersHaveEntries(ctx context.Context, db *gorm.DB, actor Actor, project ProjectConfig, key groupKey) (bool, error) {
	others := make([]string, 0, len(project.Employees()))
	for _, id := range project.Employees() {
		if id != actor.UserID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return true, nil
	}
	timesheets, err := repository.NewTimesheetRepository(db).FindByUsersAndWeek(ctx, others, key.weekStart)
	if err != nil {
		return false, wrapDBError(err, "timesheets")
	}
	ids := make([]string, 0, len(timesheets))
	owner := make(map[string]string, len(timesheets))
	for _, ts := range timesheets {
		ids = append(ids, ts.ID)
		owner[ts.ID] = ts.UserID
	}
	entries, err := repository.NewTimeEntryRepository(db).FindByTimesheets(ctx, ids)
	if err != nil {
		return false, wrapDBError(err, "time entries")
	}
	logged := map[string]bool{}
	for _, e := range entries {
		if e.ProjectID == project.ID {
			logged[owner[e.TimesheetID]] = true
		}
	}
	for _, id := range others {
		if !logged[id] {
			return false, nil
		}
	}
	return true, nil
}

func (s *groupingService) newGroup(tier model.Tier, project ProjectConfig, key groupKey, visible []*model.TimesheetProjectApprovalModel, data *groupData) *ProjectWeekGroup {
	group := &ProjectWeekGroup{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		ProjectType: string(project.Type),
		WeekStart:   formatDate(key.weekStart),
		WeekEnd:     formatDate(key.weekEnd),
		Rows:        make([]GroupRow, 0, len(visible)),
		weekStart:   key.weekStart,
	}

	worked, billable := decimal.Zero, decimal.Zero
	statuses := make([]model.TrackStatus, 0, len(visible))
	inputs := make([]ReopeningInput, 0, len(visible))
	for _, rec := range visible {
		ts := data.timesheets[rec.TimesheetID]
		track := rec.Track(tier)
		statuses = append(statuses, track.Status)
		inputs = append(inputs, ReopeningInput{
			UserID:     ts.UserID,
			CreatedAt:  rec.CreatedAt,
			Status:     track.Status,
			ApprovedAt: track.ApprovedAt,
		})
		switch track.Status {
		case model.TrackPending:
			group.PendingCount++
		case model.TrackApproved:
			group.ApprovedCount++
		case model.TrackRejected:
			group.RejectedCount++
		}
		worked = worked.Add(rec.WorkedHours)
		billable = billable.Add(rec.BillableHours)
		group.Rows = append(group.Rows, newGroupRow(ts, data.owners[ts.UserID], rec, track, data.entries[entryKey(ts.ID, rec.ProjectID)]))
	}

	group.Status = AggregateGroupStatus(statuses)
	group.TotalUsers = len(group.Rows)
	group.WorkedHours = worked.StringFixed(2)
	group.BillableHours = billable.StringFixed(2)

	if r := DetectReopening(inputs); r.IsReopened {
		group.IsReopened = true
		group.ReopenedAt = r.ReopenedAt.Format(time.RFC3339)
		group.ReopenedBy = r.ReopenedBy
		group.OriginalApprovalCount = r.OriginalApprovalCount
		if group.Status == GroupApproved {
			group.Status = GroupPartiallyProcessed
		}
	}

	sort.SliceStable(group.Rows, func(i, j int) bool {
		return group.Rows[i].UserName < group.Rows[j].UserName
	})
	return group
}

func newGroupRow(ts *model.TimesheetModel, owner *model.UserModel, rec *model.TimesheetProjectApprovalModel, track *model.ApprovalTrack, entries []*model.TimeEntryModel) GroupRow {
	row := GroupRow{
		UserID:             ts.UserID,
		UserName:           ts.UserID,
		TimesheetID:        ts.ID,
		TimesheetStatus:    string(ts.Status),
		TrackStatus:        string(track.Status),
		RejectionReason:    track.RejectionReason,
		WorkedHours:        rec.WorkedHours.StringFixed(2),
		BillableAdjustment: rec.BillableAdjustment.StringFixed(2),
		BillableHours:      rec.BillableHours.StringFixed(2),
		Entries:            make([]EntryView, 0, len(entries)),
	}
	if owner != nil {
		row.UserName = owner.Name
		row.UserRole = string(owner.Role)
	}
	for _, e := range entries {
		row.Entries = append(row.Entries, EntryView{
			ID:              e.ID,
			Date:            formatDate(e.Date),
			TaskID:          e.TaskID,
			Hours:           e.Hours.StringFixed(2),
			Description:     e.Description,
			IsBillable:      e.IsBillable,
			IsRejected:      e.IsRejected,
			RejectionReason: e.RejectionReason,
		})
	}
	return row
}

// matchesSearch 对项目名与用户名做模糊匹配
func matchesSearch(query string, group *ProjectWeekGroup) bool {
	targets := make([]string, 0, len(group.Rows)+1)
	targets = append(targets, group.ProjectName)
	for _, row := range group.Rows {
		targets = append(targets, row.UserName)
	}
	return len(fuzzy.RankFindNormalizedFold(query, targets)) > 0
}

func sortGroups(groups []*ProjectWeekGroup, sortBy, order string) {
	less := func(a, b *ProjectWeekGroup) bool {
		switch sortBy {
		case SortByProject:
			if a.ProjectName != b.ProjectName {
				return a.ProjectName < b.ProjectName
			}
			return a.weekStart.Before(b.weekStart)
		case SortByPending:
			if a.PendingCount != b.PendingCount {
				return a.PendingCount < b.PendingCount
			}
			return a.weekStart.Before(b.weekStart)
		default:
			if !a.weekStart.Equal(b.weekStart) {
				return a.weekStart.Before(b.weekStart)
			}
			return a.ProjectName < b.ProjectName
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if order == "asc" {
			return less(groups[i], groups[j])
		}
		return less(groups[j], groups[i])
	})
}
