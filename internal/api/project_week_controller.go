package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/service"
)

const dateLayout = "2006-01-02"

// ProjectWeekQuery 项目周列表查询参数
type ProjectWeekQuery struct {
	ProjectIDs []string `form:"project_id"`
	WeekFrom   string   `form:"week_from" binding:"omitempty,datetime=2006-01-02"`
	WeekTo     string   `form:"week_to" binding:"omitempty,datetime=2006-01-02"`
	Status     string   `form:"status" binding:"omitempty,oneof=pending partially_processed approved rejected"`
	SortBy     string   `form:"sort_by" binding:"omitempty,oneof=week project pending"`
	Order      string   `form:"order" binding:"omitempty,oneof=asc desc"`
	Page       int      `form:"page" binding:"omitempty,min=1"`
	Limit      int      `form:"limit" binding:"omitempty,min=1"`
	Search     string   `form:"search" binding:"omitempty,max=200"`
}

// toFilter 转换为服务层过滤条件,project_id 支持重复参数或逗号分隔
func (q ProjectWeekQuery) toFilter() service.ProjectWeekFilter {
	filter := service.ProjectWeekFilter{
		Status: service.GroupStatus(q.Status),
		SortBy: q.SortBy,
		Order:  q.Order,
		Page:   q.Page,
		Limit:  q.Limit,
		Search: q.Search,
	}
	for _, raw := range q.ProjectIDs {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filter.ProjectIDs = append(filter.ProjectIDs, id)
			}
		}
	}
	// 格式已由 binding 校验
	filter.WeekFrom, _ = parseDate(q.WeekFrom)
	filter.WeekTo, _ = parseDate(q.WeekTo)
	return filter
}

// ProjectWeekRequest 项目周批量操作请求
type ProjectWeekRequest struct {
	ProjectID string `json:"project_id" binding:"required,entity_id"`
	WeekStart string `json:"week_start" binding:"required,datetime=2006-01-02"`
	WeekEnd   string `json:"week_end" binding:"omitempty,datetime=2006-01-02"`
	Reason    string `json:"reason"`
}

func (r ProjectWeekRequest) key() service.ProjectWeekKey {
	start, _ := parseDate(r.WeekStart)
	end, _ := parseDate(r.WeekEnd)
	return service.ProjectWeekKey{ProjectID: r.ProjectID, WeekStart: start, WeekEnd: end}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// ProjectWeekController 项目周审批控制器
type ProjectWeekController struct {
	grouping   service.GroupingService
	approval   service.ApprovalService
	export     service.ExportService
	submission service.SubmissionService
}

// NewProjectWeekController 创建项目周审批控制器
func NewProjectWeekController(grouping service.GroupingService, approval service.ApprovalService, export service.ExportService, submission service.SubmissionService) *ProjectWeekController {
	return &ProjectWeekController{
		grouping:   grouping,
		approval:   approval,
		export:     export,
		submission: submission,
	}
}

// List 项目周分组列表
// @Router /project-weeks [get]
func (c *ProjectWeekController) List(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var query ProjectWeekQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	page, err := c.grouping.GetProjectWeekGroups(ctx.Request.Context(), actor, query.toFilter())
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Paginated(ctx, page.Items, NewPaginationInfo(page.Page, page.PageSize, page.Total))
}

// Export 按相同过滤条件导出 xlsx
// @Router /project-weeks/export [get]
func (c *ProjectWeekController) Export(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var query ProjectWeekQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	f, filename, err := c.export.ExportProjectWeekGroups(ctx.Request.Context(), actor, query.toFilter())
	if err != nil {
		RespondError(ctx, err)
		return
	}
	defer f.Close()

	ctx.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := f.Write(ctx.Writer); err != nil {
		GetLogger().WithError(err).WithField("request_id", ctx.GetString("request_id")).Error("Failed to write export")
	}
}

// Approve 批量通过项目周
// @Router /project-weeks/approve [post]
func (c *ProjectWeekController) Approve(ctx *gin.Context) {
	actor, req, ok := c.bindWeek(ctx)
	if !ok {
		return
	}

	result, err := c.approval.ApproveProjectWeek(ctx.Request.Context(), req.key(), actor)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}

// Reject 批量驳回项目周
// @Router /project-weeks/reject [post]
func (c *ProjectWeekController) Reject(ctx *gin.Context) {
	actor, req, ok := c.bindWeek(ctx)
	if !ok {
		return
	}
	reason, ok := reasonFrom(ctx, req.Reason)
	if !ok {
		return
	}

	result, err := c.approval.RejectProjectWeek(ctx.Request.Context(), req.key(), actor, reason)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}

// Freeze 冻结项目周
// @Router /project-weeks/freeze [post]
func (c *ProjectWeekController) Freeze(ctx *gin.Context) {
	actor, req, ok := c.bindWeek(ctx)
	if !ok {
		return
	}

	result, err := c.approval.BulkFreezeProjectWeek(ctx.Request.Context(), req.key(), actor)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}

// LeadSubmitCheck Lead 提交前检查本人负责项目的待审工时
// @Router /leads/submit-check [get]
func (c *ProjectWeekController) LeadSubmitCheck(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	weekStart, err := parseDate(ctx.Query("week_start"))
	if err != nil || weekStart.IsZero() {
		Error(ctx, http.StatusBadRequest, "invalid query", "week_start must be YYYY-MM-DD")
		return
	}

	check, err := c.submission.ValidateLeadCanSubmit(ctx.Request.Context(), actor.UserID, weekStart)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, check)
}

func (c *ProjectWeekController) bindWeek(ctx *gin.Context) (service.Actor, ProjectWeekRequest, bool) {
	var req ProjectWeekRequest
	actor, ok := actorFrom(ctx)
	if !ok {
		return actor, req, false
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return actor, req, false
	}
	return actor, req, true
}
