package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/auth"
	"github.com/mautops/timesheet-gin/internal/service"
	"github.com/mautops/timesheet-gin/internal/utils"
	"github.com/shopspring/decimal"
)

// maxReasonLength 驳回原因最大字符数
const maxReasonLength = 2000

// RejectRequest 驳回请求
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BillableAdjustmentRequest 计费调整请求,adjustment 可为 JSON 数字或字符串
type BillableAdjustmentRequest struct {
	Adjustment *decimal.Decimal `json:"adjustment" binding:"required"`
}

// BulkTimesheetsRequest 批量核验或计费请求
type BulkTimesheetsRequest struct {
	TimesheetIDs []string `json:"timesheet_ids" binding:"required,min=1,max=500,dive,required,entity_id"`
}

// TimesheetController 工时表审批控制器
type TimesheetController struct {
	submission service.SubmissionService
	approval   service.ApprovalService
	history    service.HistoryService
}

// NewTimesheetController 创建工时表审批控制器
func NewTimesheetController(submission service.SubmissionService, approval service.ApprovalService, history service.HistoryService) *TimesheetController {
	return &TimesheetController{
		submission: submission,
		approval:   approval,
		history:    history,
	}
}

// actorFrom 读取认证中间件写入的调用者,缺失时返回 401
func actorFrom(ctx *gin.Context) (service.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		Error(ctx, http.StatusUnauthorized, "unauthenticated", "")
		return service.Actor{}, false
	}
	return service.Actor{UserID: identity.UserID, Role: identity.Role}, true
}

// pathID 读取并校验路径中的标识符
func pathID(ctx *gin.Context, name string) (string, bool) {
	id := ctx.Param(name)
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid "+name, err.Error())
		return "", false
	}
	return id, true
}

// reasonFrom 清理驳回原因,长度下限由服务层按配置校验
func reasonFrom(ctx *gin.Context, raw string) (string, bool) {
	reason, err := utils.TrimAndValidate(raw, maxReasonLength)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", "reason: "+err.Error())
		return "", false
	}
	return reason, true
}

// Submit 提交工时表
// @Router /timesheets/{id}/submit [post]
func (c *TimesheetController) Submit(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.submission.SubmitTimesheet(ctx.Request.Context(), id, actor)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}

// Approve 审批通过工时表在某个项目上的记录
// @Router /timesheets/{id}/projects/{projectId}/approve [post]
func (c *TimesheetController) Approve(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id, projectID, ok := timesheetProject(ctx)
	if !ok {
		return
	}

	result, err := c.approval.ApproveTimesheetForProject(ctx.Request.Context(), id, projectID, actor)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}

// Reject 驳回工时表在某个项目上的记录
// @Router /timesheets/{id}/projects/{projectId}/reject [post]
func (c *TimesheetController) Reject(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id, projectID, ok := timesheetProject(ctx)
	if !ok {
		return
	}

	var req RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	reason, ok := reasonFrom(ctx, req.Reason)
	if !ok {
		return
	}

	result, err := c.approval.RejectTimesheetForProject(ctx.Request.Context(), id, projectID, actor, reason)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}

// UpdateBillableAdjustment 修改计费调整工时
// @Router /timesheets/{id}/projects/{projectId}/billable-adjustment [put]
func (c *TimesheetController) UpdateBillableAdjustment(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id, projectID, ok := timesheetProject(ctx)
	if !ok {
		return
	}

	var req BillableAdjustmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	view, err := c.approval.UpdateBillableAdjustment(ctx.Request.Context(), id, projectID, *req.Adjustment, actor)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, view)
}

// History 工时表审批时间线
// @Router /timesheets/{id}/history [get]
func (c *TimesheetController) History(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	items, err := c.history.ListByTimesheet(ctx.Request.Context(), id, actor)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, items)
}

func timesheetProject(ctx *gin.Context) (string, string, bool) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return "", "", false
	}
	projectID, ok := pathID(ctx, "projectId")
	if !ok {
		return "", "", false
	}
	return id, projectID, true
}

// BulkVerify 批量核验
// @Router /timesheets/bulk/verify [post]
func (c *TimesheetController) BulkVerify(ctx *gin.Context) {
	c.bulk(ctx, c.approval.BulkVerifyTimesheets)
}

// BulkBill 批量计费
// @Router /timesheets/bulk/bill [post]
func (c *TimesheetController) BulkBill(ctx *gin.Context) {
	c.bulk(ctx, c.approval.BulkBillTimesheets)
}

func (c *TimesheetController) bulk(ctx *gin.Context, op func(context.Context, []string, service.Actor) (*service.BulkResult, error)) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req BulkTimesheetsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := op(ctx.Request.Context(), req.TimesheetIDs, actor)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}
