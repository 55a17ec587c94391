package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/service"
)

// StatisticsQuery 统计查询参数
type StatisticsQuery struct {
	WeekFrom string `form:"week_from" binding:"omitempty,datetime=2006-01-02"`
	WeekTo   string `form:"week_to" binding:"omitempty,datetime=2006-01-02"`
}

// StatisticsController 审批统计控制器
type StatisticsController struct {
	statistics service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statistics service.StatisticsService) *StatisticsController {
	return &StatisticsController{
		statistics: statistics,
	}
}

// Get 工时表状态分布与审批动作统计
func (c *StatisticsController) Get(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var query StatisticsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	filter := service.StatisticsFilter{}
	filter.WeekFrom, _ = parseDate(query.WeekFrom)
	filter.WeekTo, _ = parseDate(query.WeekTo)

	stats, err := c.statistics.GetStatistics(ctx.Request.Context(), actor, filter)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, stats)
}
