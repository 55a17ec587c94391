package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var projectWeekExportHeaders = []string{
	"项目", "项目类型", "周开始", "周结束", "分组状态",
	"用户", "角色", "工时表状态", "审批状态", "驳回原因",
	"工作工时", "计费调整", "计费工时",
}

// ExportService 项目周分组导出
type ExportService interface {
	ExportProjectWeekGroups(ctx context.Context, actor Actor, filter ProjectWeekFilter) (*excelize.File, string, error)
}

type exportService struct {
	grouping GroupingService
	now      func() time.Time
}

// NewExportService 创建导出服务
func NewExportService(grouping GroupingService) ExportService {
	return &exportService{grouping: grouping, now: time.Now}
}

// ExportProjectWeekGroups 按相同过滤条件导出全部分组为 xlsx,每个用户一行
func (s *exportService) ExportProjectWeekGroups(ctx context.Context, actor Actor, filter ProjectWeekFilter) (*excelize.File, string, error) {
	groups, err := s.grouping.AllProjectWeekGroups(ctx, actor, filter)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "ProjectWeeks"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range projectWeekExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	row := 2
	totalWorked, totalBillable := decimal.Zero, decimal.Zero
	for _, g := range groups {
		for _, r := range g.Rows {
			worked, _ := decimal.NewFromString(r.WorkedHours)
			adjustment, _ := decimal.NewFromString(r.BillableAdjustment)
			billable, _ := decimal.NewFromString(r.BillableHours)
			totalWorked = totalWorked.Add(worked)
			totalBillable = totalBillable.Add(billable)

			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), g.ProjectName)
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), g.ProjectType)
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), g.WeekStart)
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), g.WeekEnd)
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), string(g.Status))
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), r.UserName)
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), r.UserRole)
			f.SetCellValue(sheet, fmt.Sprintf("H%d", row), r.TimesheetStatus)
			f.SetCellValue(sheet, fmt.Sprintf("I%d", row), r.TrackStatus)
			f.SetCellValue(sheet, fmt.Sprintf("J%d", row), r.RejectionReason)
			f.SetCellValue(sheet, fmt.Sprintf("K%d", row), worked.InexactFloat64())
			f.SetCellValue(sheet, fmt.Sprintf("L%d", row), adjustment.InexactFloat64())
			f.SetCellValue(sheet, fmt.Sprintf("M%d", row), billable.InexactFloat64())
			row++
		}
	}

	// 底部汇总行
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", row), fmt.Sprintf("分组数: %d", len(groups)))
	f.SetCellValue(sheet, fmt.Sprintf("K%d", row), totalWorked.InexactFloat64())
	f.SetCellValue(sheet, fmt.Sprintf("M%d", row), totalBillable.InexactFloat64())
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("M%d", row), summaryStyle)

	colWidths := []float64{24, 10, 12, 12, 18, 18, 12, 20, 12, 30, 10, 10, 10}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("project_weeks_%s.xlsx", s.now().Format("20060102"))
	return f, filename, nil
}
