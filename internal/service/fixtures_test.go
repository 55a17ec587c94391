package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mautops/timesheet-gin/internal/database"
	"github.com/mautops/timesheet-gin/internal/model"
	"github.com/mautops/timesheet-gin/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testWeek 2025-01-06 为周一
var testWeek = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// setupTestDB 创建内存数据库,单连接保证事务内外看到同一个库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fixture 组装服务与测试数据
type fixture struct {
	t          *testing.T
	db         *gorm.DB
	ctx        context.Context
	history    service.HistoryService
	approval   service.ApprovalService
	submission service.SubmissionService
	grouping   service.GroupingService
	seq        int
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	log := quietLogger()
	tunables := service.NewTunables(service.DefaultApprovalOptions())
	history := service.NewHistoryService(db)
	return &fixture{
		t:          t,
		db:         db,
		ctx:        context.Background(),
		history:    history,
		approval:   service.NewApprovalService(db, history, log, tunables),
		submission: service.NewSubmissionService(db, log),
		grouping:   service.NewGroupingService(db, log, tunables),
	}
}

func (f *fixture) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%03d", prefix, f.seq)
}

func (f *fixture) user(id string, role model.Role) service.Actor {
	require.NoError(f.t, f.db.Create(&model.UserModel{
		ID:        id,
		Name:      "User " + id,
		Role:      role,
		CreatedAt: time.Now(),
	}).Error)
	return service.Actor{UserID: id, Role: role}
}

type projectOpts struct {
	leadID       string
	managerID    string
	training     bool
	autoEscalate bool
	employees    []string
}

func (f *fixture) project(id string, opts projectOpts) {
	typ := model.ProjectTypeRegular
	if opts.training {
		typ = model.ProjectTypeTraining
	}
	require.NoError(f.t, f.db.Create(&model.ProjectModel{
		ID:                        id,
		Name:                      "Project " + id,
		Type:                      typ,
		LeadID:                    opts.leadID,
		ManagerID:                 opts.managerID,
		LeadApprovalAutoEscalates: opts.autoEscalate,
		CreatedAt:                 time.Now(),
	}).Error)
	for _, userID := range opts.employees {
		require.NoError(f.t, f.db.Create(&model.ProjectMemberModel{
			ID:        f.nextID("member"),
			ProjectID: id,
			UserID:    userID,
			Role:      model.MemberEmployee,
			CreatedAt: time.Now(),
		}).Error)
	}
}

// draft 创建草稿工时表,hours 为项目到工时的映射
func (f *fixture) draft(userID string, week time.Time, hours map[string]float64) string {
	start, end := model.WeekBounds(week)
	ts := &model.TimesheetModel{
		ID:        f.nextID("ts"),
		UserID:    userID,
		WeekStart: start,
		WeekEnd:   end,
		Status:    model.StatusDraft,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(f.t, f.db.Create(ts).Error)
	for projectID, h := range hours {
		f.entry(ts.ID, userID, projectID, start, h)
	}
	return ts.ID
}

func (f *fixture) entry(timesheetID, userID, projectID string, date time.Time, hours float64) {
	require.NoError(f.t, f.db.Create(&model.TimeEntryModel{
		ID:          f.nextID("entry"),
		TimesheetID: timesheetID,
		UserID:      userID,
		ProjectID:   projectID,
		Date:        date,
		Hours:       decimal.NewFromFloat(hours),
		IsBillable:  true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}).Error)
}

// submitted 创建并提交工时表
func (f *fixture) submitted(owner service.Actor, week time.Time, hours map[string]float64) string {
	id := f.draft(owner.UserID, week, hours)
	_, err := f.submission.SubmitTimesheet(f.ctx, id, owner)
	require.NoError(f.t, err)
	return id
}

// seed 直接写入指定状态的工时表与单个项目记录
func (f *fixture) seed(userID, projectID string, week time.Time, status model.TimesheetStatus, lead, manager, management model.TrackStatus) string {
	start, end := model.WeekBounds(week)
	now := time.Now()
	ts := &model.TimesheetModel{
		ID:          f.nextID("ts"),
		UserID:      userID,
		WeekStart:   start,
		WeekEnd:     end,
		Status:      status,
		IsFrozen:    status == model.StatusFrozen || status == model.StatusBilled,
		SubmittedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(f.t, f.db.Create(ts).Error)
	f.entry(ts.ID, userID, projectID, start, 8)

	rec := &model.TimesheetProjectApprovalModel{
		ID:          f.nextID("tpa"),
		TimesheetID: ts.ID,
		ProjectID:   projectID,
		Lead:        model.ApprovalTrack{Status: lead},
		Manager:     model.ApprovalTrack{Status: manager},
		Management:  model.ApprovalTrack{Status: management},
		WorkedHours: decimal.NewFromInt(8),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec.RecalculateBillable()
	require.NoError(f.t, f.db.Create(rec).Error)
	return ts.ID
}

func (f *fixture) timesheet(id string) *model.TimesheetModel {
	var ts model.TimesheetModel
	require.NoError(f.t, f.db.First(&ts, "id = ?", id).Error)
	return &ts
}

func (f *fixture) record(timesheetID, projectID string) *model.TimesheetProjectApprovalModel {
	var rec model.TimesheetProjectApprovalModel
	require.NoError(f.t, f.db.First(&rec, "timesheet_id = ? AND project_id = ?", timesheetID, projectID).Error)
	return &rec
}

func (f *fixture) entries(timesheetID string) []model.TimeEntryModel {
	var list []model.TimeEntryModel
	require.NoError(f.t, f.db.Where("timesheet_id = ?", timesheetID).Find(&list).Error)
	return list
}

func (f *fixture) historyCount(timesheetID string) int64 {
	var n int64
	require.NoError(f.t, f.db.Model(&model.ApprovalHistoryModel{}).Where("timesheet_id = ?", timesheetID).Count(&n).Error)
	return n
}
