package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// gauge 采集项,名称用于失败日志
type gauge struct {
	name   string
	update func(db *gorm.DB) error
}

// Collector 周期性刷新依赖数据库的 gauge 指标
type Collector struct {
	db       *gorm.DB
	logger   *logrus.Logger
	interval time.Duration
	gauges   []gauge
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, logger *logrus.Logger, interval time.Duration) *Collector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		logger:   logger,
		interval: interval,
		gauges: []gauge{
			{name: "database_connections", update: UpdateDatabaseConnections},
			{name: "timesheets_by_status", update: UpdateTimesheetsByStatus},
			{name: "approval_pending_tracks", update: UpdatePendingTracks},
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start 启动后台采集,启动时立即采集一次
func (c *Collector) Start() {
	go c.run()
}

// Stop 停止采集并等待后台 goroutine 退出
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

func (c *Collector) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collectOnce()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce()
		}
	}
}

// collectOnce 单项失败不影响其它指标
func (c *Collector) collectOnce() {
	db := c.db.WithContext(c.ctx)
	for _, g := range c.gauges {
		if err := g.update(db); err != nil && c.ctx.Err() == nil {
			c.logger.WithError(err).WithField("metric", g.name).Warn("Failed to collect metric")
		}
	}
}
