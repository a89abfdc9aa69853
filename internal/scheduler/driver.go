package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

// Driver 以固定真实时间间隔触发 tick，上一次未结束时跳过本次
type Driver struct {
	s        *Scheduler
	cron     *cron.Cron
	interval time.Duration
}

// NewDriver 创建定时驱动器，间隔不足 1 秒时按 1 秒处理
func NewDriver(s *Scheduler) *Driver {
	interval := s.cfg.TickInterval
	if interval < time.Second {
		interval = time.Second
	}
	log := logger.CronLogger{}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	return &Driver{s: s, cron: c, interval: interval}
}

// Start 注册定时任务并启动
func (d *Driver) Start() error {
	_, err := d.cron.AddFunc(fmt.Sprintf("@every %s", d.interval), d.run)
	if err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	d.cron.Start()
	logger.Info("调度驱动器已启动，间隔: %s", d.interval)
	return nil
}

func (d *Driver) run() {
	ctx, cancel := context.WithTimeout(context.Background(), d.interval*5)
	defer cancel()
	if err := d.s.Tick(ctx); err != nil {
		logger.Error("tick 失败: %v", err)
	}
}

// Stop 停止触发并等待正在执行的 tick 结束
func (d *Driver) Stop(ctx context.Context) error {
	done := d.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("调度驱动器已停止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
