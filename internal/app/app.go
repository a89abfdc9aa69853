// internal/app/app.go

package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pch10086/BUPT-Hotel/api"
	"github.com/pch10086/BUPT-Hotel/internal/billing"
	"github.com/pch10086/BUPT-Hotel/internal/clock"
	"github.com/pch10086/BUPT-Hotel/internal/config"
	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/events"
	"github.com/pch10086/BUPT-Hotel/internal/handlers"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/monitor"
	"github.com/pch10086/BUPT-Hotel/internal/notification"
	"github.com/pch10086/BUPT-Hotel/internal/scheduler"
	"github.com/pch10086/BUPT-Hotel/internal/service"
	"github.com/pch10086/BUPT-Hotel/server"
)

// App 持有所有组件，负责按顺序启动与关闭
type App struct {
	cfg       *config.Config
	db        *gorm.DB
	eventBus  *events.EventBus
	clock     *clock.Clock
	scheduler *scheduler.Scheduler
	driver    *scheduler.Driver
	hotel     *service.HotelService
	stats     *service.StatisticsService
	monitor   *monitor.Monitor
	push      *notification.WorkerPool
	server    *server.Server

	pushCancel context.CancelFunc
}

func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Initialize 打开数据库并组装各组件，不启动任何后台任务
func (a *App) Initialize(ctx context.Context) error {
	cfg := a.cfg
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	a.db, err = db.Open(cfg.Database)
	if err != nil {
		return err
	}
	if cfg.Hotel.SeedRooms {
		n, err := db.SeedRooms(ctx, a.db, cfg.Hotel.DefaultTargetTemp)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("已初始化 %d 个房间", n)
		}
	}

	roomRepo := db.NewRoomRepository(a.db)
	detailRepo := db.NewDetailRepository(a.db)
	billRepo := db.NewBillRepository(a.db)
	subRepo := db.NewSubscriptionRepository(a.db)

	a.clock, err = clock.New(cfg.Scheduler.TimeScaleMs)
	if err != nil {
		return err
	}
	a.eventBus = events.NewEventBus(0)

	a.scheduler, err = scheduler.New(scheduler.Config{
		MaxServiceUnits:  cfg.Scheduler.MaxServiceUnits,
		TimeSliceSeconds: cfg.Scheduler.TimeSliceSeconds,
		TimeScaleMs:      cfg.Scheduler.TimeScaleMs,
		TickInterval:     cfg.Scheduler.TickInterval,
	}, a.clock, roomRepo, detailRepo, a.eventBus)
	if err != nil {
		return err
	}
	a.driver = scheduler.NewDriver(a.scheduler)

	a.hotel = service.NewHotelService(a.scheduler, roomRepo, detailRepo, subRepo,
		billing.NewService(detailRepo, billRepo, a.scheduler.LogicalSince), a.eventBus,
		service.Defaults{
			Mode:       cfg.Hotel.DefaultMode,
			TargetTemp: cfg.Hotel.DefaultTargetTemp,
			FanSpeed:   cfg.Hotel.DefaultFanSpeed,
		})
	a.hotel.SetPDFFont(cfg.Hotel.PDFFontPath)
	a.stats = service.NewStatisticsService(detailRepo, a.clock)

	a.monitor = monitor.NewMonitor(a.eventBus, a.scheduler, 5*time.Second)
	rooms, err := roomRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	a.monitor.Seed(rooms)

	n := cfg.Notification
	if opts := notification.Options(n.VAPIDPublicKey, n.VAPIDPrivateKey, n.Subscriber, n.TTL); n.Enabled && opts != nil {
		a.push = notification.NewWorkerPool(n.Workers, n.QueueSize, subRepo, opts)
	}
	publicKey := ""
	if a.push != nil {
		publicKey = n.VAPIDPublicKey
	}

	router := api.SetupRouter(api.Handlers{
		AC:      handlers.NewACHandler(a.hotel),
		Room:    handlers.NewRoomHandler(a.hotel),
		Billing: handlers.NewBillingHandler(a.hotel),
		Report:  handlers.NewReportHandler(a.stats),
		Monitor: handlers.NewMonitorHandler(a.hotel, a.scheduler, a.monitor, a.clock.ToReal),
		Push:    handlers.NewPushHandler(a.hotel, publicKey),
	}, api.Options{
		RateLimitRPS:    cfg.HTTP.RateLimitRPS,
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
		ReportCacheTTL:  cfg.HTTP.ReportCacheTTL,
		MonitorCacheTTL: cfg.Scheduler.TickInterval,
	}, server.CORS(cfg.Server.AllowedOrigins))
	a.server = server.NewServer(cfg.Server, router)
	return nil
}

// Start 订阅事件、恢复调度状态后启动 tick 驱动与 HTTP 服务
func (a *App) Start(ctx context.Context) error {
	a.monitor.Start()
	if a.push != nil {
		var pushCtx context.Context
		pushCtx, a.pushCancel = context.WithCancel(context.Background())
		a.push.Subscribe(a.eventBus)
		a.push.Start(pushCtx)
		logger.Info("Web Push 推送已启用")
	}

	if err := a.scheduler.Restore(ctx); err != nil {
		return fmt.Errorf("restore scheduler: %w", err)
	}
	if err := a.driver.Start(); err != nil {
		return err
	}
	return a.server.Start()
}

// Done 在 HTTP 服务退出后关闭
func (a *App) Done() <-chan error {
	return a.server.Done()
}

// Stop 按启动的逆序关闭，先停止接收请求，最后关闭数据库
func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(a.server.Stop(ctx))
	record(a.driver.Stop(ctx))
	// 驱动停止后不再有 tick，结算服务中的会话再关闭事件总线与数据库
	record(a.scheduler.Shutdown(context.WithoutCancel(ctx)))
	a.monitor.Stop()
	a.eventBus.Close()
	if a.pushCancel != nil {
		a.pushCancel()
		a.push.Wait()
		sent, failed, dropped := a.push.Counts()
		logger.Info("推送统计: 成功 %d, 失败 %d, 丢弃 %d", sent, failed, dropped)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		record(sqlDB.Close())
	}

	if firstErr != nil {
		return fmt.Errorf("shutdown: %w", firstErr)
	}
	logger.Info("Application stopped gracefully")
	return nil
}

// Seed 只初始化数据库与房间数据，供命令行使用
func Seed(ctx context.Context, cfg *config.Config) (int, error) {
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return 0, err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	return db.SeedRooms(ctx, gdb, cfg.Hotel.DefaultTargetTemp)
}
