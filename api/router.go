// api/router.go

package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/pch10086/BUPT-Hotel/internal/handlers"
	"github.com/pch10086/BUPT-Hotel/middleware"
)

// Handlers 路由用到的全部处理器
type Handlers struct {
	AC      *handlers.ACHandler
	Room    *handlers.RoomHandler
	Billing *handlers.BillingHandler
	Report  *handlers.ReportHandler
	Monitor *handlers.MonitorHandler
	Push    *handlers.PushHandler
}

// Options 限流与缓存参数
type Options struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	ReportCacheTTL  time.Duration
	MonitorCacheTTL time.Duration
}

// SetupRouter 注册所有路由。global 中的中间件（如 CORS）先于路由生效
func SetupRouter(h Handlers, opts Options, global ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware.AccessLog(), middleware.Recovery())
	router.Use(global...)

	store := cache.New(time.Minute, 5*time.Minute)

	api := router.Group("/api")

	// 客房空调控制面板
	guest := api.Group("/guest", middleware.RateLimiter(opts.RateLimitRPS, opts.RateLimitBurst))
	{
		guest.POST("/power-on", h.AC.PowerOn)
		guest.POST("/power-off", h.AC.PowerOff)
		guest.POST("/change-state", h.AC.ChangeState)
		guest.GET("/status/:roomId", h.AC.GetStatus)
		guest.POST("/subscribe", h.Push.Subscribe)
		guest.GET("/vapid-key", h.Push.GetVAPIDPublicKey)
	}

	// 前台
	clerk := api.Group("/clerk")
	{
		clerk.GET("/rooms", h.Room.ListRooms)
		clerk.POST("/check-in", h.Room.CheckIn)
		clerk.POST("/check-out", h.Room.CheckOut)
		clerk.GET("/details/:roomId", h.Billing.GetDetails)
		clerk.GET("/details/:roomId/export", h.Billing.ExportDetails)
		clerk.GET("/bill/:roomId/pdf", h.Billing.GetBillPDF)
	}

	manager := api.Group("/manager")
	{
		manager.GET("/report", middleware.Cache(store, opts.ReportCacheTTL), h.Report.GetReport)
	}

	mon := api.Group("/monitor")
	{
		mon.GET("/rooms", h.Monitor.GetRooms)
		mon.GET("/queues", h.Monitor.GetQueues)
		mon.GET("/stats", middleware.Cache(store, opts.MonitorCacheTTL), h.Monitor.GetStats)
	}

	return router
}
