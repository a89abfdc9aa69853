package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/monitor"
	"github.com/pch10086/BUPT-Hotel/internal/scheduler"
)

type roomLister interface {
	Rooms(ctx context.Context) ([]scheduler.RoomView, error)
}

type queueSource interface {
	ServiceSnapshot() []scheduler.ServiceView
	WaitingSnapshot() []scheduler.WaitingView
}

type metricsSource interface {
	GetMetrics() monitor.MonitorMetrics
}

// QueuesResponse 服务队列与等待队列，开始时间为真实时间
type QueuesResponse struct {
	Service []scheduler.ServiceView `json:"service"`
	Waiting []scheduler.WaitingView `json:"waiting"`
}

// 经理监控面板
type MonitorHandler struct {
	rooms   roomLister
	queues  queueSource
	metrics metricsSource
	toReal  func(time.Time) time.Time
}

func NewMonitorHandler(rooms roomLister, queues queueSource, metrics metricsSource, toReal func(time.Time) time.Time) *MonitorHandler {
	return &MonitorHandler{rooms: rooms, queues: queues, metrics: metrics, toReal: toReal}
}

func (h *MonitorHandler) GetRooms(c *gin.Context) {
	rooms, err := h.rooms.Rooms(c.Request.Context())
	if err != nil {
		fail(c, "获取房间状态失败", err)
		return
	}
	success(c, "获取房间状态成功", rooms)
}

func (h *MonitorHandler) GetQueues(c *gin.Context) {
	svc := h.queues.ServiceSnapshot()
	for i := range svc {
		svc[i].StartTime = h.toReal(svc[i].StartTime)
	}
	success(c, "获取调度队列成功", QueuesResponse{
		Service: svc,
		Waiting: h.queues.WaitingSnapshot(),
	})
}

func (h *MonitorHandler) GetStats(c *gin.Context) {
	m := h.metrics.GetMetrics()
	success(c, "获取运行统计成功", m.SystemMetrics)
}
