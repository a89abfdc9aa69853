// internal/monitor/monitor.go

package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/events"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/scheduler"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// MonitorMetrics 监控指标
type MonitorMetrics struct {
	Timestamp     time.Time               `json:"timestamp"`
	ServiceQueue  []scheduler.ServiceView `json:"service_queue"`
	WaitQueue     []scheduler.WaitingView `json:"wait_queue"`
	RoomStates    map[string]*RoomMetrics `json:"room_states"`
	SystemMetrics *SystemMetrics          `json:"system_metrics"`
}

// RoomMetrics 房间指标，由房间事件更新
type RoomMetrics struct {
	RoomID      string           `json:"room_id"`
	IsOccupied  bool             `json:"is_occupied"`
	ACState     bool             `json:"ac_state"`
	Status      types.RoomStatus `json:"status"`
	Mode        types.Mode       `json:"mode"`
	CurrentTemp float64          `json:"current_temp"`
	TargetTemp  float64          `json:"target_temp"`
	Speed       types.FanSpeed   `json:"speed"`
	TotalFee    float64          `json:"total_fee"`
	LastUpdate  time.Time        `json:"last_update"`
}

// SystemMetrics 系统指标
type SystemMetrics struct {
	TotalRooms         int           `json:"total_rooms"`
	OccupiedRooms      int           `json:"occupied_rooms"`
	ActiveRooms        int           `json:"active_rooms"`
	ServiceQueueLength int           `json:"service_queue_length"`
	WaitQueueLength    int           `json:"wait_queue_length"`
	AvgServiceTime     float64       `json:"avg_service_time"`
	AvgWaitTime        float64       `json:"avg_wait_time"`
	Ticks              int64         `json:"ticks"`
	LastTickDuration   time.Duration `json:"last_tick_duration"`
	Admissions         int64         `json:"admissions"`
	Preemptions        int64         `json:"preemptions"`
	SessionsClosed     int64         `json:"sessions_closed"`
	PendingDetails     int           `json:"pending_details"`
	PendingRooms       int           `json:"pending_rooms"`
	EventsReceived     int64         `json:"events_received"`
	EventsDropped      int64         `json:"events_dropped"`
}

// Source 调度器快照来源
type Source interface {
	ServiceSnapshot() []scheduler.ServiceView
	WaitingSnapshot() []scheduler.WaitingView
	Stats() scheduler.Stats
}

type Monitor struct {
	mu              sync.RWMutex
	eventBus        *events.EventBus
	source          Source
	monitorInterval time.Duration
	metrics         *MonitorMetrics
	received        int64
	subs            []events.Subscription
	stopChan        chan struct{}
	wg              sync.WaitGroup
}

func NewMonitor(eventBus *events.EventBus, source Source, interval time.Duration) *Monitor {
	if interval == 0 {
		interval = 5 * time.Second // 默认5秒更新一次
	}

	return &Monitor{
		eventBus:        eventBus,
		source:          source,
		monitorInterval: interval,
		metrics: &MonitorMetrics{
			RoomStates:    make(map[string]*RoomMetrics),
			SystemMetrics: &SystemMetrics{},
		},
		stopChan: make(chan struct{}),
	}
}

// Seed 用存储中的房间初始化房间指标，之后由事件增量更新
func (m *Monitor) Seed(rooms []db.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, room := range rooms {
		m.metrics.RoomStates[room.RoomID] = roomMetrics(room, now)
	}
}

func (m *Monitor) Start() {
	m.subs = []events.Subscription{
		m.eventBus.Subscribe(events.EventRoomStatus, m.handle),
		m.eventBus.Subscribe(events.EventRoomCheckIn, m.handle),
		m.eventBus.Subscribe(events.EventRoomCheckOut, m.handle),
	}
	m.updateMetrics()
	m.wg.Add(1)
	go m.run()
	logger.Info("Monitor started with interval: %v", m.monitorInterval)
}

func (m *Monitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	for _, sub := range m.subs {
		m.eventBus.Unsubscribe(sub)
	}
	logger.Info("Monitor stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.updateMetrics()
			m.publishMetrics()
		case <-m.stopChan:
			return
		}
	}
}

// handle 房间事件回调
func (m *Monitor) handle(ev events.Event) {
	room, ok := ev.Data.(db.Room)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
	m.metrics.RoomStates[room.RoomID] = roomMetrics(room, ev.Timestamp)
}

func roomMetrics(room db.Room, at time.Time) *RoomMetrics {
	return &RoomMetrics{
		RoomID:      room.RoomID,
		IsOccupied:  room.Occupied(),
		ACState:     room.IsOn,
		Status:      room.Status,
		Mode:        room.Mode,
		CurrentTemp: room.CurrentTemp,
		TargetTemp:  room.TargetTemp,
		Speed:       room.FanSpeed,
		TotalFee:    room.TotalFee,
		LastUpdate:  at,
	}
}

func (m *Monitor) updateMetrics() {
	serviceItems := m.source.ServiceSnapshot()
	waitItems := m.source.WaitingSnapshot()
	stats := m.source.Stats()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.Timestamp = time.Now()
	m.metrics.ServiceQueue = serviceItems
	m.metrics.WaitQueue = waitItems

	var occupied, active int
	for _, room := range m.metrics.RoomStates {
		if room.IsOccupied {
			occupied++
		}
		if room.ACState {
			active++
		}
	}

	var avgServiceTime, avgWaitTime float64
	if len(serviceItems) > 0 {
		var total float64
		for _, item := range serviceItems {
			total += item.ServedSeconds
		}
		avgServiceTime = total / float64(len(serviceItems))
	}
	if len(waitItems) > 0 {
		var total float64
		for _, item := range waitItems {
			total += item.TotalWaited
		}
		avgWaitTime = total / float64(len(waitItems))
	}

	m.metrics.SystemMetrics = &SystemMetrics{
		TotalRooms:         len(m.metrics.RoomStates),
		OccupiedRooms:      occupied,
		ActiveRooms:        active,
		ServiceQueueLength: len(serviceItems),
		WaitQueueLength:    len(waitItems),
		AvgServiceTime:     avgServiceTime,
		AvgWaitTime:        avgWaitTime,
		Ticks:              stats.Ticks,
		LastTickDuration:   stats.LastTickDuration,
		Admissions:         stats.Admissions,
		Preemptions:        stats.Preemptions,
		SessionsClosed:     stats.SessionsClosed,
		PendingDetails:     stats.PendingDetails,
		PendingRooms:       stats.PendingRooms,
		EventsReceived:     m.received,
		EventsDropped:      m.eventBus.Dropped(),
	}
}

func (m *Monitor) publishMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sm := m.metrics.SystemMetrics
	logger.Info("系统概况 - 房间: %d, 入住: %d, 开机: %d, 服务队列: %d, 等待队列: %d",
		sm.TotalRooms, sm.OccupiedRooms, sm.ActiveRooms, sm.ServiceQueueLength, sm.WaitQueueLength)
	if sm.PendingDetails > 0 || sm.PendingRooms > 0 {
		logger.Warn("待写入 - 详单: %d, 房间: %d", sm.PendingDetails, sm.PendingRooms)
	}
	for _, item := range m.metrics.ServiceQueue {
		logger.Debug("服务中 房间 %s: 风速=%s, 时长=%.0fs, 费用=%.2f",
			item.RoomID, item.FanSpeed, item.ServedSeconds, item.CurrentFee)
	}
	for _, item := range m.metrics.WaitQueue {
		logger.Debug("等待中 房间 %s: 风速=%s, 已等待=%.0fs, 时间片剩余=%.0fs",
			item.RoomID, item.FanSpeed, item.TotalWaited, item.WaitRemaining)
	}
}

// GetMetrics 获取当前监控指标，先从调度器刷新队列与统计
func (m *Monitor) GetMetrics() MonitorMetrics {
	m.updateMetrics()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := *m.metrics
	out.RoomStates = make(map[string]*RoomMetrics, len(m.metrics.RoomStates))
	for id, rm := range m.metrics.RoomStates {
		c := *rm
		out.RoomStates[id] = &c
	}
	sm := *m.metrics.SystemMetrics
	out.SystemMetrics = &sm
	return out
}

// GetRoomMetrics 获取指定房间的监控指标
func (m *Monitor) GetRoomMetrics(roomID string) (RoomMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rm, ok := m.metrics.RoomStates[roomID]
	if !ok {
		return RoomMetrics{}, false
	}
	return *rm, true
}

// Rooms 按房间号排序的房间指标
func (m *Monitor) Rooms() []RoomMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomMetrics, 0, len(m.metrics.RoomStates))
	for _, rm := range m.metrics.RoomStates {
		out = append(out, *rm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
