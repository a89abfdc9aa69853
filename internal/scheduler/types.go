package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// Config 调度器参数，构造后不再变化
type Config struct {
	MaxServiceUnits  int           // 同时送风的房间数上限
	TimeSliceSeconds int           // 时间片长度（逻辑秒）
	TimeScaleMs      int64         // 多少真实毫秒折合 1 逻辑分钟
	TickInterval     time.Duration // 驱动器触发间隔（真实时间）
}

func (c Config) Validate() error {
	if c.MaxServiceUnits < 1 {
		return fmt.Errorf("max service units must be >= 1, got %d", c.MaxServiceUnits)
	}
	if c.TimeSliceSeconds <= 0 {
		return fmt.Errorf("time slice must be > 0, got %d", c.TimeSliceSeconds)
	}
	if c.TimeScaleMs <= 0 {
		return fmt.Errorf("time scale must be > 0, got %d", c.TimeScaleMs)
	}
	return nil
}

// ServiceRecord 服务队列中的一个会话
type ServiceRecord struct {
	RoomID        string
	RequestTime   time.Time // 引起本次服务的请求时间
	StartTime     time.Time // 本次会话开始的逻辑时间
	FanSpeed      types.FanSpeed
	ServedSeconds float64 // 已服务的逻辑秒，可含小数
	Fee           float64
}

// WaitEntry 等待队列中的一个请求
type WaitEntry struct {
	RoomID         string
	RequestTime    time.Time
	FanSpeed       types.FanSpeed
	SliceRemaining float64 // 当前时间片剩余逻辑秒
	SliceLength    float64
	TotalWaited    float64 // 本次入队以来累计等待的逻辑秒
	since          time.Time
	seq            uint64
}

// Boosted 累计等待满一个时间片后优先级提升一级
func (w *WaitEntry) Boosted() bool {
	return w.TotalWaited >= w.SliceLength
}

// EffectivePriority 等待者的有效优先级
func (w *WaitEntry) EffectivePriority() int {
	p := w.FanSpeed.Priority()
	if w.Boosted() {
		p++
	}
	return p
}

// LastRequest 房间最近一次送风请求，待机回温后按此重新请求
type LastRequest struct {
	RoomID     string         `json:"roomId"`
	Mode       types.Mode     `json:"mode"`
	TargetTemp float64        `json:"targetTemp"`
	FanSpeed   types.FanSpeed `json:"fanSpeed"`
}

// ServiceView 服务队列快照
type ServiceView struct {
	RoomID        string         `json:"roomId"`
	FanSpeed      types.FanSpeed `json:"fanSpeed"`
	StartTime     time.Time      `json:"startTime"`
	ServedSeconds float64        `json:"servedSeconds"`
	CurrentFee    float64        `json:"currentFee"`
}

// WaitingView 等待队列快照
type WaitingView struct {
	RoomID        string         `json:"roomId"`
	FanSpeed      types.FanSpeed `json:"fanSpeed"`
	WaitRemaining float64        `json:"waitRemaining"`
	TotalWaited   float64        `json:"totalWaited"`
	Boosted       bool           `json:"boosted"`
}

// RoomView 房间信息加上本次会话费用
type RoomView struct {
	db.Room
	CurrentSessionFee float64 `json:"currentSessionFee"`
}

// Stats 调度器运行统计
type Stats struct {
	Ticks            int64         `json:"ticks"`
	LastTickDuration time.Duration `json:"lastTickDuration"`
	Admissions       int64         `json:"admissions"`
	Preemptions      int64         `json:"preemptions"`
	SessionsClosed   int64         `json:"sessionsClosed"`
	PendingDetails   int           `json:"pendingDetails"`
	PendingRooms     int           `json:"pendingRooms"`
}

// RoomStore 房间存储
type RoomStore interface {
	GetByRoomID(ctx context.Context, roomID string) (*db.Room, error)
	Save(ctx context.Context, room *db.Room) error
	ListAll(ctx context.Context) ([]db.Room, error)
}

// DetailStore 详单存储，只追加
type DetailStore interface {
	SaveDetail(ctx context.Context, detail *db.BillingDetail) error
}

// Notifier 房间状态推送，尽力而为
type Notifier interface {
	PublishStatus(roomID string, room db.Room)
}

type noopNotifier struct{}

func (noopNotifier) PublishStatus(string, db.Room) {}
