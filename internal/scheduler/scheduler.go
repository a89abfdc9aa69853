// Package scheduler 空调送风调度：容量受限的服务队列、等待队列、
// 优先级抢占、时间片轮转，以及按逻辑时间推进的温度与计费模拟
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/clock"
	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

type Scheduler struct {
	cfg      Config
	clock    *clock.Clock
	rooms    RoomStore
	details  DetailStore
	notifier Notifier

	// mu 保护以下全部状态，所有请求、tick 与回温重放都在锁内顺序执行
	mu           sync.Mutex
	service      map[string]*ServiceRecord
	waiting      map[string]*WaitEntry
	lastRequests map[string]LastRequest
	now          time.Time // 调度器已推进到的逻辑时间
	lastElapsed  int64     // 上次 tick 时时钟已走过的逻辑秒
	seq          uint64

	pendingDetails []*db.BillingDetail
	pendingRooms   map[string]*db.Room
	stats          Stats
}

// New 创建调度器。notifier 可以为 nil
func New(cfg Config, clk *clock.Clock, rooms RoomStore, details DetailStore, notifier Notifier) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		return nil, errors.New("scheduler requires a clock")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Scheduler{
		cfg:          cfg,
		clock:        clk,
		rooms:        rooms,
		details:      details,
		notifier:     notifier,
		service:      make(map[string]*ServiceRecord),
		waiting:      make(map[string]*WaitEntry),
		lastRequests: make(map[string]LastRequest),
		pendingRooms: make(map[string]*db.Room),
		now:          clk.Now(),
		lastElapsed:  clk.ElapsedSeconds(),
	}, nil
}

// Config 返回构造时的配置
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Clock 返回调度器使用的逻辑时钟
func (s *Scheduler) Clock() *clock.Clock {
	return s.clock
}

// Guard 在调度锁内、修改调度状态之前检查房间，返回错误时请求被拒绝
type Guard func(room db.Room) error

// LogicalSince 真实时间 wall 之后开始的会话，其逻辑开始时间不早于返回值。
// 调度器的逻辑时间只在 tick 时推进，比时钟最多落后一个 tick 周期再加 1 逻辑秒
func (s *Scheduler) LogicalSince(wall time.Time) time.Time {
	lag := s.clock.LogicalDuration(s.cfg.TickInterval) + time.Second
	return s.clock.ToLogical(wall).Add(-lag)
}

// RequestSupply 送风请求（开机、调温、调风、回温重放）
func (s *Scheduler) RequestSupply(ctx context.Context, roomID string, mode types.Mode, target float64, speed types.FanSpeed) (*db.Room, error) {
	return s.RequestSupplyGuarded(ctx, roomID, mode, target, speed, nil)
}

// RequestSupplyGuarded 同 RequestSupply，guard 看到的是锁内最新的房间，
// 入住状态、开关机等前置条件必须在这里检查，锁外读到的房间可能已过期
func (s *Scheduler) RequestSupplyGuarded(ctx context.Context, roomID string, mode types.Mode, target float64, speed types.FanSpeed, guard Guard) (*db.Room, error) {
	if err := validateRequest(mode, target, speed); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.begin(ctx, "request supply")
	if err != nil {
		return nil, err
	}
	room, err := u.lookup(roomID)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(*room); err != nil {
			return nil, err
		}
	}

	logger.Info("送风请求 - 房间ID: %s, 模式: %s, 目标温度: %.1f, 风速: %s", roomID, mode, target, speed)
	req := LastRequest{RoomID: roomID, Mode: mode, TargetTemp: target, FanSpeed: speed}
	s.lastRequests[roomID] = req
	s.apply(u, room, req)
	s.reconcile(u)
	s.assertInvariants()

	snapshot := *room
	if err := s.commit(u, "request supply"); err != nil {
		return &snapshot, err
	}
	return &snapshot, nil
}

// apply 按房间当前所在队列分派请求
func (s *Scheduler) apply(u *unit, room *db.Room, req LastRequest) {
	if req.Mode != room.Mode && !room.IsOn {
		room.CurrentTemp = room.AmbientTemp(req.Mode)
	}
	room.IsOn = true
	room.Mode = req.Mode
	room.TargetTemp = req.TargetTemp
	room.FanSpeed = req.FanSpeed
	u.touch(room)

	if rec, ok := s.service[room.RoomID]; ok {
		if rec.FanSpeed == req.FanSpeed {
			return
		}
		// 调风：结束旧会话，以新风速重新开始
		s.closeService(u, room.RoomID)
		s.startService(u, room.RoomID, req.FanSpeed, s.now)
		return
	}
	if w, ok := s.waiting[room.RoomID]; ok {
		if w.FanSpeed == req.FanSpeed {
			return
		}
		delete(s.waiting, room.RoomID)
	}
	s.admitFresh(u, room.RoomID, req.FanSpeed)
}

// StopSupply 停止送风。isPowerOff 为 true 时清除上次请求并关机，否则进入待机等待回温
func (s *Scheduler) StopSupply(ctx context.Context, roomID string, isPowerOff bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx, roomID, isPowerOff)
}

// PowerOffThen 关机并写入最后一段详单后，不释放调度锁直接执行 then。
// 退房结算用它保证关机与结算之间不会插入新的送风请求。
// 详单或房间写入失败时不执行 then，避免漏算费用
func (s *Scheduler) PowerOffThen(ctx context.Context, roomID string, then func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stopLocked(ctx, roomID, true); err != nil {
		return err
	}
	return then()
}

func (s *Scheduler) stopLocked(ctx context.Context, roomID string, isPowerOff bool) error {
	u, err := s.begin(ctx, "stop supply")
	if err != nil {
		return err
	}
	room, err := u.lookup(roomID)
	if err != nil {
		return err
	}

	logger.Info("停止送风 - 房间ID: %s, 关机: %v", roomID, isPowerOff)
	s.stop(u, room, isPowerOff)
	s.reconcile(u)
	s.assertInvariants()
	return s.commit(u, "stop supply")
}

func (s *Scheduler) stop(u *unit, room *db.Room, isPowerOff bool) {
	s.closeService(u, room.RoomID)
	delete(s.waiting, room.RoomID)

	if isPowerOff {
		delete(s.lastRequests, room.RoomID)
		room.IsOn = false
		room.Status = types.StatusShutdown
	} else if room.IsOn {
		room.Status = types.StatusIdle
	}
	u.stoppedAt[room.RoomID] = s.now
	u.touch(room)
}

// Restore 进程重启后按持久化的房间状态恢复请求：开机中的房间重新申请送风，待机房间恢复上次请求
func (s *Scheduler) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.begin(ctx, "restore")
	if err != nil {
		return err
	}
	restored := 0
	for _, id := range u.sortedIDs() {
		room := u.rooms[id]
		if !room.IsOn {
			continue
		}
		req := LastRequest{RoomID: id, Mode: room.Mode, TargetTemp: room.TargetTemp, FanSpeed: room.FanSpeed}
		if validateRequest(req.Mode, req.TargetTemp, req.FanSpeed) != nil {
			logger.Warn("房间 %s 的持久化请求无效，按关机处理", id)
			room.IsOn = false
			room.Status = types.StatusShutdown
			u.touch(room)
			continue
		}
		s.lastRequests[id] = req
		switch room.Status {
		case types.StatusServing, types.StatusWaiting:
			s.admitFresh(u, id, req.FanSpeed)
			restored++
		case types.StatusShutdown:
			room.Status = types.StatusIdle
			u.touch(room)
		}
	}
	s.reconcile(u)
	s.assertInvariants()
	logger.Info("调度器恢复完成，重新申请送风的房间: %d", restored)
	return s.commit(u, "restore")
}

// Shutdown 进程退出前结算全部服务中的会话并写入详单，重试此前未写入的详单与房间。
// 房间保持 SERVING/WAITING 与开机状态，重启后由 Restore 重新申请送风
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.begin(ctx, "shutdown")
	if err != nil {
		return err
	}
	closed := 0
	for _, id := range u.sortedIDs() {
		if s.closeService(u, id) != nil {
			closed++
		}
	}
	s.waiting = make(map[string]*WaitEntry)
	logger.Info("调度器停止，结算会话: %d", closed)
	return s.commit(u, "shutdown")
}

// Locked 在调度锁内执行 fn，用于入住、退房等需要与调度互斥的房间写入
func (s *Scheduler) Locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// CurrentSessionFee 房间本次会话已产生的费用，未在服务时为 0
func (s *Scheduler) CurrentSessionFee(roomID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.service[roomID]; ok {
		return rec.Fee
	}
	return 0
}

// ServiceSnapshot 服务队列快照，按房间号排序
func (s *Scheduler) ServiceSnapshot() []ServiceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]ServiceView, 0, len(s.service))
	for _, rec := range s.service {
		views = append(views, ServiceView{
			RoomID:        rec.RoomID,
			FanSpeed:      rec.FanSpeed,
			StartTime:     rec.StartTime,
			ServedSeconds: rec.ServedSeconds,
			CurrentFee:    rec.Fee,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].RoomID < views[j].RoomID })
	return views
}

// WaitingSnapshot 等待队列快照，按房间号排序
func (s *Scheduler) WaitingSnapshot() []WaitingView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]WaitingView, 0, len(s.waiting))
	for _, w := range s.waiting {
		views = append(views, WaitingView{
			RoomID:        w.RoomID,
			FanSpeed:      w.FanSpeed,
			WaitRemaining: w.SliceRemaining,
			TotalWaited:   w.TotalWaited,
			Boosted:       w.Boosted(),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].RoomID < views[j].RoomID })
	return views
}

// LastRequestOf 房间最近一次请求
func (s *Scheduler) LastRequestOf(roomID string) (LastRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.lastRequests[roomID]
	return req, ok
}

// Rooms 全部房间及其本次会话费用
func (s *Scheduler) Rooms(ctx context.Context) ([]RoomView, error) {
	rooms, err := s.rooms.ListAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list rooms", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		if pending, ok := s.pendingRooms[room.RoomID]; ok {
			copySchedulerFields(&room, pending)
		}
		v := RoomView{Room: room}
		if rec, ok := s.service[room.RoomID]; ok {
			v.CurrentSessionFee = rec.Fee
		}
		views = append(views, v)
	}
	return views, nil
}

// Stats 运行统计
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.PendingDetails = len(s.pendingDetails)
	st.PendingRooms = len(s.pendingRooms)
	return st
}

// assertInvariants 容量、互斥与无遗漏抢占；违反说明调度逻辑有缺陷，直接 panic
func (s *Scheduler) assertInvariants() {
	if len(s.service) > s.cfg.MaxServiceUnits {
		panic(fmt.Sprintf("scheduler: %d rooms in service exceeds capacity %d", len(s.service), s.cfg.MaxServiceUnits))
	}
	for id, rec := range s.service {
		if _, ok := s.waiting[id]; ok {
			panic(fmt.Sprintf("scheduler: room %s is both serving and waiting", id))
		}
		if rec.Fee < 0 || rec.ServedSeconds < 0 {
			panic(fmt.Sprintf("scheduler: room %s has negative fee or duration", id))
		}
	}
	if len(s.waiting) == 0 {
		return
	}
	if len(s.service) < s.cfg.MaxServiceUnits {
		panic(fmt.Sprintf("scheduler: %d rooms waiting with free service units", len(s.waiting)))
	}
	if w := s.bestWaiter(); s.selectVictim(w.EffectivePriority()) != nil {
		panic(fmt.Sprintf("scheduler: waiting room %s outranks a serving room", w.RoomID))
	}
}
