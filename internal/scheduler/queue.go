package scheduler

import (
	"fmt"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/billing"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// startService 房间进入服务队列，开始新会话
func (s *Scheduler) startService(u *unit, roomID string, speed types.FanSpeed, requestTime time.Time) {
	if _, ok := s.waiting[roomID]; ok {
		panic(fmt.Sprintf("scheduler: room %s admitted while still waiting", roomID))
	}
	if len(s.service) >= s.cfg.MaxServiceUnits {
		panic(fmt.Sprintf("scheduler: admitting room %s would exceed %d service units", roomID, s.cfg.MaxServiceUnits))
	}
	s.service[roomID] = &ServiceRecord{
		RoomID:      roomID,
		RequestTime: requestTime,
		StartTime:   s.now,
		FanSpeed:    speed,
	}
	room := u.room(roomID)
	room.Status = types.StatusServing
	u.touch(room)
	s.stats.Admissions++
	logger.Info("房间 %s 开始送风 - 风速: %s, 服务队列: %d/%d", roomID, speed, len(s.service), s.cfg.MaxServiceUnits)
}

// enqueue 房间进入等待队列，分配新的时间片
func (s *Scheduler) enqueue(u *unit, roomID string, speed types.FanSpeed, requestTime time.Time) {
	if _, ok := s.service[roomID]; ok {
		panic(fmt.Sprintf("scheduler: room %s enqueued while still serving", roomID))
	}
	s.seq++
	slice := float64(s.cfg.TimeSliceSeconds)
	s.waiting[roomID] = &WaitEntry{
		RoomID:         roomID,
		RequestTime:    requestTime,
		FanSpeed:       speed,
		SliceRemaining: slice,
		SliceLength:    slice,
		since:          s.now,
		seq:            s.seq,
	}
	room := u.room(roomID)
	room.Status = types.StatusWaiting
	u.touch(room)
	logger.Info("房间 %s 进入等待队列 - 风速: %s, 等待队列: %d", roomID, speed, len(s.waiting))
}

// closeService 结束会话并生成详单，与移出服务队列在同一步完成
func (s *Scheduler) closeService(u *unit, roomID string) *ServiceRecord {
	rec, ok := s.service[roomID]
	if !ok {
		return nil
	}
	delete(s.service, roomID)

	room := u.room(roomID)
	detail := billing.CloseSession(billing.Session{
		RoomID:        rec.RoomID,
		RequestTime:   rec.RequestTime,
		StartTime:     rec.StartTime,
		FanSpeed:      rec.FanSpeed,
		ServedSeconds: rec.ServedSeconds,
		Fee:           rec.Fee,
	}, room, s.now)
	u.emit(detail)
	u.touch(room)
	s.stats.SessionsClosed++
	logger.Info("房间 %s 结束送风 - 时长: %.1f秒, 费用: %.2f, 累计: %.2f",
		roomID, detail.DurationSeconds, detail.Fee, detail.CumulativeFee)
	return rec
}

// preempt 把服务中的房间挪回等待队列
func (s *Scheduler) preempt(u *unit, victim *ServiceRecord, by string) {
	rec := s.closeService(u, victim.RoomID)
	if rec == nil {
		panic(fmt.Sprintf("scheduler: preemption target %s vanished", victim.RoomID))
	}
	s.enqueue(u, rec.RoomID, rec.FanSpeed, rec.RequestTime)
	s.stats.Preemptions++
	logger.Info("房间 %s 被房间 %s 抢占", rec.RoomID, by)
}

// admitWaiter 等待者出队并开始服务
func (s *Scheduler) admitWaiter(u *unit, w *WaitEntry) {
	delete(s.waiting, w.RoomID)
	s.startService(u, w.RoomID, w.FanSpeed, w.RequestTime)
}

// admitFresh 新请求：有空位直接服务；否则优先级严格高于最弱者时抢占，不然排队
func (s *Scheduler) admitFresh(u *unit, roomID string, speed types.FanSpeed) {
	if len(s.service) < s.cfg.MaxServiceUnits {
		s.startService(u, roomID, speed, s.now)
		return
	}
	if victim := s.weakest(); victim != nil && speed.Priority() > victim.FanSpeed.Priority() {
		s.preempt(u, victim, roomID)
		s.startService(u, roomID, speed, s.now)
		return
	}
	s.enqueue(u, roomID, speed, s.now)
}

// reconcile 反复补位与抢占，直到没有等待者能胜过任何服务中的房间
func (s *Scheduler) reconcile(u *unit) {
	limit := 4*(len(s.service)+len(s.waiting)) + 4
	for i := 0; i < limit; i++ {
		w := s.bestWaiter()
		if w == nil {
			return
		}
		if len(s.service) < s.cfg.MaxServiceUnits {
			s.admitWaiter(u, w)
			continue
		}
		victim := s.selectVictim(w.EffectivePriority())
		if victim == nil {
			return
		}
		delete(s.waiting, w.RoomID)
		s.preempt(u, victim, w.RoomID)
		s.startService(u, w.RoomID, w.FanSpeed, w.RequestTime)
	}
	panic("scheduler: reconciliation did not converge")
}

// ageWaiters 推进等待时间并处理时间片到期
func (s *Scheduler) ageWaiters(u *unit, tickStart, tickEnd time.Time) {
	for _, w := range s.waitersInOrder() {
		from := tickStart
		if w.since.After(from) {
			from = w.since
		}
		waited := tickEnd.Sub(from).Seconds()
		if waited <= 0 {
			continue
		}
		w.TotalWaited += waited
		w.SliceRemaining -= waited
	}

	for _, w := range s.waitersInOrder() {
		if _, still := s.waiting[w.RoomID]; !still || w.SliceRemaining > 0 {
			continue
		}
		s.expireSlice(u, w)
	}
}

// expireSlice 时间片到期：先尝试抢占低于有效优先级的房间，再尝试与同风速房间轮转，否则继续等待
func (s *Scheduler) expireSlice(u *unit, w *WaitEntry) {
	if victim := s.selectVictim(w.EffectivePriority()); victim != nil {
		delete(s.waiting, w.RoomID)
		s.preempt(u, victim, w.RoomID)
		s.startService(u, w.RoomID, w.FanSpeed, w.RequestTime)
		return
	}
	if peer := s.longestServedSameSpeed(w); peer != nil {
		delete(s.waiting, w.RoomID)
		s.preempt(u, peer, w.RoomID)
		s.startService(u, w.RoomID, w.FanSpeed, w.RequestTime)
		logger.Info("时间片轮转 - 房间 %s 替换房间 %s", w.RoomID, peer.RoomID)
		return
	}
	w.SliceRemaining = w.SliceLength
}
