package scheduler

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/ac"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

const stepEpsilon = 1e-9

// Tick 由驱动器定时调用：按时钟走过的逻辑秒推进模拟，不足 1 逻辑秒时留到下次
func (s *Scheduler) Tick(ctx context.Context) error {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.clock.ElapsedSeconds()
	dt := elapsed - s.lastElapsed
	if dt <= 0 {
		return nil
	}
	// 房间读取失败时不推进，这段时间留到下次 tick
	ran, err := s.advanceLocked(ctx, float64(dt))
	if ran {
		s.lastElapsed = elapsed
		s.stats.Ticks++
		s.stats.LastTickDuration = time.Since(started)
	}
	return err
}

// advance 推进 dt 逻辑秒
func (s *Scheduler) advance(ctx context.Context, dt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.advanceLocked(ctx, dt)
	return err
}

func (s *Scheduler) advanceLocked(ctx context.Context, dt float64) (bool, error) {
	u, err := s.begin(ctx, "tick")
	if err != nil {
		return false, err
	}

	tickStart := s.now
	tickEnd := tickStart.Add(seconds(dt))

	s.stepService(u, dt)
	s.now = tickEnd

	s.ageWaiters(u, tickStart, tickEnd)
	s.reconcile(u)
	s.assertInvariants()

	s.drift(u, dt)
	s.reconcile(u)
	s.assertInvariants()

	return true, s.commit(u, "tick")
}

// stepService 事件步进：每轮推进到最早有房间达到目标温度的时刻，
// 结束这些会话并立即补位，直到用完 dt 或服务队列为空
func (s *Scheduler) stepService(u *unit, dt float64) {
	remaining := dt
	for remaining > stepEpsilon && len(s.service) > 0 {
		ids := s.serviceIDs()

		step := remaining
		for _, id := range ids {
			room := u.room(id)
			ttt := ac.TimeToTarget(room.CurrentTemp, room.TargetTemp, room.Mode, s.service[id].FanSpeed) * 60
			if ttt < step {
				step = ttt
			}
		}

		var reached []string
		for _, id := range ids {
			rec := s.service[id]
			room := u.room(id)
			res := ac.Step(room.CurrentTemp, room.TargetTemp, room.Mode, rec.FanSpeed, step/60)
			room.CurrentTemp = res.Temp
			rec.Fee += res.Fee
			if res.Reached {
				rec.ServedSeconds += step * res.Fraction
				reached = append(reached, id)
			} else {
				rec.ServedSeconds += step
			}
			u.touch(room)
		}

		s.now = s.now.Add(seconds(step))
		remaining -= step

		for _, id := range reached {
			logger.Info("房间 %s 达到目标温度 %.1f", id, u.room(id).TargetTemp)
			s.stop(u, u.room(id), false)
		}
		s.reconcile(u)
		s.assertInvariants()
		logger.Debug("tick 子步 - 推进: %.2f秒, 剩余: %.2f秒, 服务: %d, 等待: %d",
			step, remaining, len(s.service), len(s.waiting))
	}
}

// drift 关机房间回归环境温度；待机房间背离目标温度，超过阈值时重放上次请求。
// 本次 tick 中途停止送风的房间只计算停止之后的时间
func (s *Scheduler) drift(u *unit, dt float64) {
	for _, id := range u.sortedIDs() {
		if _, ok := s.service[id]; ok {
			continue
		}
		if _, ok := s.waiting[id]; ok {
			continue
		}
		room := u.room(id)
		minutes := dt / 60
		if at, ok := u.stoppedAt[id]; ok {
			minutes = s.now.Sub(at).Minutes()
			if minutes > dt/60 {
				minutes = dt / 60
			}
		}
		if minutes <= 0 {
			continue
		}

		switch room.Status {
		case types.StatusShutdown:
			temp := ac.DriftToAmbient(room.CurrentTemp, room.AmbientTemp(room.Mode), minutes)
			if temp != room.CurrentTemp {
				room.CurrentTemp = temp
				u.touch(room)
			}
		case types.StatusIdle:
			temp, replay := ac.DriftFromTarget(room.CurrentTemp, room.TargetTemp, room.Mode, minutes)
			room.CurrentTemp = temp
			u.touch(room)
			if !replay {
				continue
			}
			req, ok := s.lastRequests[id]
			if !ok {
				req = LastRequest{RoomID: id, Mode: room.Mode, TargetTemp: room.TargetTemp, FanSpeed: room.FanSpeed}
				s.lastRequests[id] = req
			}
			logger.Info("房间 %s 回温至 %.1f，重新请求送风", id, temp)
			s.apply(u, room, req)
		}
	}
}

func (s *Scheduler) serviceIDs() []string {
	ids := make([]string, 0, len(s.service))
	for id := range s.service {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}
