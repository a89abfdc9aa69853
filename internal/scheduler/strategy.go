package scheduler

import "sort"

// 调度策略：优先级抢占 + 时间片轮转。
// 服务队列中最弱者：优先级最低，其次已服务时间最长，再次房间号最小。
// 等待队列中最强者：有效优先级最高，其次累计等待最久，再次入队最早。

// weaker 报告服务记录 a 是否比 b 更应被抢占
func weaker(a, b *ServiceRecord) bool {
	pa, pb := a.FanSpeed.Priority(), b.FanSpeed.Priority()
	if pa != pb {
		return pa < pb
	}
	if a.ServedSeconds != b.ServedSeconds {
		return a.ServedSeconds > b.ServedSeconds
	}
	return a.RoomID < b.RoomID
}

// stronger 报告等待者 a 是否比 b 更应被调度
func stronger(a, b *WaitEntry) bool {
	pa, pb := a.EffectivePriority(), b.EffectivePriority()
	if pa != pb {
		return pa > pb
	}
	if a.TotalWaited != b.TotalWaited {
		return a.TotalWaited > b.TotalWaited
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.RoomID < b.RoomID
}

// selectVictim 选出优先级严格低于 priority 的最弱服务记录，没有则返回 nil
func (s *Scheduler) selectVictim(priority int) *ServiceRecord {
	var victim *ServiceRecord
	for _, rec := range s.service {
		if rec.FanSpeed.Priority() >= priority {
			continue
		}
		if victim == nil || weaker(rec, victim) {
			victim = rec
		}
	}
	return victim
}

// weakest 服务队列中的最弱者
func (s *Scheduler) weakest() *ServiceRecord {
	var w *ServiceRecord
	for _, rec := range s.service {
		if w == nil || weaker(rec, w) {
			w = rec
		}
	}
	return w
}

// bestWaiter 等待队列中的最强者
func (s *Scheduler) bestWaiter() *WaitEntry {
	var best *WaitEntry
	for _, w := range s.waiting {
		if best == nil || stronger(w, best) {
			best = w
		}
	}
	return best
}

// longestServedSameSpeed 同风速中服务时间最长的记录，用于时间片轮转
func (s *Scheduler) longestServedSameSpeed(w *WaitEntry) *ServiceRecord {
	var target *ServiceRecord
	for _, rec := range s.service {
		if rec.FanSpeed != w.FanSpeed {
			continue
		}
		if target == nil || rec.ServedSeconds > target.ServedSeconds ||
			(rec.ServedSeconds == target.ServedSeconds && rec.RoomID < target.RoomID) {
			target = rec
		}
	}
	return target
}

// waitersInOrder 按调度顺序排列的等待者
func (s *Scheduler) waitersInOrder() []*WaitEntry {
	list := make([]*WaitEntry, 0, len(s.waiting))
	for _, w := range s.waiting {
		list = append(list, w)
	}
	sortWaiters(list)
	return list
}

func sortWaiters(list []*WaitEntry) {
	sort.Slice(list, func(i, j int) bool { return stronger(list[i], list[j]) })
}
