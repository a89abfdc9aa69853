package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

// unit 一次加锁操作内的工作单元：开始时载入全部房间，结束时统一写回与推送
type unit struct {
	ctx     context.Context
	rooms   map[string]*db.Room
	dirty   map[string]bool
	details []*db.BillingDetail

	// 本次操作中停止送风的房间及其停止时的逻辑时间，回温只计算此后的部分
	stoppedAt map[string]time.Time
}

// begin 载入房间并叠加上次未写入成功的房间状态。失败时调度状态未被修改
func (s *Scheduler) begin(ctx context.Context, op string) (*unit, error) {
	rooms, err := s.rooms.ListAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	u := &unit{
		ctx:       ctx,
		rooms:     make(map[string]*db.Room, len(rooms)),
		dirty:     make(map[string]bool),
		stoppedAt: make(map[string]time.Time),
	}
	for i := range rooms {
		u.rooms[rooms[i].RoomID] = &rooms[i]
	}
	for id, pending := range s.pendingRooms {
		room, ok := u.rooms[id]
		if !ok {
			delete(s.pendingRooms, id)
			continue
		}
		copySchedulerFields(room, pending)
		u.touch(room)
	}
	return u, nil
}

func copySchedulerFields(dst, src *db.Room) {
	dst.Mode = src.Mode
	dst.CurrentTemp = src.CurrentTemp
	dst.TargetTemp = src.TargetTemp
	dst.FanSpeed = src.FanSpeed
	dst.IsOn = src.IsOn
	dst.Status = src.Status
	dst.TotalFee = src.TotalFee
}

// lookup 查找请求涉及的房间
func (u *unit) lookup(roomID string) (*db.Room, error) {
	room, ok := u.rooms[roomID]
	if !ok {
		return nil, &NotFoundError{RoomID: roomID}
	}
	return room, nil
}

// room 查找队列中的房间，队列里的房间一定存在
func (u *unit) room(roomID string) *db.Room {
	room, ok := u.rooms[roomID]
	if !ok {
		panic("scheduler: queued room " + roomID + " missing from store")
	}
	return room
}

func (u *unit) touch(room *db.Room) {
	u.dirty[room.RoomID] = true
}

func (u *unit) emit(detail *db.BillingDetail) {
	u.details = append(u.details, detail)
}

func (u *unit) sortedIDs() []string {
	ids := make([]string, 0, len(u.rooms))
	for id := range u.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// commit 先写详单再写房间，最后推送状态。写失败的数据留待下次操作重试
func (s *Scheduler) commit(u *unit, op string) error {
	var errs []error

	details := append(s.pendingDetails, u.details...)
	s.pendingDetails = nil
	for _, d := range details {
		if err := s.details.SaveDetail(u.ctx, d); err != nil {
			logger.Error("详单写入失败，稍后重试 - 房间ID: %s, 错误: %v", d.RoomID, err)
			s.pendingDetails = append(s.pendingDetails, d)
			errs = append(errs, err)
		}
	}

	ids := make([]string, 0, len(u.dirty))
	for id := range u.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		room := u.rooms[id]
		if err := s.rooms.Save(u.ctx, room); err != nil {
			logger.Error("房间状态写入失败，稍后重试 - 房间ID: %s, 错误: %v", id, err)
			saved := *room
			s.pendingRooms[id] = &saved
			errs = append(errs, err)
		} else {
			delete(s.pendingRooms, id)
		}
		s.notifier.PublishStatus(id, *room)
	}

	if len(errs) > 0 {
		return &PersistenceError{Op: op, Err: errors.Join(errs...)}
	}
	return nil
}
