package events

import (
	"fmt"
	"time"
)

// EventType 事件类型定义
type EventType int

const (
	// 房间空调状态变化，Data 为 db.Room 快照
	EventRoomStatus EventType = iota
	// 入住与退房，Data 为 db.Room 快照
	EventRoomCheckIn
	EventRoomCheckOut
)

// Event 事件结构
type Event struct {
	Type      EventType   `json:"type"`
	RoomID    string      `json:"room_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Handler 事件处理函数类型
type Handler func(Event)

// Subscription 事件订阅信息
type Subscription struct {
	EventType EventType
	id        uint64
}

// EventNames 提供事件类型的字符串表示
var EventNames = map[EventType]string{
	EventRoomStatus:   "RoomStatus",
	EventRoomCheckIn:  "RoomCheckIn",
	EventRoomCheckOut: "RoomCheckOut",
}

func (t EventType) String() string {
	if name, ok := EventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}
