package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

const defaultQueueSize = 64

// subscriber 每个订阅者一个缓冲队列和一个消费协程，保证同一订阅者按发布顺序收到事件
type subscriber struct {
	id      uint64
	handler Handler
	queue   chan Event
	done    chan struct{}
}

func (s *subscriber) run() {
	defer close(s.done)
	for ev := range s.queue {
		s.dispatch(ev)
	}
}

func (s *subscriber) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("事件处理失败 - 类型: %s, 房间ID: %s, 错误: %v", ev.Type, ev.RoomID, r)
		}
	}()
	s.handler(ev)
}

// EventBus 是事件总线的实现。Publish 不阻塞，订阅者队列满时丢弃事件并计数
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[EventType][]*subscriber
	queueSize int
	nextID    uint64
	closed    bool
	dropped   atomic.Int64
	now       func() time.Time
}

// NewEventBus 创建新的事件总线
func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &EventBus{
		handlers:  make(map[EventType][]*subscriber),
		queueSize: queueSize,
		now:       time.Now,
	}
}

// Publish 发布事件
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}

	for _, sub := range eb.handlers[event.Type] {
		select {
		case sub.queue <- event:
		default:
			eb.dropped.Add(1)
			logger.Warn("事件队列已满，丢弃事件 - 类型: %s, 房间ID: %s", event.Type, event.RoomID)
		}
	}
}

// PublishStatus 推送房间空调状态
func (eb *EventBus) PublishStatus(roomID string, room db.Room) {
	eb.Publish(Event{Type: EventRoomStatus, RoomID: roomID, Data: room})
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType EventType, handler Handler) Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	sub := &subscriber{
		id:      eb.nextID,
		handler: handler,
		queue:   make(chan Event, eb.queueSize),
		done:    make(chan struct{}),
	}
	if eb.closed {
		close(sub.queue)
	}
	go sub.run()
	eb.handlers[eventType] = append(eb.handlers[eventType], sub)
	return Subscription{EventType: eventType, id: sub.id}
}

// Unsubscribe 取消订阅，已入队的事件仍会被处理完
func (eb *EventBus) Unsubscribe(s Subscription) {
	eb.mu.Lock()
	handlers := eb.handlers[s.EventType]
	var removed *subscriber
	for i, sub := range handlers {
		if sub.id == s.id {
			removed = sub
			eb.handlers[s.EventType] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if removed != nil && !eb.closed {
		close(removed.queue)
	}
	eb.mu.Unlock()

	if removed != nil {
		<-removed.done
	}
}

// Dropped 因队列满被丢弃的事件数
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// Close 停止接收事件，并等待所有订阅者处理完队列中的事件
func (eb *EventBus) Close() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true
	var subs []*subscriber
	for _, handlers := range eb.handlers {
		for _, sub := range handlers {
			close(sub.queue)
			subs = append(subs, sub)
		}
	}
	eb.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}
