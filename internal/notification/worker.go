// Package notification 把房间状态变化通过 Web Push 推送给客房面板
package notification

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/events"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// NotificationSender 发送单条 Web Push 通知
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender 使用 webpush-go 发送
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore 推送订阅存储
type SubscriptionStore interface {
	ListByRoom(ctx context.Context, roomID string) ([]db.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Payload 推送给客房面板的状态消息
type Payload struct {
	Event       string           `json:"event"`
	RoomID      string           `json:"roomId"`
	Status      types.RoomStatus `json:"status"`
	IsOn        bool             `json:"isOn"`
	Mode        types.Mode       `json:"mode"`
	CurrentTemp float64          `json:"currentTemp"`
	TargetTemp  float64          `json:"targetTemp"`
	FanSpeed    types.FanSpeed   `json:"fanSpeed"`
	TotalFee    float64          `json:"totalFee"`
	Timestamp   time.Time        `json:"timestamp"`
}

// WorkerPool 推送工作池。同一房间的消息总是由同一个 worker 处理，保证推送顺序
type WorkerPool struct {
	queues  []chan Payload
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	wg      sync.WaitGroup

	mu      sync.Mutex
	sent    int64
	failed  int64
	dropped int64
}

// NewWorkerPool 创建工作池，size 个 worker，每个 worker 队列长度为 queueSize
func NewWorkerPool(size, queueSize int, store SubscriptionStore, options *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	wp := &WorkerPool{
		queues:  make([]chan Payload, size),
		store:   store,
		webpush: options,
		sender:  &WebPushSender{},
	}
	for i := range wp.queues {
		wp.queues[i] = make(chan Payload, queueSize)
	}
	return wp
}

// Start 启动 worker，ctx 取消后 worker 退出
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := range wp.queues {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait 等待所有 worker 退出
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	logger.Debug("推送 worker %d 已启动", id)
	for {
		select {
		case p := <-wp.queues[id]:
			wp.sendForRoom(ctx, p)
		case <-ctx.Done():
			logger.Debug("推送 worker %d 已退出", id)
			return
		}
	}
}

// Dispatch 投递一条消息，队列满时丢弃并返回 false
func (wp *WorkerPool) Dispatch(p Payload) bool {
	h := fnv.New32a()
	h.Write([]byte(p.RoomID))
	q := wp.queues[int(h.Sum32()%uint32(len(wp.queues)))]
	select {
	case q <- p:
		return true
	default:
		wp.mu.Lock()
		wp.dropped++
		wp.mu.Unlock()
		logger.Warn("推送队列已满，丢弃房间 %s 的通知", p.RoomID)
		return false
	}
}

// Handle 事件总线回调，把房间事件转为推送消息
func (wp *WorkerPool) Handle(ev events.Event) {
	room, ok := ev.Data.(db.Room)
	if !ok {
		return
	}
	wp.Dispatch(PayloadFromRoom(ev.Type.String(), room, ev.Timestamp))
}

// Subscribe 在总线上订阅房间状态、入住与退房事件
func (wp *WorkerPool) Subscribe(bus *events.EventBus) []events.Subscription {
	return []events.Subscription{
		bus.Subscribe(events.EventRoomStatus, wp.Handle),
		bus.Subscribe(events.EventRoomCheckIn, wp.Handle),
		bus.Subscribe(events.EventRoomCheckOut, wp.Handle),
	}
}

// Counts 已发送、发送失败、丢弃的通知数
func (wp *WorkerPool) Counts() (sent, failed, dropped int64) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.sent, wp.failed, wp.dropped
}

func PayloadFromRoom(event string, room db.Room, at time.Time) Payload {
	return Payload{
		Event:       event,
		RoomID:      room.RoomID,
		Status:      room.Status,
		IsOn:        room.IsOn,
		Mode:        room.Mode,
		CurrentTemp: room.CurrentTemp,
		TargetTemp:  room.TargetTemp,
		FanSpeed:    room.FanSpeed,
		TotalFee:    room.TotalFee,
		Timestamp:   at,
	}
}

func (wp *WorkerPool) sendForRoom(ctx context.Context, p Payload) {
	subs, err := wp.store.ListByRoom(ctx, p.RoomID)
	if err != nil {
		logger.Error("获取房间 %s 的推送订阅失败: %v", p.RoomID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		logger.Error("序列化推送消息失败: %v", err)
		return
	}
	for _, sub := range subs {
		wp.send(ctx, sub, body)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub db.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.count(false)
		logger.Error("推送失败 - endpoint: %s, 错误: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		wp.count(false)
		logger.Info("推送订阅已失效，删除 - endpoint: %s", sub.Endpoint)
		if err := wp.store.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			logger.Error("删除失效订阅失败 - endpoint: %s, 错误: %v", sub.Endpoint, err)
		}
	case resp.StatusCode >= 400:
		wp.count(false)
		logger.Warn("推送被拒绝 - endpoint: %s, 状态码: %d", sub.Endpoint, resp.StatusCode)
	default:
		wp.count(true)
	}
}

func (wp *WorkerPool) count(ok bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if ok {
		wp.sent++
	} else {
		wp.failed++
	}
}

// Options 由配置构造 webpush 选项，没有配置密钥时返回 nil
func Options(publicKey, privateKey, subscriber string, ttl int) *webpush.Options {
	if publicKey == "" || privateKey == "" {
		return nil
	}
	return &webpush.Options{
		Subscriber:      subscriber,
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		TTL:             ttl,
	}
}
