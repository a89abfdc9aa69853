// internal/service/hotel.go

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/billing"
	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/events"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/scheduler"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// ErrACOff 空调未开机时不能调温调风
var ErrACOff = errors.New("air conditioner is off")

// Defaults 开机请求缺省参数
type Defaults struct {
	Mode       types.Mode
	TargetTemp float64
	FanSpeed   types.FanSpeed
}

// ACRequest 开机或调节请求，未填写的字段沿用房间当前设置
type ACRequest struct {
	Mode       *types.Mode
	TargetTemp *float64
	FanSpeed   *types.FanSpeed
}

type roomStore interface {
	GetByRoomID(ctx context.Context, roomID string) (*db.Room, error)
	CheckIn(ctx context.Context, roomID, customerName, idCard string, at time.Time) (*db.Room, error)
	CheckOut(ctx context.Context, roomID string) error
}

type detailLister interface {
	ListByRoom(ctx context.Context, roomID string) ([]db.BillingDetail, error)
}

type subscriptionStore interface {
	Save(ctx context.Context, sub *db.PushSubscription) error
}

type publisher interface {
	Publish(event events.Event)
}

// HotelService 前台与客房的业务流程
type HotelService struct {
	scheduler     *scheduler.Scheduler
	rooms         roomStore
	details       detailLister
	subscriptions subscriptionStore
	billing       *billing.Service
	bus           publisher
	defaults      Defaults
	pdf           billing.PDFWriter
	now           func() time.Time
}

func NewHotelService(
	s *scheduler.Scheduler,
	rooms roomStore,
	details detailLister,
	subscriptions subscriptionStore,
	billingService *billing.Service,
	bus publisher,
	defaults Defaults,
) *HotelService {
	return &HotelService{
		scheduler:     s,
		rooms:         rooms,
		details:       details,
		subscriptions: subscriptions,
		billing:       billingService,
		bus:           bus,
		defaults:      defaults,
		pdf:           billing.PDFWriter{},
		now:           time.Now,
	}
}

// getRoom 获取房间，不存在时返回 scheduler.NotFoundError
func (s *HotelService) getRoom(ctx context.Context, roomID string) (*db.Room, error) {
	room, err := s.rooms.GetByRoomID(ctx, roomID)
	if errors.Is(err, db.ErrRoomNotFound) {
		return nil, &scheduler.NotFoundError{RoomID: roomID}
	}
	if err != nil {
		return nil, &scheduler.PersistenceError{Op: "get room", Err: err}
	}
	return room, nil
}

// CheckIn 办理入住
func (s *HotelService) CheckIn(ctx context.Context, roomID, customerName, idCard string) (*db.Room, error) {
	var room *db.Room
	err := s.scheduler.Locked(func() error {
		var err error
		room, err = s.rooms.CheckIn(ctx, roomID, customerName, idCard, s.now())
		return err
	})
	switch {
	case errors.Is(err, db.ErrRoomNotFound):
		return nil, &scheduler.NotFoundError{RoomID: roomID}
	case err != nil:
		return nil, err
	}
	logger.Info("办理入住 - 房间ID: %s, 住客: %s", roomID, customerName)
	s.bus.Publish(events.Event{Type: events.EventRoomCheckIn, RoomID: roomID, Data: *room})
	return room, nil
}

// resolve 用房间当前设置补全请求，当前设置不合法时使用缺省值
func (s *HotelService) resolve(room *db.Room, req ACRequest) (types.Mode, float64, types.FanSpeed) {
	mode := room.Mode
	if req.Mode != nil {
		mode = *req.Mode
	} else if !mode.Valid() {
		mode = s.defaults.Mode
	}

	target := room.TargetTemp
	if req.TargetTemp != nil {
		target = *req.TargetTemp
	} else if r, ok := types.TempRanges[mode]; !ok || !r.Contains(target) {
		target = s.defaults.TargetTemp
	}

	speed := room.FanSpeed
	if req.FanSpeed != nil {
		speed = *req.FanSpeed
	} else if !speed.Valid() {
		speed = s.defaults.FanSpeed
	}
	return mode, target, speed
}

// PowerOn 开机，只对已入住房间有效
func (s *HotelService) PowerOn(ctx context.Context, roomID string, req ACRequest) (*db.Room, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Occupied() {
		return nil, fmt.Errorf("房间 %s 开机失败: %w", roomID, db.ErrRoomVacant)
	}
	mode, target, speed := s.resolve(room, req)
	// 锁外读到的入住状态可能已被并发退房改变，锁内再查一次
	return s.scheduler.RequestSupplyGuarded(ctx, roomID, mode, target, speed, func(room db.Room) error {
		if !room.Occupied() {
			return fmt.Errorf("房间 %s 开机失败: %w", roomID, db.ErrRoomVacant)
		}
		return nil
	})
}

// PowerOff 关机
func (s *HotelService) PowerOff(ctx context.Context, roomID string) error {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return err
	}
	return s.scheduler.StopSupply(ctx, roomID, true)
}

// ChangeState 调温调风，空调需已开机
func (s *HotelService) ChangeState(ctx context.Context, roomID string, req ACRequest) (*db.Room, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsOn {
		return nil, fmt.Errorf("房间 %s 调节失败: %w", roomID, ErrACOff)
	}
	mode, target, speed := s.resolve(room, req)
	return s.scheduler.RequestSupplyGuarded(ctx, roomID, mode, target, speed, func(room db.Room) error {
		if !room.IsOn {
			return fmt.Errorf("房间 %s 调节失败: %w", roomID, ErrACOff)
		}
		return nil
	})
}

// Status 房间状态与本次会话费用
func (s *HotelService) Status(ctx context.Context, roomID string) (*scheduler.RoomView, error) {
	views, err := s.scheduler.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if views[i].RoomID == roomID {
			return &views[i], nil
		}
	}
	return nil, &scheduler.NotFoundError{RoomID: roomID}
}

// CurrentSessionFee 房间本次送风已产生的费用
func (s *HotelService) CurrentSessionFee(roomID string) float64 {
	return s.scheduler.CurrentSessionFee(roomID)
}

// Rooms 全部房间状态
func (s *HotelService) Rooms(ctx context.Context) ([]scheduler.RoomView, error) {
	return s.scheduler.Rooms(ctx)
}

// CheckOut 关机结算并退房，返回空调与住宿账单
func (s *HotelService) CheckOut(ctx context.Context, roomID string) (*billing.Statement, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Occupied() {
		return nil, fmt.Errorf("房间 %s 退房失败: %w", roomID, db.ErrRoomVacant)
	}

	// 关机与结算在同一段调度锁内完成，中间不会有新的送风请求
	var st *billing.Statement
	err = s.scheduler.PowerOffThen(ctx, roomID, func() error {
		room, err := s.rooms.GetByRoomID(ctx, roomID)
		if err != nil {
			return err
		}
		if st, err = s.billing.Checkout(ctx, room, s.now()); err != nil {
			return err
		}
		return s.rooms.CheckOut(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("办理退房 - 房间ID: %s, 空调费: %.2f, 住宿费: %.2f, 合计: %.2f",
		roomID, st.AC.TotalFee, st.Lodging.Fee, st.Total)

	checkedOut := st.Room
	checkedOut.CustomerName, checkedOut.IDCard, checkedOut.CheckInTime = "", "", nil
	s.bus.Publish(events.Event{Type: events.EventRoomCheckOut, RoomID: roomID, Data: checkedOut})
	return st, nil
}

// Details 房间全部详单
func (s *HotelService) Details(ctx context.Context, roomID string) ([]db.BillingDetail, error) {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.details.ListByRoom(ctx, roomID)
}

// ExportDetails 以 CSV 导出房间详单，时间换算为真实时间
func (s *HotelService) ExportDetails(ctx context.Context, w io.Writer, roomID string) error {
	details, err := s.Details(ctx, roomID)
	if err != nil {
		return err
	}
	return billing.WriteDetailsCSV(w, details, s.scheduler.Clock().ToReal)
}

// WriteBillPDF 生成房间最近一次退房账单的 PDF
func (s *HotelService) WriteBillPDF(ctx context.Context, w io.Writer, roomID string) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	st, err := s.billing.LatestStatement(ctx, room)
	if err != nil {
		return err
	}
	return s.pdf.WriteStatement(w, st, s.scheduler.Clock().ToReal)
}

// SetPDFFont 设置 PDF 账单使用的 UTF-8 字体
func (s *HotelService) SetPDFFont(path string) {
	s.pdf.FontPath = path
}

// Subscribe 保存客房面板的推送订阅
func (s *HotelService) Subscribe(ctx context.Context, sub *db.PushSubscription) error {
	if _, err := s.getRoom(ctx, sub.RoomID); err != nil {
		return err
	}
	return s.subscriptions.Save(ctx, sub)
}
