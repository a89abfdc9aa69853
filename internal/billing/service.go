package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

// Statement 退房时的完整账单
type Statement struct {
	Room    db.Room            `json:"room"`
	AC      *db.BillingRecord  `json:"ac"`
	Details []db.BillingDetail `json:"details"`
	Lodging *db.LodgingBill    `json:"lodging"`
	Total   float64            `json:"total"`
}

type detailStore interface {
	ListUnbilled(ctx context.Context, roomID string, since time.Time) ([]db.BillingDetail, error)
	ListByRecord(ctx context.Context, recordID uint) ([]db.BillingDetail, error)
}

type billStore interface {
	CreateACBill(ctx context.Context, record *db.BillingRecord, detailIDs []uint) error
	CreateLodgingBill(ctx context.Context, bill *db.LodgingBill) error
	LatestACBill(ctx context.Context, roomID string) (*db.BillingRecord, error)
	LatestLodgingBill(ctx context.Context, roomID string) (*db.LodgingBill, error)
}

type Service struct {
	details detailStore
	bills   billStore
	since   TimeMapper
}

// NewService 创建计费服务。since 把真实的入住时间换算为详单逻辑时间的下界，
// 只有不早于它开始的详单计入本次入住；为 nil 时不做换算
func NewService(details detailStore, bills billStore, since TimeMapper) *Service {
	if since == nil {
		since = identity
	}
	return &Service{details: details, bills: bills, since: since}
}

// LodgingDays 住宿天数：不足 24 小时按一天，此后每满 24 小时加一天
func LodgingDays(checkIn, checkOut time.Time) int {
	hours := int(checkOut.Sub(checkIn).Hours())
	if hours < 0 {
		hours = 0
	}
	return hours/24 + 1
}

// GenerateACBill 汇总本次入住未结算的详单，生成空调账单并关联详单
func (s *Service) GenerateACBill(ctx context.Context, room *db.Room, checkOut time.Time) (*db.BillingRecord, []db.BillingDetail, error) {
	if !room.Occupied() {
		return nil, nil, fmt.Errorf("房间 %s 生成空调账单失败: %w", room.RoomID, db.ErrRoomVacant)
	}
	details, err := s.details.ListUnbilled(ctx, room.RoomID, s.since(*room.CheckInTime))
	if err != nil {
		return nil, nil, err
	}

	total := decimal.Zero
	ids := make([]uint, 0, len(details))
	for _, d := range details {
		total = total.Add(decimal.NewFromFloat(d.Fee))
		ids = append(ids, d.ID)
	}

	record := &db.BillingRecord{
		RoomID:       room.RoomID,
		CustomerName: room.CustomerName,
		CheckInTime:  *room.CheckInTime,
		CheckOutTime: checkOut,
		TotalFee:     total.Round(2).InexactFloat64(),
	}
	if err := s.bills.CreateACBill(ctx, record, ids); err != nil {
		return nil, nil, err
	}
	for i := range details {
		details[i].BillingRecordID = &record.ID
	}
	logger.Info("生成空调账单 - 房间ID: %s, 详单数: %d, 费用: %.2f", room.RoomID, len(details), record.TotalFee)
	return record, details, nil
}

// GenerateLodgingBill 按住宿天数与房价生成住宿账单
func (s *Service) GenerateLodgingBill(ctx context.Context, room *db.Room, checkOut time.Time) (*db.LodgingBill, error) {
	if !room.Occupied() {
		return nil, fmt.Errorf("房间 %s 生成住宿账单失败: %w", room.RoomID, db.ErrRoomVacant)
	}
	days := LodgingDays(*room.CheckInTime, checkOut)
	fee := decimal.NewFromFloat(room.PricePerDay).Mul(decimal.NewFromInt(int64(days)))

	bill := &db.LodgingBill{
		RoomID:       room.RoomID,
		CustomerName: room.CustomerName,
		CheckInTime:  *room.CheckInTime,
		CheckOutTime: checkOut,
		Days:         days,
		PricePerDay:  room.PricePerDay,
		Fee:          fee.Round(2).InexactFloat64(),
	}
	if err := s.bills.CreateLodgingBill(ctx, bill); err != nil {
		return nil, err
	}
	logger.Info("生成住宿账单 - 房间ID: %s, 天数: %d, 费用: %.2f", room.RoomID, days, bill.Fee)
	return bill, nil
}

// Checkout 生成空调与住宿两张账单
func (s *Service) Checkout(ctx context.Context, room *db.Room, checkOut time.Time) (*Statement, error) {
	ac, details, err := s.GenerateACBill(ctx, room, checkOut)
	if err != nil {
		return nil, err
	}
	lodging, err := s.GenerateLodgingBill(ctx, room, checkOut)
	if err != nil {
		return nil, err
	}
	return &Statement{
		Room:    *room,
		AC:      ac,
		Details: details,
		Lodging: lodging,
		Total:   sum2(ac.TotalFee, lodging.Fee),
	}, nil
}

// LatestStatement 重新组装房间最近一次退房的账单
func (s *Service) LatestStatement(ctx context.Context, room *db.Room) (*Statement, error) {
	ac, err := s.bills.LatestACBill(ctx, room.RoomID)
	if err != nil {
		return nil, err
	}
	details, err := s.details.ListByRecord(ctx, ac.ID)
	if err != nil {
		return nil, err
	}
	st := &Statement{Room: *room, AC: ac, Details: details, Total: ac.TotalFee}
	if st.Room.CustomerName == "" {
		st.Room.CustomerName = ac.CustomerName
	}
	lodging, err := s.bills.LatestLodgingBill(ctx, room.RoomID)
	switch {
	case err == nil:
		st.Lodging = lodging
		st.Total = sum2(ac.TotalFee, lodging.Fee)
	case !errors.Is(err, db.ErrBillNotFound):
		return nil, err
	}
	return st, nil
}

func sum2(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}
