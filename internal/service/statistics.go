// internal/service/statistics.go
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pch10086/BUPT-Hotel/internal/clock"
	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// RoomUsage 单个房间在统计区间内的使用情况
type RoomUsage struct {
	RoomID   string  `json:"roomId"`   // 房间号
	Sessions int     `json:"sessions"` // 服务次数（详单条数）
	Duration float64 `json:"duration"` // 送风时长(逻辑秒)
	Fee      float64 `json:"fee"`      // 费用
}

// Report 统计报表
type Report struct {
	From          time.Time                  `json:"from"`
	To            time.Time                  `json:"to"`
	Sessions      int                        `json:"sessions"`
	TotalFee      float64                    `json:"totalFee"`
	TotalDuration float64                    `json:"totalDuration"`
	Rooms         []RoomUsage                `json:"rooms"`     // 按费用从高到低
	FanSpeeds     map[types.FanSpeed]float64 `json:"fanSpeeds"` // 各风速送风时长
}

type rangeLister interface {
	ListInRange(ctx context.Context, from, to time.Time) ([]db.BillingDetail, error)
}

type StatisticsService struct {
	details rangeLister
	clock   *clock.Clock
}

func NewStatisticsService(details rangeLister, clk *clock.Clock) *StatisticsService {
	return &StatisticsService{details: details, clock: clk}
}

// Report 统计开始时间落在 [from, to) 内的详单。from、to 为真实时间
func (s *StatisticsService) Report(ctx context.Context, from, to time.Time) (*Report, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("统计区间无效: %s 不早于 %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	details, err := s.details.ListInRange(ctx, s.clock.ToLogical(from), s.clock.ToLogical(to))
	if err != nil {
		return nil, err
	}

	report := &Report{
		From:      from,
		To:        to,
		Sessions:  len(details),
		FanSpeeds: make(map[types.FanSpeed]float64),
	}
	total := decimal.Zero
	roomFees := make(map[string]decimal.Decimal)
	usage := make(map[string]*RoomUsage)
	for _, d := range details {
		fee := decimal.NewFromFloat(d.Fee)
		total = total.Add(fee)
		report.TotalDuration += d.DurationSeconds
		report.FanSpeeds[d.FanSpeed] += d.DurationSeconds

		u, ok := usage[d.RoomID]
		if !ok {
			u = &RoomUsage{RoomID: d.RoomID}
			usage[d.RoomID] = u
		}
		u.Sessions++
		u.Duration += d.DurationSeconds
		roomFees[d.RoomID] = roomFees[d.RoomID].Add(fee)
	}
	report.TotalFee = total.Round(2).InexactFloat64()

	report.Rooms = make([]RoomUsage, 0, len(usage))
	for id, u := range usage {
		u.Fee = roomFees[id].Round(2).InexactFloat64()
		report.Rooms = append(report.Rooms, *u)
	}
	sort.Slice(report.Rooms, func(i, j int) bool {
		a, b := report.Rooms[i], report.Rooms[j]
		if a.Fee != b.Fee {
			return a.Fee > b.Fee
		}
		return a.RoomID < b.RoomID
	})
	return report, nil
}
