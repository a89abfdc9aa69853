// Package billing 会话结算、账单生成与导出
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// Session 即将结束的一次送风服务
type Session struct {
	RoomID        string
	RequestTime   time.Time
	StartTime     time.Time
	FanSpeed      types.FanSpeed
	ServedSeconds float64
	Fee           float64
}

// Round2 四舍五入到分
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// CloseSession 把会话费用累加进房间总费用，并生成对应的详单。
// 房间总费用保持全精度，详单里的费用与累计费用保留两位小数。
func CloseSession(s Session, room *db.Room, end time.Time) *db.BillingDetail {
	room.TotalFee += s.Fee
	return &db.BillingDetail{
		RoomID:          s.RoomID,
		RequestTime:     s.RequestTime,
		StartTime:       s.StartTime,
		EndTime:         end,
		DurationSeconds: s.ServedSeconds,
		FanSpeed:        s.FanSpeed,
		Fee:             Round2(s.Fee),
		CumulativeFee:   Round2(room.TotalFee),
	}
}
