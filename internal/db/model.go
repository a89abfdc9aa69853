package db

import (
	"time"

	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// Room 房间表。调度器只读写空调相关字段，入住信息由前台维护
type Room struct {
	RoomID          string           `gorm:"primaryKey;type:varchar(16)" json:"roomId"`
	Mode            types.Mode       `gorm:"type:varchar(8)" json:"mode"`
	CurrentTemp     float64          `json:"currentTemp"`
	TargetTemp      float64          `json:"targetTemp"`
	InitialTemp     float64          `json:"initialTemp"`     // 环境温度，制冷模式下的回温终点
	InitialHeatTemp float64          `json:"initialHeatTemp"` // 制热模式的环境温度，0 表示与 InitialTemp 相同
	FanSpeed        types.FanSpeed   `gorm:"type:varchar(8)" json:"fanSpeed"`
	IsOn            bool             `json:"isOn"`
	Status          types.RoomStatus `gorm:"type:varchar(16);index" json:"status"`
	CustomerName    string           `gorm:"type:varchar(64)" json:"customerName,omitempty"`
	IDCard          string           `gorm:"type:varchar(32)" json:"idCard,omitempty"`
	CheckInTime     *time.Time       `json:"checkInTime,omitempty"`
	PricePerDay     float64          `json:"pricePerDay"`
	TotalFee        float64          `json:"totalFee"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Occupied 是否已入住
func (r *Room) Occupied() bool {
	return r.CheckInTime != nil
}

// AmbientTemp 指定模式下关机回温的目标温度
func (r *Room) AmbientTemp(mode types.Mode) float64 {
	if mode == types.ModeHeat && r.InitialHeatTemp != 0 {
		return r.InitialHeatTemp
	}
	return r.InitialTemp
}

// BillingDetail 详单，每个服务会话一条，写入后不再修改（除关联账单）
type BillingDetail struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	RoomID          string         `gorm:"type:varchar(16);index" json:"roomId"`
	RequestTime     time.Time      `json:"requestTime"`
	StartTime       time.Time      `gorm:"index" json:"startTime"`
	EndTime         time.Time      `json:"endTime"`
	DurationSeconds float64        `json:"durationSeconds"`
	FanSpeed        types.FanSpeed `gorm:"type:varchar(8)" json:"fanSpeed"`
	Fee             float64        `json:"fee"`
	CumulativeFee   float64        `json:"cumulativeFee"`
	BillingRecordID *uint          `gorm:"index" json:"billingRecordId,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// BillingRecord 退房时生成的空调账单
type BillingRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RoomID       string    `gorm:"type:varchar(16);index" json:"roomId"`
	CustomerName string    `gorm:"type:varchar(64)" json:"customerName"`
	CheckInTime  time.Time `json:"checkInTime"`
	CheckOutTime time.Time `json:"checkOutTime"`
	TotalFee     float64   `json:"totalFee"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LodgingBill 住宿费账单
type LodgingBill struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RoomID       string    `gorm:"type:varchar(16);index" json:"roomId"`
	CustomerName string    `gorm:"type:varchar(64)" json:"customerName"`
	CheckInTime  time.Time `json:"checkInTime"`
	CheckOutTime time.Time `json:"checkOutTime"`
	Days         int       `json:"days"`
	PricePerDay  float64   `json:"pricePerDay"`
	Fee          float64   `json:"fee"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PushSubscription 客房面板注册的 Web Push 订阅
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"type:varchar(16);index" json:"roomId"`
	Endpoint  string    `gorm:"type:varchar(512);uniqueIndex" json:"endpoint"`
	P256dh    string    `gorm:"type:varchar(256)" json:"p256dh"`
	Auth      string    `gorm:"type:varchar(128)" json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
}
