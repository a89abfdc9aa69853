// internal/types/ac_types.go

package types

import (
	"fmt"
	"strings"
)

// Mode 空调工作模式
type Mode string

const (
	ModeCool Mode = "COOL"
	ModeHeat Mode = "HEAT"
)

// FanSpeed 风速
type FanSpeed string

const (
	SpeedLow    FanSpeed = "LOW"
	SpeedMiddle FanSpeed = "MIDDLE"
	SpeedHigh   FanSpeed = "HIGH"
)

// RoomStatus 房间空调的调度状态
type RoomStatus string

const (
	StatusShutdown RoomStatus = "SHUTDOWN"
	StatusWaiting  RoomStatus = "WAITING"
	StatusServing  RoomStatus = "SERVING"
	StatusIdle     RoomStatus = "IDLE"
)

// TempRange 温度范围（闭区间）
type TempRange struct {
	Min float64
	Max float64
}

func (r TempRange) Contains(t float64) bool {
	return t >= r.Min && t <= r.Max
}

// TempRanges 不同模式允许设置的目标温度
var TempRanges = map[Mode]TempRange{
	ModeCool: {Min: 18, Max: 28},
	ModeHeat: {Min: 18, Max: 25},
}

// Priority 风速对应的基础优先级，高风 3、中风 2、低风 1
func (s FanSpeed) Priority() int {
	switch s {
	case SpeedHigh:
		return 3
	case SpeedMiddle:
		return 2
	case SpeedLow:
		return 1
	}
	return 0
}

// RatePerMinute 每逻辑分钟的温度变化量
func (s FanSpeed) RatePerMinute() float64 {
	switch s {
	case SpeedHigh:
		return 1.0
	case SpeedMiddle:
		return 0.5
	case SpeedLow:
		return 1.0 / 3.0
	}
	return 0
}

func (s FanSpeed) Valid() bool {
	return s.Priority() > 0
}

func (m Mode) Valid() bool {
	return m == ModeCool || m == ModeHeat
}

// ParseMode 接受 COOL/HEAT 以及 cooling/heating 两种写法
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COOL", "COOLING":
		return ModeCool, nil
	case "HEAT", "HEATING":
		return ModeHeat, nil
	}
	return "", fmt.Errorf("invalid mode %q", s)
}

// ParseFanSpeed 接受 LOW/MIDDLE/HIGH，MEDIUM 视为 MIDDLE
func ParseFanSpeed(s string) (FanSpeed, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SpeedLow, nil
	case "MIDDLE", "MEDIUM":
		return SpeedMiddle, nil
	case "HIGH":
		return SpeedHigh, nil
	}
	return "", fmt.Errorf("invalid fan speed %q", s)
}
