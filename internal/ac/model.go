// internal/ac/model.go

// Package ac 房间温度与计费模型，纯函数，不持有状态
package ac

import (
	"math"

	"github.com/pch10086/BUPT-Hotel/internal/types"
)

const (
	// FeePerDegree 每变化 1°C 收取的费用
	FeePerDegree = 1.0
	// DriftRatePerMinute 关机或待机时的回温速率 (°C/逻辑分钟)
	DriftRatePerMinute = 0.5
	// RestartThreshold 待机房间偏离目标温度超过该值时重新请求送风
	RestartThreshold = 1.0

	epsilon = 1e-9
)

// StepResult 一次送风步进的结果
type StepResult struct {
	Temp     float64 // 步进后的温度
	Delta    float64 // 实际温度变化量（非负）
	Fee      float64 // 本次步进产生的费用
	Fraction float64 // 实际消耗的时间占比，未触顶时为 1
	Reached  bool    // 是否已达到目标温度
}

// Remaining 距离目标温度还需变化的量，已越过目标时为 0
func Remaining(current, target float64, mode types.Mode) float64 {
	var r float64
	if mode == types.ModeHeat {
		r = target - current
	} else {
		r = current - target
	}
	if r < epsilon {
		return 0
	}
	return r
}

// TimeToTarget 以给定风速到达目标温度所需的逻辑分钟数
func TimeToTarget(current, target float64, mode types.Mode, speed types.FanSpeed) float64 {
	rate := speed.RatePerMinute()
	if rate <= 0 {
		return math.Inf(1)
	}
	return Remaining(current, target, mode) / rate
}

// Step 送风 minutes 逻辑分钟，温度变化在目标处截断，费用只按实际变化计算
func Step(current, target float64, mode types.Mode, speed types.FanSpeed, minutes float64) StepResult {
	remaining := Remaining(current, target, mode)
	if remaining == 0 {
		return StepResult{Temp: target, Reached: true}
	}
	if minutes <= 0 {
		return StepResult{Temp: current, Fraction: 1}
	}

	unclamped := speed.RatePerMinute() * minutes
	if unclamped+epsilon >= remaining {
		fraction := 1.0
		if unclamped > remaining {
			fraction = remaining / unclamped
		}
		return StepResult{
			Temp:     target,
			Delta:    remaining,
			Fee:      remaining * FeePerDegree,
			Fraction: fraction,
			Reached:  true,
		}
	}

	temp := current - unclamped
	if mode == types.ModeHeat {
		temp = current + unclamped
	}
	return StepResult{
		Temp:     temp,
		Delta:    unclamped,
		Fee:      unclamped * FeePerDegree,
		Fraction: 1,
	}
}

// DriftToAmbient 关机房间向环境温度回归，到达后停止
func DriftToAmbient(current, ambient, minutes float64) float64 {
	step := DriftRatePerMinute * minutes
	if math.Abs(current-ambient) <= step {
		return ambient
	}
	if current > ambient {
		return current - step
	}
	return current + step
}

// DriftFromTarget 待机房间背离目标温度回温（制冷回升，制热回落），
// replay 表示已偏离 RestartThreshold，需要重放上次请求
func DriftFromTarget(current, target float64, mode types.Mode, minutes float64) (temp float64, replay bool) {
	step := DriftRatePerMinute * minutes
	if mode == types.ModeHeat {
		temp = current - step
		return temp, temp <= target-RestartThreshold+epsilon
	}
	temp = current + step
	return temp, temp >= target+RestartThreshold-epsilon
}
