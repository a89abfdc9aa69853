package scheduler

import (
	"fmt"

	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// ValidationError 请求参数不合法，未做任何修改
type ValidationError struct {
	Field string
	Value interface{}
	Range *types.TempRange
}

func (e *ValidationError) Error() string {
	if e.Range != nil {
		return fmt.Sprintf("invalid %s %v: allowed range is %.0f-%.0f", e.Field, e.Value, e.Range.Min, e.Range.Max)
	}
	return fmt.Sprintf("invalid %s %v", e.Field, e.Value)
}

// NotFoundError 房间不存在
type NotFoundError struct {
	RoomID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("room %s not found", e.RoomID)
}

// PersistenceError 存储读写失败。调度器内存状态不受影响，未写入的数据会在后续操作中重试
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// validateRequest 校验模式、风速与目标温度
func validateRequest(mode types.Mode, target float64, speed types.FanSpeed) error {
	if !mode.Valid() {
		return &ValidationError{Field: "mode", Value: mode}
	}
	if !speed.Valid() {
		return &ValidationError{Field: "fan speed", Value: speed}
	}
	r := types.TempRanges[mode]
	if !r.Contains(target) {
		return &ValidationError{Field: "target temperature", Value: target, Range: &r}
	}
	return nil
}
