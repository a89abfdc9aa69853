// internal/handlers/ac_handler.go

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/scheduler"
	"github.com/pch10086/BUPT-Hotel/internal/service"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// 开机与调节请求，未填写的字段沿用房间当前设置
type ACControlRequest struct {
	RoomID     string   `json:"roomId" binding:"required"`
	Mode       *string  `json:"mode,omitempty"`       // COOL/HEAT，也接受 cooling/heating
	TargetTemp *float64 `json:"targetTemp,omitempty"` // 目标温度
	FanSpeed   *string  `json:"fanSpeed,omitempty"`   // LOW/MIDDLE/HIGH
}

// 关机请求
type PowerOffRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

// ACStatusResponse 客房面板显示的空调状态
type ACStatusResponse struct {
	RoomID            string           `json:"roomId"`
	IsOn              bool             `json:"isOn"`
	Status            types.RoomStatus `json:"status"`
	Mode              types.Mode       `json:"mode"`
	CurrentTemp       float64          `json:"currentTemp"`
	TargetTemp        float64          `json:"targetTemp"`
	FanSpeed          types.FanSpeed   `json:"fanSpeed"`
	CurrentSessionFee float64          `json:"currentSessionFee"` // 本次送风费用
	TotalFee          float64          `json:"totalFee"`          // 本次入住累计空调费
}

type acService interface {
	PowerOn(ctx context.Context, roomID string, req service.ACRequest) (*db.Room, error)
	PowerOff(ctx context.Context, roomID string) error
	ChangeState(ctx context.Context, roomID string, req service.ACRequest) (*db.Room, error)
	Status(ctx context.Context, roomID string) (*scheduler.RoomView, error)
	CurrentSessionFee(roomID string) float64
}

// 客房空调控制
type ACHandler struct {
	hotel acService
}

func NewACHandler(hotel acService) *ACHandler {
	return &ACHandler{hotel: hotel}
}

// toACRequest 解析可选的模式与风速
func (r *ACControlRequest) toACRequest() (service.ACRequest, error) {
	var req service.ACRequest
	if r.Mode != nil {
		mode, err := types.ParseMode(*r.Mode)
		if err != nil {
			return req, err
		}
		req.Mode = &mode
	}
	if r.FanSpeed != nil {
		speed, err := types.ParseFanSpeed(*r.FanSpeed)
		if err != nil {
			return req, err
		}
		req.FanSpeed = &speed
	}
	req.TargetTemp = r.TargetTemp
	return req, nil
}

func statusResponse(room db.Room, sessionFee float64) ACStatusResponse {
	return ACStatusResponse{
		RoomID:            room.RoomID,
		IsOn:              room.IsOn,
		Status:            room.Status,
		Mode:              room.Mode,
		CurrentTemp:       room.CurrentTemp,
		TargetTemp:        room.TargetTemp,
		FanSpeed:          room.FanSpeed,
		CurrentSessionFee: sessionFee,
		TotalFee:          room.TotalFee,
	}
}

func (h *ACHandler) PowerOn(c *gin.Context) {
	h.control(c, "开机", h.hotel.PowerOn)
}

// ChangeState 调温、调风或切换模式
func (h *ACHandler) ChangeState(c *gin.Context) {
	h.control(c, "调节", h.hotel.ChangeState)
}

func (h *ACHandler) control(c *gin.Context, action string,
	op func(context.Context, string, service.ACRequest) (*db.Room, error)) {
	var body ACControlRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "无效的请求格式", err)
		return
	}
	req, err := body.toACRequest()
	if err != nil {
		badRequest(c, "无效的模式或风速", err)
		return
	}

	room, err := op(c.Request.Context(), body.RoomID, req)
	if err != nil {
		fail(c, action+"失败", err)
		return
	}
	success(c, action+"成功", statusResponse(*room, h.hotel.CurrentSessionFee(body.RoomID)))
}

func (h *ACHandler) PowerOff(c *gin.Context) {
	var req PowerOffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求格式", err)
		return
	}
	if err := h.hotel.PowerOff(c.Request.Context(), req.RoomID); err != nil {
		fail(c, "关机失败", err)
		return
	}
	success(c, "关机成功", nil)
}

// GetStatus 查询房间空调状态
func (h *ACHandler) GetStatus(c *gin.Context) {
	view, err := h.hotel.Status(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		fail(c, "获取房间状态失败", err)
		return
	}
	success(c, "获取房间状态成功", statusResponse(view.Room, view.CurrentSessionFee))
}
