package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/billing"
	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/scheduler"
)

type CheckInRequest struct {
	RoomID       string `json:"roomId" binding:"required"`
	CustomerName string `json:"customerName" binding:"required"`
	IDCard       string `json:"idCard" binding:"required"`
}

type CheckOutRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

type frontDesk interface {
	Rooms(ctx context.Context) ([]scheduler.RoomView, error)
	CheckIn(ctx context.Context, roomID, customerName, idCard string) (*db.Room, error)
	CheckOut(ctx context.Context, roomID string) (*billing.Statement, error)
}

// 前台：房间列表、入住、退房
type RoomHandler struct {
	hotel frontDesk
}

func NewRoomHandler(hotel frontDesk) *RoomHandler {
	return &RoomHandler{hotel: hotel}
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.hotel.Rooms(c.Request.Context())
	if err != nil {
		fail(c, "获取房间列表失败", err)
		return
	}
	success(c, "获取房间列表成功", rooms)
}

func (h *RoomHandler) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	room, err := h.hotel.CheckIn(c.Request.Context(), req.RoomID, req.CustomerName, req.IDCard)
	if err != nil {
		fail(c, "入住失败", err)
		return
	}
	success(c, "入住成功", room)
}

// CheckOut 退房并返回空调与住宿账单
func (h *RoomHandler) CheckOut(c *gin.Context) {
	var req CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	st, err := h.hotel.CheckOut(c.Request.Context(), req.RoomID)
	if err != nil {
		fail(c, "退房失败", err)
		return
	}
	success(c, "退房成功", st)
}
