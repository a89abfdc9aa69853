package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/db"
)

// SubscribeRequest 浏览器 PushSubscription 的 JSON 加上房间号
type SubscribeRequest struct {
	RoomID   string `json:"roomId" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

type subscriber interface {
	Subscribe(ctx context.Context, sub *db.PushSubscription) error
}

type PushHandler struct {
	hotel     subscriber
	publicKey string
}

func NewPushHandler(hotel subscriber, publicKey string) *PushHandler {
	return &PushHandler{hotel: hotel, publicKey: publicKey}
}

// Subscribe 保存客房面板的推送订阅
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的订阅", err)
		return
	}
	sub := &db.PushSubscription{
		RoomID:   req.RoomID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.hotel.Subscribe(c.Request.Context(), sub); err != nil {
		fail(c, "保存订阅失败", err)
		return
	}
	success(c, "订阅成功", nil)
}

// GetVAPIDPublicKey 返回 VAPID 公钥
func (h *PushHandler) GetVAPIDPublicKey(c *gin.Context) {
	if h.publicKey == "" {
		c.JSON(http.StatusServiceUnavailable, Response{
			Code: http.StatusServiceUnavailable,
			Msg:  "未配置推送密钥",
		})
		return
	}
	success(c, "获取公钥成功", gin.H{"publicKey": h.publicKey})
}
