package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/db"
)

type billingService interface {
	Details(ctx context.Context, roomID string) ([]db.BillingDetail, error)
	ExportDetails(ctx context.Context, w io.Writer, roomID string) error
	WriteBillPDF(ctx context.Context, w io.Writer, roomID string) error
}

type BillingHandler struct {
	hotel billingService
}

func NewBillingHandler(hotel billingService) *BillingHandler {
	return &BillingHandler{hotel: hotel}
}

// GetDetails 获取房间详单
func (h *BillingHandler) GetDetails(c *gin.Context) {
	details, err := h.hotel.Details(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		fail(c, "获取详单失败", err)
		return
	}
	success(c, "获取详单成功", details)
}

// ExportDetails 导出 CSV 详单
func (h *BillingHandler) ExportDetails(c *gin.Context) {
	roomID := c.Param("roomId")
	var buf bytes.Buffer
	if err := h.hotel.ExportDetails(c.Request.Context(), &buf, roomID); err != nil {
		fail(c, "导出详单失败", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=details_%s.csv", roomID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// GetBillPDF 下载最近一次退房账单
func (h *BillingHandler) GetBillPDF(c *gin.Context) {
	roomID := c.Param("roomId")
	var buf bytes.Buffer
	if err := h.hotel.WriteBillPDF(c.Request.Context(), &buf, roomID); err != nil {
		fail(c, "生成账单失败", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=bill_%s.pdf", roomID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
