// internal/handlers/report_handler.go
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/service"
)

type ReportRequest struct {
	From string `form:"from"` // RFC3339，缺省为 24 小时前
	To   string `form:"to"`   // RFC3339，缺省为当前时间
}

type reporter interface {
	Report(ctx context.Context, from, to time.Time) (*service.Report, error)
}

type ReportHandler struct {
	statsService reporter
	now          func() time.Time
}

func NewReportHandler(statsService reporter) *ReportHandler {
	return &ReportHandler{statsService: statsService, now: time.Now}
}

func parseTime(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("时间 %q 不是 RFC3339 格式", v)
	}
	return t, nil
}

func (h *ReportHandler) GetReport(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "无效的请求格式", err)
		return
	}

	now := h.now()
	to, err := parseTime(req.To, now)
	if err != nil {
		badRequest(c, "无效的结束时间", err)
		return
	}
	from, err := parseTime(req.From, to.Add(-24*time.Hour))
	if err != nil {
		badRequest(c, "无效的开始时间", err)
		return
	}
	if !from.Before(to) {
		badRequest(c, "开始时间必须早于结束时间", nil)
		return
	}

	report, err := h.statsService.Report(c.Request.Context(), from, to)
	if err != nil {
		fail(c, "获取报表失败", err)
		return
	}
	success(c, "获取报表成功", report)
}
