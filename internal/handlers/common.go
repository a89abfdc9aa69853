package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/scheduler"
	"github.com/pch10086/BUPT-Hotel/internal/service"
)

type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
	Err  string      `json:"err,omitempty"`
}

// statusOf 把业务错误映射为 HTTP 状态码
func statusOf(err error) int {
	var (
		verr *scheduler.ValidationError
		nf   *scheduler.NotFoundError
		perr *scheduler.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &nf), errors.Is(err, db.ErrRoomNotFound), errors.Is(err, db.ErrBillNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrRoomOccupied), errors.Is(err, db.ErrRoomVacant), errors.Is(err, service.ErrACOff):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Msg:  msg,
		Data: data,
	})
}

func fail(c *gin.Context, msg string, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		logger.Error("%s: %v", msg, err)
	}
	c.JSON(code, Response{
		Code: code,
		Msg:  msg,
		Err:  err.Error(),
	})
}

func badRequest(c *gin.Context, msg string, err error) {
	resp := Response{Code: http.StatusBadRequest, Msg: msg}
	if err != nil {
		resp.Err = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
