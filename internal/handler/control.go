package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// Trigger runs work through the scheduler's guard.
type Trigger interface {
	TriggerCycle(ctx context.Context) (model.CycleReport, error)
	TriggerSettlement(ctx context.Context, date time.Time) (model.SettlementReport, error)
}

type ControlHandler struct {
	trigger Trigger
	now     func() time.Time
}

func NewControlHandler(trigger Trigger) *ControlHandler {
	return &ControlHandler{trigger: trigger, now: func() time.Time { return time.Now().UTC() }}
}

// RunCycle runs one cycle synchronously and returns its report.
func (h *ControlHandler) RunCycle(c *gin.Context) {
	// 客户端断开不应中断周期
	report, err := h.trigger.TriggerCycle(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type settleRequest struct {
	Date string `json:"date"` // YYYY-MM-DD, default yesterday
}

// Settle (re)computes the summary for a date.
func (h *ControlHandler) Settle(c *gin.Context) {
	var req settleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
	}

	date := model.Day(h.now()).AddDate(0, 0, -1)
	if req.Date != "" {
		parsed, err := model.ParseDay(req.Date)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("date: expected YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	if date.After(model.Day(h.now())) {
		c.Error(apperrors.NewInvalidRequest("cannot settle a future date"))
		return
	}

	report, err := h.trigger.TriggerSettlement(context.WithoutCancel(c.Request.Context()), date)
	if err != nil {
		c.Error(err)
		return
	}
	status := http.StatusOK
	if !report.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, report)
}
