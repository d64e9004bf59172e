package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/gin-gonic/gin"
)

// ReportReader serves cycle reports recorded by the journal.
type ReportReader interface {
	Latest(ctx context.Context, currency string) (model.CycleReport, bool)
	Recent(ctx context.Context, currency string, limit int) []model.CycleReport
}

type StatusHandler struct {
	reports  ReportReader
	currency string
	started  time.Time
}

func NewStatusHandler(reports ReportReader, currency string) *StatusHandler {
	return &StatusHandler{reports: reports, currency: currency, started: time.Now().UTC()}
}

// Health is public: liveness plus the outcome of the last cycle.
func (h *StatusHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":   "ok",
		"service":  "polylend",
		"currency": h.currency,
		"uptime_s": int64(time.Since(h.started).Seconds()),
	}
	if last, ok := h.reports.Latest(c.Request.Context(), h.currency); ok {
		resp["last_cycle_at"] = last.FinishedAt
		resp["last_cycle_ok"] = last.Success
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) Status(c *gin.Context) {
	last, ok := h.reports.Latest(c.Request.Context(), h.currency)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"currency": h.currency, "last_cycle": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": h.currency, "last_cycle": last})
}

func (h *StatusHandler) Cycles(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	c.JSON(http.StatusOK, h.reports.Recent(c.Request.Context(), h.currency, limit))
}
