package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/gin-gonic/gin"
)

const defaultRangeDays = 30

type LendingHandler struct {
	store    repository.Store
	currency string
	now      func() time.Time
}

func NewLendingHandler(store repository.Store, currency string) *LendingHandler {
	return &LendingHandler{store: store, currency: currency, now: func() time.Time { return time.Now().UTC() }}
}

// Orders lists recorded orders; ?status=ACTIVE,EXECUTED filters.
func (h *LendingHandler) Orders(c *gin.Context) {
	filter := model.OrderFilter{Currency: h.currency, Limit: 100}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := model.OrderStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !st.Valid() {
				c.Error(apperrors.NewInvalidRequest("unknown status " + part))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	orders, err := h.store.ListOrders(c.Request.Context(), filter)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *LendingHandler) Interest(c *gin.Context) {
	from, to, ok := h.dayRange(c)
	if !ok {
		return
	}
	payments, err := h.store.ListPayments(c.Request.Context(), h.currency, from, to)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	total, err := h.store.SumPayments(c.Request.Context(), h.currency, from, to)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":     from.Format(model.DayLayout),
		"to":       to.Format(model.DayLayout),
		"total":    total,
		"payments": payments,
	})
}

func (h *LendingHandler) Summaries(c *gin.Context) {
	from, to, ok := h.dayRange(c)
	if !ok {
		return
	}
	sums, err := h.store.ListSummaries(c.Request.Context(), h.currency, from, to)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, sums)
}

// dayRange reads ?from=&to= (YYYY-MM-DD), defaulting to the last 30 days.
func (h *LendingHandler) dayRange(c *gin.Context) (from, to time.Time, ok bool) {
	to = model.Day(h.now())
	from = to.AddDate(0, 0, -defaultRangeDays)
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = model.ParseDay(raw); err != nil {
			c.Error(apperrors.NewInvalidRequest("from: expected YYYY-MM-DD"))
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = model.ParseDay(raw); err != nil {
			c.Error(apperrors.NewInvalidRequest("to: expected YYYY-MM-DD"))
			return
		}
	}
	if to.Before(from) {
		c.Error(apperrors.NewInvalidRequest("to is before from"))
		return
	}
	return from, to, true
}
