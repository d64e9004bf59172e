package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/exchange"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/notify"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/GoPolymarket/polylend/internal/repository"
)

// SettlementEngine produces one DailySummary per (date, currency). Running
// it twice for the same date overwrites the row with the same numbers.
type SettlementEngine struct {
	gateway  exchange.Gateway
	store    repository.Store
	notifier notify.Sink
	timeout  time.Duration
	log      *slog.Logger
}

func NewSettlementEngine(gw exchange.Gateway, store repository.Store, notifier notify.Sink, timeout time.Duration) *SettlementEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SettlementEngine{
		gateway:  gw,
		store:    store,
		notifier: notifier,
		timeout:  timeout,
		log:      logger.Component("settlement"),
	}
}

// Settle computes and stores the summary for date (UTC day).
func (e *SettlementEngine) Settle(ctx context.Context, date time.Time, currency string) (model.DailySummary, error) {
	day := model.Day(date)
	currency = strings.ToUpper(currency)
	log := e.log.With("date", day.Format(model.DayLayout), "currency", currency)

	sum, err := e.settle(ctx, day, currency)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		log.Error("settlement failed", "error", err)
		e.notify(ctx, notify.Critical, fmt.Sprintf("%s settlement %s failed: %v", currency, day.Format(model.DayLayout), err))
		return model.DailySummary{}, err
	}

	metrics.SettlementsTotal.WithLabelValues("ok").Inc()
	log.Info("settlement stored",
		"total", sum.TotalBalance.String(),
		"daily_earnings", sum.DailyEarnings.String(),
		"annual_rate", sum.AnnualRate.String(),
		"utilization", sum.UtilizationRate.String(),
	)
	e.notify(ctx, notify.Info, settlementSummary(sum))
	return sum, nil
}

// Report wraps Settle for the admin API and the scheduler.
func (e *SettlementEngine) Report(ctx context.Context, date time.Time, currency string) model.SettlementReport {
	report := model.SettlementReport{Date: model.Day(date), Currency: strings.ToUpper(currency)}
	sum, err := e.Settle(ctx, date, currency)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Success = true
	report.Summary = &sum
	return report
}

func (e *SettlementEngine) settle(ctx context.Context, day time.Time, currency string) (model.DailySummary, error) {
	// 1. 拉取当天账本
	ingestor := NewLedgerIngestor(e.gateway, e.store, currency, e.timeout)
	if _, err := ingestor.IngestRange(ctx, day, day.Add(24*time.Hour)); err != nil {
		return model.DailySummary{}, apperrors.DataGap("ledger for "+day.Format(model.DayLayout)+" unavailable", err)
	}

	// 2. 实时余额
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	bal, err := e.gateway.Balance(callCtx, currency)
	cancel()
	if err != nil {
		return model.DailySummary{}, apperrors.DataGap("balance unavailable", err)
	}

	// 3. 当日与累计收益
	daily, err := e.store.SumPayments(ctx, currency, day, day)
	if err != nil {
		return model.DailySummary{}, err
	}
	cumulative, err := repository.CumulativeEarnings(ctx, e.store, currency, day)
	if err != nil {
		return model.DailySummary{}, err
	}

	// 4. 借出中的订单
	working, err := e.store.ListOrders(ctx, model.OrderFilter{
		Currency: currency,
		Statuses: []model.OrderStatus{model.StatusActive, model.StatusPartiallyFilled},
	})
	if err != nil {
		return model.DailySummary{}, err
	}

	sum := model.NewDailySummary(model.SummaryInput{
		Date:               day,
		Currency:           currency,
		TotalBalance:       bal.Total,
		DailyEarnings:      daily,
		CumulativeEarnings: cumulative,
		WorkingOrders:      working,
	})
	if err := e.store.UpsertSummary(ctx, sum); err != nil {
		return model.DailySummary{}, err
	}
	return sum, nil
}

func settlementSummary(s model.DailySummary) string {
	return fmt.Sprintf("%s settlement %s: total %s, working %s (%s%%), earned %s (cumulative %s), annual %s, loans %d",
		s.Currency, s.Date.Format(model.DayLayout),
		s.TotalBalance.StringFixed(2), s.WorkingBalance.StringFixed(2), s.UtilizationRate.StringFixed(2),
		s.DailyEarnings.StringFixed(4), s.CumulativeEarnings.StringFixed(4),
		s.AnnualRate.String(), s.ActiveLoansCount)
}

func (e *SettlementEngine) notify(ctx context.Context, severity notify.Severity, msg string) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Notify(ctx, severity, msg)
}
