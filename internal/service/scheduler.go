package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
)

const (
	minCycleInterval = 10 * time.Second
	// settlementRetry is how long a settlement blocked by a running cycle waits.
	settlementRetry = time.Minute
)

type CycleRunner interface {
	RunCycle(ctx context.Context) model.CycleReport
}

type Settler interface {
	Report(ctx context.Context, date time.Time, currency string) model.SettlementReport
}

type SchedulerConfig struct {
	Currency       string
	CycleInterval  time.Duration
	SettlementHour int
	SettlementMin  int
	RunOnStart     bool
}

// Scheduler drives cycles on an interval and settlement once a day. Every
// run, scheduled or manual, goes through the same RunGuard.
type Scheduler struct {
	cfg     SchedulerConfig
	cycles  CycleRunner
	settler Settler
	guard   RunGuard
	now     func() time.Time
	log     *slog.Logger
}

func NewScheduler(cfg SchedulerConfig, cycles CycleRunner, settler Settler, guard RunGuard) *Scheduler {
	if cfg.CycleInterval < minCycleInterval {
		cfg.CycleInterval = minCycleInterval
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	return &Scheduler{
		cfg:     cfg,
		cycles:  cycles,
		settler: settler,
		guard:   guard,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.Component("scheduler"),
	}
}

// Run blocks until ctx is cancelled. A run in progress finishes its current
// state before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		"currency", s.cfg.Currency,
		"cycle_interval", s.cfg.CycleInterval,
		"settlement", fmt.Sprintf("%02d:%02d UTC", s.cfg.SettlementHour, s.cfg.SettlementMin),
	)

	if s.cfg.RunOnStart {
		s.runCycle(ctx)
	}

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	settleTimer := time.NewTimer(s.untilSettlement())
	defer settleTimer.Stop()
	var pending time.Time

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runCycle(ctx)
		case <-settleTimer.C:
			if pending.IsZero() {
				// 结算刚结束的那一天
				pending = model.Day(s.now()).AddDate(0, 0, -1)
			}
			if !s.runSettlement(ctx, pending) {
				settleTimer.Reset(settlementRetry)
				continue
			}
			pending = time.Time{}
			settleTimer.Reset(s.untilSettlement())
		}
	}
}

// NextSettlement is the next settlement_time strictly after now.
func NextSettlement(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) untilSettlement() time.Duration {
	now := s.now()
	next := NextSettlement(now, s.cfg.SettlementHour, s.cfg.SettlementMin)
	s.log.Debug("next settlement scheduled", "at", next)
	return next.Sub(now)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.TriggerCycle(ctx); err != nil {
		s.log.Warn("cycle skipped", "error", err)
	}
}

// runSettlement reports false when the guard kept it from running.
func (s *Scheduler) runSettlement(ctx context.Context, date time.Time) bool {
	if _, err := s.TriggerSettlement(ctx, date); err != nil {
		s.log.Warn("settlement postponed", "date", date.Format(model.DayLayout), "retry_in", settlementRetry, "error", err)
		return false
	}
	return true
}

// TriggerCycle runs one cycle now. It returns a CONFLICT error when another
// run holds the guard.
func (s *Scheduler) TriggerCycle(ctx context.Context) (model.CycleReport, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return model.CycleReport{}, err
	}
	defer release()
	return s.cycles.RunCycle(ctx), nil
}

// TriggerSettlement settles date now. Re-running a date overwrites its summary.
func (s *Scheduler) TriggerSettlement(ctx context.Context, date time.Time) (model.SettlementReport, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return model.SettlementReport{}, err
	}
	defer release()
	return s.settler.Report(ctx, date, s.cfg.Currency), nil
}

func (s *Scheduler) acquire(ctx context.Context) (func(), error) {
	release, ok, err := s.guard.TryAcquire(ctx)
	if err != nil {
		return nil, apperrors.Transient("run guard unavailable", err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.ErrConflict, "another run is in progress", nil)
	}
	return release, nil
}
