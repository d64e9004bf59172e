// Package app assembles the engine from configuration. Both binaries use it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/exchange"
	"github.com/GoPolymarket/polylend/internal/market"
	"github.com/GoPolymarket/polylend/internal/notify"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/GoPolymarket/polylend/internal/service"
	"github.com/GoPolymarket/polylend/internal/strategy"
	"github.com/shopspring/decimal"
)

const guardName = "run"

// App holds every long-lived component. Close releases them in reverse order.
type App struct {
	Config     *config.Config
	Store      repository.Store
	Gateway    exchange.Gateway
	Market     *market.Source
	Strategy   strategy.Strategy
	RiskGate   *service.RiskGate
	Notifier   notify.Sink
	Journal    *service.Journal
	Reconciler *service.Reconciler
	Settlement *service.SettlementEngine
	Scheduler  *service.Scheduler

	closers []func()
}

type Options struct {
	// ReadOnly skips the journal and notification transports (inspector).
	ReadOnly bool
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.onClose(func() { _ = store.Close() })

	gw, book, closeGateway, err := OpenGateway(cfg.Exchange, cfg.Trading.Currency)
	if err != nil {
		return nil, err
	}
	a.Gateway = gw
	a.onClose(closeGateway)

	var ticker market.TickerReader
	if cfg.Exchange.TickerStream && !opts.ReadOnly {
		feed := market.NewTickerFeed(cfg.Exchange.WSURL, cfg.Trading.Currency)
		feed.Start(ctx)
		a.onClose(feed.Stop)
		ticker = feed
	}
	a.Market = market.NewSource(book, ticker, 2*time.Minute)

	if a.Strategy, err = strategy.New(cfg); err != nil {
		return nil, err
	}
	a.RiskGate = service.NewRiskGate(service.RiskLimitsFromConfig(cfg))

	var (
		guard service.RunGuard = service.NewLocalGuard()
		cache service.ReportCache
	)
	if cfg.Redis.Addr != "" {
		rc, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis, using in-process guard", "error", err)
		} else {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
			a.onClose(func() { _ = rc.Close() })
			guard = rc.Guard(guardName, cfg.Scheduler.GuardTTL)
			cache = rc.StatusCache()
		}
	}

	if opts.ReadOnly {
		a.Notifier = notify.NewSafe(notify.NewLogSink(nil))
	} else {
		sink, closer, err := notify.FromConfig(cfg.Notify)
		if err != nil {
			return nil, err
		}
		a.Notifier = sink
		a.onClose(func() { _ = closer.Close() })

		journal, err := service.NewJournal(cfg.Notify.JournalDir, cache)
		if err != nil {
			return nil, fmt.Errorf("cycle journal: %w", err)
		}
		a.Journal = journal
		a.onClose(journal.Close)
	}

	callTimeout := cfg.Exchange.Timeout() * time.Duration(cfg.Exchange.MaxRetries+1)
	var recorder service.CycleRecorder
	if a.Journal != nil {
		recorder = a.Journal
	}
	a.Reconciler = service.NewReconciler(service.ReconcilerConfig{
		Currency:          cfg.Trading.Currency,
		Period:            cfg.Trading.Period,
		Lookback:          time.Duration(cfg.Strategy.Adaptive.LookbackHours) * time.Hour,
		SubmitConcurrency: cfg.Scheduler.SubmitConcurrency,
		SubmitTimeout:     cfg.Scheduler.SubmitTimeout,
		CallTimeout:       callTimeout,
	}, a.Gateway, a.Market, a.Strategy, a.RiskGate, a.Store, a.Notifier, recorder)
	a.Settlement = service.NewSettlementEngine(a.Gateway, a.Store, a.Notifier, callTimeout)

	hour, minute, err := cfg.Scheduler.SettlementClock()
	if err != nil {
		return nil, err
	}
	a.Scheduler = service.NewScheduler(service.SchedulerConfig{
		Currency:       cfg.Trading.Currency,
		CycleInterval:  cfg.Scheduler.CycleInterval,
		SettlementHour: hour,
		SettlementMin:  minute,
		RunOnStart:     cfg.Scheduler.RunOnStart,
	}, a.Reconciler, a.Settlement, guard)

	ok = true
	return a, nil
}

func (a *App) onClose(f func()) {
	a.closers = append(a.closers, f)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// OpenStore picks the persistence backend: memory, sqlite or postgres.
func OpenStore(cfg config.DatabaseConfig) (repository.Store, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory store, nothing survives a restart")
		return repository.NewMemoryStore(), nil
	}
	db, err := repository.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database ready", "driver", cfg.Driver)
	return repository.NewGormStore(db), nil
}

// OpenGateway returns the trading gateway and the book reader for market
// data. Paper mode trades in memory against the live public book.
func OpenGateway(cfg config.ExchangeConfig, currency string) (exchange.Gateway, market.BookReader, func(), error) {
	switch cfg.Name {
	case "paper":
		public := exchange.NewPublicClient(cfg)
		paper := exchange.NewPaperGateway(currency, decimal.NewFromFloat(cfg.PaperBalance))
		logger.Warn("paper trading enabled, no real offers will be placed", "balance", cfg.PaperBalance)
		return paper, exchange.NewRetryingGateway(public, cfg.MaxRetries), public.Close, nil
	case "bitfinex":
		client, err := exchange.NewBitfinexClient(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		gw := exchange.NewRetryingGateway(client, cfg.MaxRetries)
		return gw, gw, client.Close, nil
	default:
		return nil, nil, nil, apperrors.Configuration(fmt.Sprintf("unsupported exchange %q", cfg.Name))
	}
}
