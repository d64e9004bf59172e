package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/exchange"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/notify"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/GoPolymarket/polylend/internal/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// MarketSource provides the market view for one cycle.
type MarketSource interface {
	Snapshot(ctx context.Context, currency string) (model.MarketSnapshot, error)
}

// CycleRecorder receives every finished cycle report.
type CycleRecorder interface {
	Record(report model.CycleReport)
}

type ReconcilerConfig struct {
	Currency          string
	Period            int           // lending period used for market observations
	Lookback          time.Duration // history window for RecentRates
	SubmitConcurrency int
	SubmitTimeout     time.Duration
	CallTimeout       time.Duration
}

// Reconciler runs the cancel → refresh → propose → gate → submit → record
// cycle. It keeps nothing between cycles; the store is the only state.
type Reconciler struct {
	cfg      ReconcilerConfig
	gateway  exchange.Gateway
	market   MarketSource
	strategy strategy.Strategy
	gate     *RiskGate
	store    repository.Store
	ledger   *LedgerIngestor
	notifier notify.Sink
	recorder CycleRecorder
	now      func() time.Time
	log      *slog.Logger
}

func NewReconciler(cfg ReconcilerConfig, gw exchange.Gateway, market MarketSource, strat strategy.Strategy,
	gate *RiskGate, store repository.Store, notifier notify.Sink, recorder CycleRecorder) *Reconciler {
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if cfg.SubmitConcurrency <= 0 {
		cfg.SubmitConcurrency = 4
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	return &Reconciler{
		cfg:      cfg,
		gateway:  gw,
		market:   market,
		strategy: strat,
		gate:     gate,
		store:    store,
		ledger:   NewLedgerIngestor(gw, store, cfg.Currency, cfg.CallTimeout),
		notifier: notifier,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("reconciler"),
	}
}

// cycle carries the transient view of one run.
type cycle struct {
	report    model.CycleReport
	log       *slog.Logger
	cancelled []model.ExchangeOrder
	// cancel calls that errored; the exchange may still have dropped them
	uncertain map[string]bool
	balance   model.Balance
	snapshot  model.MarketSnapshot
	offers    []model.Offer
	placed    []placedOffer
}

type placedOffer struct {
	offer  model.Offer
	result model.SubmitResult
}

var errCycleCancelled = errors.New("cycle cancelled by shutdown")

// RunCycle executes one full cycle and always returns its report. Shutdown
// is honored between states; an exchange call in flight is allowed to finish.
func (r *Reconciler) RunCycle(ctx context.Context) model.CycleReport {
	start := r.now()
	c := &cycle{
		report: model.CycleReport{
			ID:           uuid.NewString(),
			Currency:     r.cfg.Currency,
			Strategy:     r.strategy.Name(),
			StartedAt:    start,
			ReachedState: model.StateIdle,
			Total:        decimal.Zero,
			Available:    decimal.Zero,
			PlacedAmount: decimal.Zero,
		},
	}
	c.log = r.log.With("cycle_id", c.report.ID, "currency", r.cfg.Currency)
	c.log.Info("cycle started", "strategy", c.report.Strategy)

	steps := []struct {
		state model.CycleState
		run   func(context.Context, *cycle) (bool, error)
	}{
		{model.StateCancelling, r.cancelling},
		{model.StateRefreshing, r.refreshing},
		{model.StateProposing, r.proposing},
		{model.StateGating, r.gating},
		{model.StateSubmitting, r.submitting},
		{model.StateRecording, r.recording},
	}

	var cycleErr error
	skipToRecording := false
	submitted := false
	for _, step := range steps {
		if skipToRecording && step.state != model.StateRecording {
			continue
		}
		stepCtx := ctx
		// Offers the exchange accepted are recorded even on shutdown.
		detached := step.state == model.StateRecording && submitted
		if detached {
			stepCtx = context.WithoutCancel(ctx)
		}
		if ctx.Err() != nil {
			cycleErr = errCycleCancelled
			if !detached {
				break
			}
		}
		c.report.ReachedState = step.state
		skip, err := step.run(stepCtx, c)
		if err != nil {
			cycleErr = err
			break
		}
		if step.state == model.StateSubmitting {
			submitted = true
		}
		if skip {
			skipToRecording = true
		}
	}

	return r.finish(ctx, c, cycleErr)
}

// call gives an exchange call its own deadline, detached from shutdown.
func (r *Reconciler) call(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (r *Reconciler) warn(c *cycle, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.report.Warnings = append(c.report.Warnings, msg)
	c.log.Warn(msg)
}

func (r *Reconciler) cancelling(ctx context.Context, c *cycle) (bool, error) {
	callCtx, cancel := r.call(ctx, r.cfg.CallTimeout)
	active, err := r.gateway.ActiveOrders(callCtx, r.cfg.Currency)
	cancel()
	if err != nil {
		// Anything left over is picked up by the next cycle.
		r.warn(c, "listing active offers failed: %v", err)
		return false, nil
	}

	for _, o := range active {
		c.report.CancelRequested++
		callCtx, cancel := r.call(ctx, r.cfg.CallTimeout)
		ok, err := r.gateway.CancelOrder(callCtx, o.OrderID)
		cancel()
		if err != nil || !ok {
			c.log.Warn("cancel failed", "order_id", o.OrderID, "error", err)
			if err != nil {
				if c.uncertain == nil {
					c.uncertain = make(map[string]bool)
				}
				c.uncertain[o.OrderID] = true
			}
			continue
		}
		c.report.CancelSucceeded++
		c.cancelled = append(c.cancelled, o)
	}
	if c.report.CancelSucceeded < c.report.CancelRequested {
		r.warn(c, "cancelled %d/%d offers", c.report.CancelSucceeded, c.report.CancelRequested)
	}
	return false, nil
}

func (r *Reconciler) refreshing(ctx context.Context, c *cycle) (bool, error) {
	callCtx, cancel := r.call(ctx, r.cfg.CallTimeout)
	defer cancel()
	bal, err := r.gateway.Balance(callCtx, r.cfg.Currency)
	if err != nil {
		return false, fmt.Errorf("balance: %w", err)
	}
	c.balance = bal
	c.report.Total = bal.Total
	c.report.Available = bal.Available
	return false, nil
}

func (r *Reconciler) proposing(ctx context.Context, c *cycle) (bool, error) {
	callCtx, cancel := r.call(ctx, r.cfg.CallTimeout)
	snap, err := r.market.Snapshot(callCtx, r.cfg.Currency)
	cancel()
	if err != nil {
		return false, fmt.Errorf("market snapshot: %w", err)
	}
	r.observe(ctx, c, &snap)
	c.snapshot = snap

	capital := c.balance.Available.Sub(r.gate.Limits().MinReserve)
	if capital.IsNegative() {
		capital = decimal.Zero
	}
	c.offers = r.strategy.Propose(capital, snap)
	c.report.Proposed = len(c.offers)
	c.log.Info("offers proposed", "capital", capital.String(), "count", len(c.offers), "amount", model.TotalAmount(c.offers).String())

	if len(c.offers) == 0 {
		return true, nil
	}
	return false, nil
}

// observe logs the top of book and loads the recent history strategies read.
func (r *Reconciler) observe(ctx context.Context, c *cycle, snap *model.MarketSnapshot) {
	q := snap.Quote(r.cfg.Period)
	if q.HasBid() || q.HasAsk() {
		obs := model.MarketObservation{
			Currency:   r.cfg.Currency,
			Period:     r.cfg.Period,
			BestBid:    q.BestBid,
			BestAsk:    q.BestAsk,
			ObservedAt: r.now(),
		}
		if err := r.store.SaveObservation(ctx, obs); err != nil {
			c.log.Warn("saving market observation failed", "error", err)
		}
	}

	history, err := r.store.RecentObservations(ctx, r.cfg.Currency, r.cfg.Period, r.now().Add(-r.cfg.Lookback))
	if err != nil {
		c.log.Warn("loading market history failed", "error", err)
		return
	}
	rates := make([]decimal.Decimal, 0, len(history))
	for _, h := range history {
		if h.BestBid.Sign() > 0 {
			rates = append(rates, h.BestBid)
		}
	}
	snap.RecentRates = rates
}

func (r *Reconciler) gating(ctx context.Context, c *cycle) (bool, error) {
	decision := r.gate.Evaluate(model.ExposureFromBalance(c.balance), c.offers)
	c.report.Decision = string(decision.Action)
	c.report.DecisionReason = decision.Reason

	switch decision.Action {
	case ActionDeny:
		r.notify(ctx, notify.Warning, fmt.Sprintf("%s risk gate denied %d offers: %s", r.cfg.Currency, len(c.offers), decision.Reason))
		c.offers = nil
		return true, nil
	case ActionReduce:
		r.notify(ctx, notify.Warning, fmt.Sprintf("%s risk gate reduced offers %s -> %s: %s", r.cfg.Currency,
			model.TotalAmount(c.offers).String(), model.TotalAmount(decision.Offers).String(), decision.Reason))
	}
	c.offers = decision.Offers
	return false, nil
}

func (r *Reconciler) submitting(ctx context.Context, c *cycle) (bool, error) {
	results := make([]*placedOffer, len(c.offers))
	var g errgroup.Group
	g.SetLimit(r.cfg.SubmitConcurrency)

	for i, offer := range c.offers {
		g.Go(func() error {
			callCtx, cancel := r.call(ctx, r.cfg.SubmitTimeout)
			defer cancel()
			res, err := r.gateway.SubmitOrder(callCtx, r.cfg.Currency, offer)
			if err != nil {
				metrics.OffersSubmitted.WithLabelValues("failed").Inc()
				c.log.Warn("offer rejected", "amount", offer.Amount.String(), "rate", offer.Rate.String(), "period", offer.Period, "error", err)
				return nil
			}
			metrics.OffersSubmitted.WithLabelValues("ok").Inc()
			results[i] = &placedOffer{offer: offer, result: res}
			return nil
		})
	}
	_ = g.Wait()

	c.report.Submitted = len(c.offers)
	for _, p := range results {
		if p == nil {
			continue
		}
		c.placed = append(c.placed, *p)
		c.report.SubmitSucceeded++
		c.report.PlacedAmount = c.report.PlacedAmount.Add(p.offer.Amount)
	}
	if c.report.SubmitSucceeded < c.report.Submitted {
		r.warn(c, "submitted %d/%d offers", c.report.SubmitSucceeded, c.report.Submitted)
	}
	return false, nil
}

// observation is one exchange-reported order state to be recorded.
type observation struct {
	order    model.LendingOrder
	raw      string
	forceSet bool // status decided locally, not mapped from raw
}

func (r *Reconciler) recording(ctx context.Context, c *cycle) (bool, error) {
	observed := make(map[string]observation)
	var order []string
	put := func(o observation) {
		if _, seen := observed[o.order.OrderID]; !seen {
			order = append(order, o.order.OrderID)
		}
		observed[o.order.OrderID] = o
	}

	// Later sources win: our cancellations, then our submissions, then the
	// exchange's current listing.
	for _, o := range c.cancelled {
		put(observation{order: r.fromExchange(o), raw: o.Status, forceSet: true})
	}
	for _, p := range c.placed {
		put(observation{
			order: model.LendingOrder{
				OrderID:      p.result.OrderID,
				Currency:     r.cfg.Currency,
				Amount:       p.offer.Amount,
				Rate:         p.offer.Rate,
				Period:       p.offer.Period,
				StrategyName: r.strategy.Name(),
			},
			raw: p.result.Status,
		})
	}

	callCtx, cancel := r.call(ctx, r.cfg.CallTimeout)
	listing, listErr := r.gateway.ActiveOrders(callCtx, r.cfg.Currency)
	cancel()
	listed := make(map[string]bool, len(listing))
	if listErr != nil {
		r.warn(c, "refreshing active offers failed, fills not detected this cycle: %v", listErr)
	}
	for _, o := range listing {
		if listed[o.OrderID] {
			c.report.Inconsistencies++
			r.notify(ctx, notify.Warning, fmt.Sprintf("%s duplicate offer id %s in exchange listing, keeping first", r.cfg.Currency, o.OrderID))
			continue
		}
		listed[o.OrderID] = true
		lo := r.fromExchange(o)
		if prev, ok := observed[o.OrderID]; ok && prev.order.StrategyName != "" {
			lo.StrategyName = prev.order.StrategyName
		}
		put(observation{order: lo, raw: o.Status})
	}

	for _, id := range order {
		obs := observed[id]
		lo := obs.order
		lo.ExchangeStatus = obs.raw
		if obs.forceSet && !listed[id] {
			lo.Status = model.StatusCancelled
		} else {
			status, known := MapExchangeStatus(obs.raw)
			lo.Status = status
			if !known {
				c.report.Inconsistencies++
				r.notify(ctx, notify.Warning, fmt.Sprintf("%s offer %s has unknown exchange status %q, recorded as ERROR", r.cfg.Currency, id, obs.raw))
			}
		}
		if err := r.store.UpsertOrder(ctx, lo); err != nil {
			return false, fmt.Errorf("record order %s: %w", id, err)
		}
		c.report.Recorded++
	}

	if listErr == nil {
		if err := r.markFilled(ctx, c, observed); err != nil {
			return false, err
		}
	}

	inserted, err := r.ledger.Sync(ctx, r.now())
	c.report.NewPayments = inserted
	if err != nil {
		return false, fmt.Errorf("ledger sync: %w", err)
	}
	return false, nil
}

// markFilled treats a working order that left the exchange listing without
// being cancelled by us as taken by a borrower. An order whose cancel call
// errored could be either, so it is recorded as ERROR instead.
func (r *Reconciler) markFilled(ctx context.Context, c *cycle, observed map[string]observation) error {
	open, err := r.store.ListOrders(ctx, model.OrderFilter{
		Currency: r.cfg.Currency,
		Statuses: []model.OrderStatus{model.StatusPending, model.StatusActive, model.StatusPartiallyFilled},
	})
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}
	for _, o := range open {
		if _, seen := observed[o.OrderID]; seen {
			continue
		}
		o.Status = model.StatusExecuted
		if c.uncertain[o.OrderID] {
			o.Status = model.StatusError
			c.report.Inconsistencies++
			r.notify(ctx, notify.Warning, fmt.Sprintf("%s offer %s left the book after a failed cancel, recorded as ERROR", r.cfg.Currency, o.OrderID))
		}
		if err := r.store.UpsertOrder(ctx, o); err != nil {
			return fmt.Errorf("record order %s: %w", o.OrderID, err)
		}
		c.report.Recorded++
		c.log.Info("offer left the book", "order_id", o.OrderID, "status", o.Status)
	}
	return nil
}

func (r *Reconciler) fromExchange(o model.ExchangeOrder) model.LendingOrder {
	currency := o.Currency
	if currency == "" {
		currency = r.cfg.Currency
	}
	return model.LendingOrder{
		OrderID:   o.OrderID,
		Currency:  currency,
		Amount:    o.Amount,
		Rate:      o.Rate,
		Period:    o.Period,
		CreatedAt: o.CreatedAt,
	}
}

func (r *Reconciler) finish(ctx context.Context, c *cycle, err error) model.CycleReport {
	c.report.FinishedAt = r.now()
	c.report.Success = err == nil
	duration := c.report.FinishedAt.Sub(c.report.StartedAt)
	metrics.CycleDuration.Observe(duration.Seconds())

	switch {
	case err != nil:
		c.report.Error = err.Error()
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		c.log.Error("cycle aborted", "state", c.report.ReachedState, "error", err)
		r.notify(ctx, notify.Critical, fmt.Sprintf("%s cycle aborted in %s: %v", r.cfg.Currency, c.report.ReachedState, err))
	case c.report.Degraded():
		metrics.CyclesTotal.WithLabelValues("degraded").Inc()
		c.log.Warn("cycle finished with warnings", "warnings", c.report.Warnings, "inconsistencies", c.report.Inconsistencies)
		r.notify(ctx, notify.Warning, cycleSummary(c.report))
	default:
		metrics.CyclesTotal.WithLabelValues("ok").Inc()
		c.log.Info("cycle finished", "submitted", c.report.SubmitSucceeded, "placed", c.report.PlacedAmount.String(), "duration", duration)
		r.notify(ctx, notify.Info, cycleSummary(c.report))
	}

	if r.recorder != nil {
		r.recorder.Record(c.report)
	}
	return c.report
}

func cycleSummary(r model.CycleReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s cycle %s: available %s/%s", r.Currency, r.Strategy, r.Available.StringFixed(2), r.Total.StringFixed(2))
	fmt.Fprintf(&b, ", cancelled %d/%d", r.CancelSucceeded, r.CancelRequested)
	fmt.Fprintf(&b, ", proposed %d", r.Proposed)
	if r.Decision != "" && r.Decision != string(ActionAllow) {
		fmt.Fprintf(&b, " (%s)", r.Decision)
	}
	fmt.Fprintf(&b, ", placed %d/%d = %s", r.SubmitSucceeded, r.Submitted, r.PlacedAmount.StringFixed(2))
	fmt.Fprintf(&b, ", recorded %d, new payments %d", r.Recorded, r.NewPayments)
	if r.Inconsistencies > 0 {
		fmt.Fprintf(&b, ", inconsistencies %d", r.Inconsistencies)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, ", warnings: %s", strings.Join(r.Warnings, "; "))
	}
	return b.String()
}

func (r *Reconciler) notify(ctx context.Context, severity notify.Severity, msg string) {
	if r.notifier == nil {
		return
	}
	_ = r.notifier.Notify(context.WithoutCancel(ctx), severity, msg)
}
