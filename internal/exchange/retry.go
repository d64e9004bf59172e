package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/cenkalti/backoff/v5"
)

// RetryingGateway retries idempotent reads on TRANSIENT_IO errors.
// Submit and cancel are passed through untouched: a retried submit could
// place the same offer twice.
type RetryingGateway struct {
	next     Gateway
	maxTries uint
	initial  time.Duration
	max      time.Duration
	log      *slog.Logger
}

func NewRetryingGateway(next Gateway, maxRetries int) *RetryingGateway {
	tries := uint(1)
	if maxRetries > 0 {
		tries = uint(maxRetries) + 1
	}
	return &RetryingGateway{
		next:     next,
		maxTries: tries,
		initial:  200 * time.Millisecond,
		max:      5 * time.Second,
		log:      logger.Component("exchange_retry"),
	}
}

func (g *RetryingGateway) Balance(ctx context.Context, currency string) (model.Balance, error) {
	return retryRead(ctx, g, "balance", func() (model.Balance, error) {
		return g.next.Balance(ctx, currency)
	})
}

func (g *RetryingGateway) ActiveOrders(ctx context.Context, currency string) ([]model.ExchangeOrder, error) {
	return retryRead(ctx, g, "active_orders", func() ([]model.ExchangeOrder, error) {
		return g.next.ActiveOrders(ctx, currency)
	})
}

func (g *RetryingGateway) LedgerEntries(ctx context.Context, currency string, since, until time.Time) ([]model.LedgerEntry, error) {
	return retryRead(ctx, g, "ledger_entries", func() ([]model.LedgerEntry, error) {
		return g.next.LedgerEntries(ctx, currency, since, until)
	})
}

func (g *RetryingGateway) FundingBook(ctx context.Context, currency string) (model.MarketSnapshot, error) {
	return retryRead(ctx, g, "funding_book", func() (model.MarketSnapshot, error) {
		return g.next.FundingBook(ctx, currency)
	})
}

func (g *RetryingGateway) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return g.next.CancelOrder(ctx, orderID)
}

func (g *RetryingGateway) SubmitOrder(ctx context.Context, currency string, offer model.Offer) (model.SubmitResult, error) {
	return g.next.SubmitOrder(ctx, currency, offer)
}

func retryRead[T any](ctx context.Context, g *RetryingGateway, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.initial
	b.MaxInterval = g.max

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !apperrors.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		if uint(attempt) < g.maxTries {
			g.log.Warn("retrying exchange read", "op", op, "attempt", attempt, "error", err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(g.maxTries))
}
