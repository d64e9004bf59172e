package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/exchange"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/repository"
)

const (
	// ledgerOverlap re-reads the last day on every sync; inserts are idempotent.
	ledgerOverlap = 24 * time.Hour
	// initialLedgerLookback bounds the first sync when no cursor exists.
	initialLedgerLookback = 7 * 24 * time.Hour
)

// LedgerIngestor turns funding payments from the exchange ledger into
// InterestPayment rows, deduplicated by ledger entry id.
type LedgerIngestor struct {
	gateway  exchange.Gateway
	store    repository.Store
	currency string
	timeout  time.Duration
	log      *slog.Logger
}

func NewLedgerIngestor(gw exchange.Gateway, store repository.Store, currency string, timeout time.Duration) *LedgerIngestor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LedgerIngestor{
		gateway:  gw,
		store:    store,
		currency: strings.ToUpper(currency),
		timeout:  timeout,
		log:      logger.Component("ledger"),
	}
}

// Sync ingests everything since the stored cursor (minus the overlap) up to
// until, then advances the cursor. On failure the cursor is left alone.
func (l *LedgerIngestor) Sync(ctx context.Context, until time.Time) (int, error) {
	name := model.LedgerCursorName(l.currency)
	cursor, err := l.store.SyncCursor(ctx, name)
	if err != nil {
		return 0, err
	}
	since := until.Add(-initialLedgerLookback)
	if !cursor.IsZero() {
		since = cursor.Add(-ledgerOverlap)
	}

	inserted, err := l.IngestRange(ctx, since, until)
	if err != nil {
		return inserted, err
	}
	if err := l.store.SetSyncCursor(ctx, name, until); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// IngestRange ingests [since, until) without touching the cursor.
func (l *LedgerIngestor) IngestRange(ctx context.Context, since, until time.Time) (int, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	entries, err := l.gateway.LedgerEntries(callCtx, l.currency, since, until)
	cancel()
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, e := range entries {
		if !e.IsLendingIncome() {
			continue
		}
		if e.Currency == "" {
			e.Currency = l.currency
		}
		ok, err := l.store.InsertPayment(ctx, model.PaymentFromLedger(e))
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	if inserted > 0 {
		l.log.Info("interest payments ingested", "currency", l.currency, "new", inserted, "seen", len(entries))
	}
	return inserted, nil
}
