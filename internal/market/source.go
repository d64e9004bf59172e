package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
)

// BookReader fetches a funding book snapshot.
type BookReader interface {
	FundingBook(ctx context.Context, currency string) (model.MarketSnapshot, error)
}

// TickerReader exposes the most recent streamed ticker.
type TickerReader interface {
	Latest(currency string) (Ticker, bool)
}

// Source builds the market snapshot for a cycle. The REST book is primary;
// a fresh streamed ticker fills in the FRR and stands in when the book
// request fails.
type Source struct {
	book       BookReader
	ticker     TickerReader
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func NewSource(book BookReader, ticker TickerReader, staleAfter time.Duration) *Source {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &Source{
		book:       book,
		ticker:     ticker,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        logger.Component("market"),
	}
}

func (s *Source) Snapshot(ctx context.Context, currency string) (model.MarketSnapshot, error) {
	snap, err := s.book.FundingBook(ctx, currency)
	t, fresh := s.freshTicker(currency)
	if err != nil {
		if !fresh {
			return model.MarketSnapshot{}, err
		}
		s.log.Warn("funding book unavailable, using streamed ticker", "currency", currency, "error", err)
		return t.Snapshot(currency), nil
	}
	if fresh {
		snap.FRR = t.FRR
	}
	return snap, nil
}

func (s *Source) freshTicker(currency string) (Ticker, bool) {
	if s.ticker == nil {
		return Ticker{}, false
	}
	t, ok := s.ticker.Latest(currency)
	if !ok || s.now().Sub(t.UpdatedAt) > s.staleAfter {
		return Ticker{}, false
	}
	return t, true
}
