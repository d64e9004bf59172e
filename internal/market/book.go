package market

import (
	"sort"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/shopspring/decimal"
)

// Level is one row of a funding book snapshot. On Bitfinex a negative
// amount is a borrower bid and a positive amount is a lender offer.
type Level struct {
	Rate   decimal.Decimal
	Period int
	Count  int
	Amount decimal.Decimal
}

func (l Level) IsBid() bool { return l.Amount.IsNegative() }

// Aggregate reduces a book snapshot to the top of book per period.
func Aggregate(currency string, levels []Level, at time.Time) model.MarketSnapshot {
	bids := make(map[int][]Level)
	asks := make(map[int][]Level)
	for _, l := range levels {
		if l.Count == 0 || l.Amount.IsZero() || l.Rate.Sign() <= 0 {
			continue
		}
		if l.IsBid() {
			bids[l.Period] = append(bids[l.Period], l)
		} else {
			asks[l.Period] = append(asks[l.Period], l)
		}
	}

	quotes := make(map[int]model.Quote)
	for period, side := range bids {
		// Bids: High to Low
		sort.Slice(side, func(i, j int) bool { return side[i].Rate.GreaterThan(side[j].Rate) })
		q := quotes[period]
		q.BestBid = side[0].Rate
		q.BidAmount = side[0].Amount.Abs()
		quotes[period] = q
	}
	for period, side := range asks {
		// Asks: Low to High
		sort.Slice(side, func(i, j int) bool { return side[i].Rate.LessThan(side[j].Rate) })
		q := quotes[period]
		q.BestAsk = side[0].Rate
		q.AskAmount = side[0].Amount
		quotes[period] = q
	}

	return model.MarketSnapshot{
		Currency: strings.ToUpper(currency),
		Quotes:   quotes,
		TakenAt:  at.UTC(),
	}
}
