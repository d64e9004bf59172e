// Package strategy turns available capital and a market snapshot into
// funding offers. Implementations are pure: no I/O, no retained state.
package strategy

import (
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/shopspring/decimal"
)

const (
	amountPlaces = 8
	ratePlaces   = 8
)

// Strategy proposes offers for one cycle.
type Strategy interface {
	Name() string
	Propose(capital decimal.Decimal, snap model.MarketSnapshot) []model.Offer
}

// Limits are the order constraints every variant honors.
type Limits struct {
	MinOrderSize decimal.Decimal
	MaxOrderSize decimal.Decimal // zero means no cap
	Period       int
}

// trancheSize splits capital into n equal parts, truncated so that
// n × size never exceeds capital.
func trancheSize(capital decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 || capital.Sign() <= 0 {
		return decimal.Zero
	}
	q, _ := capital.QuoRem(decimal.NewFromInt(int64(n)), amountPlaces)
	return q
}

// finalize applies the shared rules: cap at the max order size, drop
// amounts under the minimum, drop non-positive rates. Amounts are never
// rounded up.
func (l Limits) finalize(offers []model.Offer) []model.Offer {
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		amount := o.Amount.Truncate(amountPlaces)
		if l.MaxOrderSize.Sign() > 0 && amount.GreaterThan(l.MaxOrderSize) {
			amount = l.MaxOrderSize
		}
		if amount.Sign() <= 0 || amount.LessThan(l.MinOrderSize) {
			continue
		}
		rate := o.Rate.Round(ratePlaces)
		if rate.Sign() <= 0 {
			continue
		}
		period := o.Period
		if period <= 0 {
			period = l.Period
		}
		out = append(out, model.Offer{Amount: amount, Rate: rate, Period: period})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
