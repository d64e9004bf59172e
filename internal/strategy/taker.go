package strategy

import (
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/shopspring/decimal"
)

// MarketTaker lends everything in one offer at the best bid, optionally a
// fraction above it. Falls back to the flash return rate when the period
// has no bids.
type MarketTaker struct {
	Limits      Limits
	AmountRatio decimal.Decimal
	Premium     decimal.Decimal
}

func (m *MarketTaker) Name() string { return "market_taker" }

func (m *MarketTaker) Propose(capital decimal.Decimal, snap model.MarketSnapshot) []model.Offer {
	if capital.LessThan(m.Limits.MinOrderSize) {
		return nil
	}
	rate := snap.Quote(m.Limits.Period).BestBid
	if rate.Sign() <= 0 {
		rate = snap.FRR
	}
	if rate.Sign() <= 0 {
		return nil
	}
	rate = rate.Mul(decimal.NewFromInt(1).Add(m.Premium))

	ratio := m.AmountRatio
	if ratio.Sign() <= 0 || ratio.GreaterThan(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}
	amount := capital.Mul(ratio).Truncate(amountPlaces)

	return m.Limits.finalize([]model.Offer{{Amount: amount, Rate: rate, Period: m.Limits.Period}})
}
