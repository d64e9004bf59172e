package strategy

import (
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/shopspring/decimal"
)

// Ladder spreads capital over equal tranches at rising rates.
type Ladder struct {
	Limits    Limits
	Tranches  int
	BaseRate  decimal.Decimal // zero: use the best bid for the period
	Increment decimal.Decimal
	MinRate   decimal.Decimal
}

func (l *Ladder) Name() string { return "laddering" }

func (l *Ladder) Propose(capital decimal.Decimal, snap model.MarketSnapshot) []model.Offer {
	return l.build(capital, l.baseRate(snap), l.Increment)
}

func (l *Ladder) baseRate(snap model.MarketSnapshot) decimal.Decimal {
	base := l.BaseRate
	if base.Sign() <= 0 {
		base = snap.Quote(l.Limits.Period).BestBid
	}
	return decimal.Max(base, l.MinRate)
}

func (l *Ladder) build(capital, base, increment decimal.Decimal) []model.Offer {
	if l.Tranches <= 0 || base.Sign() <= 0 || capital.LessThan(l.Limits.MinOrderSize) {
		return nil
	}
	amount := trancheSize(capital, l.Tranches)
	offers := make([]model.Offer, 0, l.Tranches)
	for i := 0; i < l.Tranches; i++ {
		offers = append(offers, model.Offer{
			Amount: amount,
			Rate:   base.Add(increment.Mul(decimal.NewFromInt(int64(i)))),
			Period: l.Limits.Period,
		})
	}
	return l.Limits.finalize(offers)
}
