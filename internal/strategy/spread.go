package strategy

import (
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/shopspring/decimal"
)

// SpreadFiller prices tranches inside the bid/ask spread of the funding
// book. Tranche i of n sits at bid + spread × FillRatio × (i+1)/n; when the
// spread is thinner than MinSpread every tranche joins the bid.
type SpreadFiller struct {
	Limits    Limits
	Tranches  int
	FillRatio decimal.Decimal
	MinSpread decimal.Decimal
}

func (s *SpreadFiller) Name() string { return "spread_filler" }

func (s *SpreadFiller) Propose(capital decimal.Decimal, snap model.MarketSnapshot) []model.Offer {
	q := snap.Quote(s.Limits.Period)
	if !q.HasBid() || !q.HasAsk() || s.Tranches <= 0 || capital.LessThan(s.Limits.MinOrderSize) {
		return nil
	}

	spread := q.BestAsk.Sub(q.BestBid)
	tight := spread.LessThan(s.MinSpread) || spread.Sign() <= 0
	n := decimal.NewFromInt(int64(s.Tranches))
	amount := trancheSize(capital, s.Tranches)

	offers := make([]model.Offer, 0, s.Tranches)
	for i := 0; i < s.Tranches; i++ {
		rate := q.BestBid
		if !tight {
			step := decimal.NewFromInt(int64(i + 1)).Div(n)
			rate = q.BestBid.Add(spread.Mul(s.FillRatio).Mul(step))
		}
		offers = append(offers, model.Offer{Amount: amount, Rate: rate, Period: s.Limits.Period})
	}
	return s.Limits.finalize(offers)
}
