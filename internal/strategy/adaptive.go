package strategy

import (
	"math"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/shopspring/decimal"
)

// AdaptiveLadder is a Ladder whose step follows the dispersion of recently
// observed rates: increment = stddev(recent) × Multiplier. With fewer than
// two observations it behaves like the plain Ladder.
type AdaptiveLadder struct {
	Ladder
	Multiplier decimal.Decimal
}

func (a *AdaptiveLadder) Name() string { return "adaptive_laddering" }

func (a *AdaptiveLadder) Propose(capital decimal.Decimal, snap model.MarketSnapshot) []model.Offer {
	base := a.baseRate(snap)
	increment := a.Increment
	if len(snap.RecentRates) >= 2 {
		mean, stddev := meanStdDev(snap.RecentRates)
		base = decimal.Max(base, mean)
		increment = stddev.Mul(a.Multiplier)
	}
	return a.build(capital, base, increment)
}

func meanStdDev(values []decimal.Decimal) (mean, stddev decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(values)))
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	mean = sum.Div(n)

	variance := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(n)
	// decimal has no square root; float64 is precise enough for a step size.
	stddev = decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64())).Round(10)
	return mean.Round(10), stddev
}
