package strategy

import (
	"testing"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limits(min string) Limits {
	return Limits{MinOrderSize: dec(min), Period: 2}
}

func snapshot(bid, ask string) model.MarketSnapshot {
	q := model.Quote{}
	if bid != "" {
		q.BestBid = dec(bid)
	}
	if ask != "" {
		q.BestAsk = dec(ask)
	}
	return model.MarketSnapshot{Currency: "USD", Quotes: map[int]model.Quote{2: q}}
}

func allStrategies(min string) []Strategy {
	l := limits(min)
	ladder := &Ladder{Limits: l, Tranches: 5, BaseRate: dec("0.0001"), Increment: dec("0.0001")}
	return []Strategy{
		ladder,
		&AdaptiveLadder{Ladder: *ladder, Multiplier: dec("1.5")},
		&SpreadFiller{Limits: l, Tranches: 3, FillRatio: dec("0.5"), MinSpread: dec("0.0001")},
		&MarketTaker{Limits: l, AmountRatio: dec("1")},
	}
}

func TestLadderFiveEqualTranches(t *testing.T) {
	s := &Ladder{Limits: limits("50"), Tranches: 5, BaseRate: dec("0.0002"), Increment: dec("0.00005")}

	offers := s.Propose(dec("1000"), model.MarketSnapshot{})
	require.Len(t, offers, 5)
	for i, o := range offers {
		assert.True(t, o.Amount.Equal(dec("200")), "tranche %d amount %s", i, o.Amount)
		want := dec("0.0002").Add(dec("0.00005").Mul(decimal.NewFromInt(int64(i))))
		assert.True(t, o.Rate.Equal(want), "tranche %d rate %s want %s", i, o.Rate, want)
		assert.Equal(t, 2, o.Period)
	}
}

func TestLadderBelowMinimumIsEmpty(t *testing.T) {
	s := &Ladder{Limits: limits("50"), Tranches: 5, BaseRate: dec("0.0002"), Increment: dec("0.0001")}

	assert.Empty(t, s.Propose(dec("40"), model.MarketSnapshot{}))
	assert.Empty(t, s.Propose(decimal.Zero, model.MarketSnapshot{}))
	// 120 / 5 = 24 per tranche: every tranche is under the minimum and dropped.
	assert.Empty(t, s.Propose(dec("120"), model.MarketSnapshot{}))
}

func TestLadderUsesBestBidWhenNoBaseRate(t *testing.T) {
	s := &Ladder{Limits: limits("50"), Tranches: 2, Increment: dec("0.0001")}

	offers := s.Propose(dec("500"), snapshot("0.00015", "0.0003"))
	require.Len(t, offers, 2)
	assert.True(t, offers[0].Rate.Equal(dec("0.00015")))
	assert.True(t, offers[1].Rate.Equal(dec("0.00025")))

	assert.Empty(t, s.Propose(dec("500"), snapshot("", "")), "no base rate and no bid")
}

func TestLadderCapsAtMaxOrderSize(t *testing.T) {
	l := limits("50")
	l.MaxOrderSize = dec("150")
	s := &Ladder{Limits: l, Tranches: 2, BaseRate: dec("0.0002")}

	offers := s.Propose(dec("1000"), model.MarketSnapshot{})
	require.Len(t, offers, 2)
	for _, o := range offers {
		assert.True(t, o.Amount.Equal(dec("150")))
	}
}

func TestAllStrategiesRespectCapitalAndMinimum(t *testing.T) {
	snap := snapshot("0.0002", "0.0005")
	snap.RecentRates = []decimal.Decimal{dec("0.0001"), dec("0.0002"), dec("0.0004")}
	capitals := []string{"0", "1", "49.99", "50", "99.99999999", "150", "333.33333333", "1000", "12345.6789"}

	for _, s := range allStrategies("50") {
		for _, c := range capitals {
			capital := dec(c)
			offers := s.Propose(capital, snap)
			total := model.TotalAmount(offers)
			if total.GreaterThan(capital) {
				t.Fatalf("%s: proposed %s exceeds capital %s", s.Name(), total, capital)
			}
			for _, o := range offers {
				if !o.Amount.IsZero() && o.Amount.LessThan(dec("50")) {
					t.Fatalf("%s: amount %s under minimum", s.Name(), o.Amount)
				}
				if o.Rate.Sign() <= 0 || o.Period <= 0 {
					t.Fatalf("%s: invalid offer %+v", s.Name(), o)
				}
			}
		}
	}
}

func TestAdaptiveLadderWidensWithDispersion(t *testing.T) {
	base := Ladder{Limits: limits("50"), Tranches: 3, BaseRate: dec("0.0002"), Increment: dec("0.00001")}
	s := &AdaptiveLadder{Ladder: base, Multiplier: dec("1.5")}

	calm := model.MarketSnapshot{RecentRates: []decimal.Decimal{dec("0.0002"), dec("0.00021"), dec("0.00019")}}
	wild := model.MarketSnapshot{RecentRates: []decimal.Decimal{dec("0.0001"), dec("0.0003"), dec("0.0002")}}

	calmOffers := s.Propose(dec("900"), calm)
	wildOffers := s.Propose(dec("900"), wild)
	require.Len(t, calmOffers, 3)
	require.Len(t, wildOffers, 3)

	calmStep := calmOffers[1].Rate.Sub(calmOffers[0].Rate)
	wildStep := wildOffers[1].Rate.Sub(wildOffers[0].Rate)
	assert.True(t, wildStep.GreaterThan(calmStep), "wild %s calm %s", wildStep, calmStep)

	// Not enough history: plain ladder increment.
	few := s.Propose(dec("900"), model.MarketSnapshot{RecentRates: []decimal.Decimal{dec("0.0002")}})
	require.Len(t, few, 3)
	assert.True(t, few[1].Rate.Sub(few[0].Rate).Equal(dec("0.00001")))
}

func TestSpreadFillerPricesInsideSpread(t *testing.T) {
	s := &SpreadFiller{Limits: limits("50"), Tranches: 1, FillRatio: dec("0.5"), MinSpread: dec("0.0001")}

	offers := s.Propose(dec("500"), snapshot("0.0002", "0.0006"))
	require.Len(t, offers, 1)
	assert.True(t, offers[0].Amount.Equal(dec("500")))
	assert.True(t, offers[0].Rate.Equal(dec("0.0004")), "rate %s", offers[0].Rate)

	tight := s.Propose(dec("500"), snapshot("0.0002", "0.00025"))
	require.Len(t, tight, 1)
	assert.True(t, tight[0].Rate.Equal(dec("0.0002")))

	assert.Empty(t, s.Propose(dec("500"), snapshot("0.0002", "")), "no ask side")
}

func TestSpreadFillerTranchesClimbTowardsFill(t *testing.T) {
	s := &SpreadFiller{Limits: limits("50"), Tranches: 2, FillRatio: dec("1"), MinSpread: dec("0.0001")}

	offers := s.Propose(dec("300"), snapshot("0.0002", "0.0006"))
	require.Len(t, offers, 2)
	assert.True(t, offers[0].Rate.Equal(dec("0.0004")))
	assert.True(t, offers[1].Rate.Equal(dec("0.0006")))
	assert.True(t, offers[0].Amount.Equal(dec("150")))
}

func TestMarketTakerSingleOffer(t *testing.T) {
	s := &MarketTaker{Limits: limits("50"), AmountRatio: dec("1"), Premium: dec("0.01")}

	offers := s.Propose(dec("777.5"), snapshot("0.0002", "0.0003"))
	require.Len(t, offers, 1)
	assert.True(t, offers[0].Amount.Equal(dec("777.5")))
	assert.True(t, offers[0].Rate.Equal(dec("0.000202")), "rate %s", offers[0].Rate)

	frr := model.MarketSnapshot{FRR: dec("0.00025")}
	offers = s.Propose(dec("100"), frr)
	require.Len(t, offers, 1)
	assert.True(t, offers[0].Rate.Equal(dec("0.0002525")))

	assert.Empty(t, s.Propose(dec("100"), model.MarketSnapshot{}))
}

func TestRegistry(t *testing.T) {
	cfg := &config.Config{
		Trading: config.TradingConfig{MinOrderSize: 50, Period: 2},
		Strategy: config.StrategyConfig{
			Ladder:   config.LadderConfig{Tranches: 5, RateIncrement: 0.0001},
			Adaptive: config.AdaptiveConfig{LookbackHours: 24, VolatilityMultiplier: 1.5},
			Spread:   config.SpreadConfig{Tranches: 1, FillRatio: 0.5},
			Taker:    config.TakerConfig{AmountRatio: 1},
		},
	}
	for _, name := range Names() {
		cfg.Strategy.Name = name
		s, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}

	cfg.Strategy.Name = "does_not_exist"
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfiguration))
	assert.Equal(t, []string{"adaptive_laddering", "laddering", "market_taker", "spread_filler"}, Names())
}
