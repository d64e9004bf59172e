package strategy

import (
	"fmt"
	"sort"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

type factory func(cfg config.StrategyConfig, limits Limits) Strategy

var registry = map[string]factory{
	"laddering": func(cfg config.StrategyConfig, limits Limits) Strategy {
		return newLadder(cfg.Ladder, limits)
	},
	"adaptive_laddering": func(cfg config.StrategyConfig, limits Limits) Strategy {
		return &AdaptiveLadder{
			Ladder:     *newLadder(cfg.Ladder, limits),
			Multiplier: decimal.NewFromFloat(cfg.Adaptive.VolatilityMultiplier),
		}
	},
	"spread_filler": func(cfg config.StrategyConfig, limits Limits) Strategy {
		return &SpreadFiller{
			Limits:    limits,
			Tranches:  cfg.Spread.Tranches,
			FillRatio: decimal.NewFromFloat(cfg.Spread.FillRatio),
			MinSpread: decimal.NewFromFloat(cfg.Spread.MinSpread),
		}
	},
	"market_taker": func(cfg config.StrategyConfig, limits Limits) Strategy {
		return &MarketTaker{
			Limits:      limits,
			AmountRatio: decimal.NewFromFloat(cfg.Taker.AmountRatio),
			Premium:     decimal.NewFromFloat(cfg.Taker.Premium),
		}
	},
}

func newLadder(cfg config.LadderConfig, limits Limits) *Ladder {
	return &Ladder{
		Limits:    limits,
		Tranches:  cfg.Tranches,
		BaseRate:  decimal.NewFromFloat(cfg.BaseRate),
		Increment: decimal.NewFromFloat(cfg.RateIncrement),
		MinRate:   decimal.NewFromFloat(cfg.MinRate),
	}
}

// LimitsFromConfig reads the order constraints from the trading section.
func LimitsFromConfig(cfg config.TradingConfig) Limits {
	return Limits{
		MinOrderSize: decimal.NewFromFloat(cfg.MinOrderSize),
		MaxOrderSize: decimal.NewFromFloat(cfg.MaxOrderSize),
		Period:       cfg.Period,
	}
}

// New resolves the configured strategy name once at startup.
func New(cfg *config.Config) (Strategy, error) {
	f, ok := registry[cfg.Strategy.Name]
	if !ok {
		return nil, apperrors.Configuration(fmt.Sprintf("unknown strategy %q (known: %v)", cfg.Strategy.Name, Names()))
	}
	return f(cfg.Strategy, LimitsFromConfig(cfg.Trading)), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
