package service

import (
	"fmt"
	"strings"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

type DecisionAction string

const (
	ActionAllow  DecisionAction = "ALLOW"
	ActionReduce DecisionAction = "REDUCE"
	ActionDeny   DecisionAction = "DENY"
)

// Decision is the outcome of a risk evaluation. Offers is the set to
// submit for Allow and Reduce, and empty for Deny.
type Decision struct {
	Action DecisionAction `json:"action"`
	Offers []model.Offer  `json:"offers,omitempty"`
	Check  string         `json:"check,omitempty"` // which limit fired
	Reason string         `json:"reason,omitempty"`
}

type RiskLimits struct {
	MaxExposure        decimal.Decimal // zero disables
	MinReserve         decimal.Decimal
	UtilizationCeiling decimal.Decimal // percent, zero disables
	MinOrderSize       decimal.Decimal
}

func RiskLimitsFromConfig(cfg *config.Config) RiskLimits {
	return RiskLimits{
		MaxExposure:        decimal.NewFromFloat(cfg.Risk.MaxExposure),
		MinReserve:         decimal.NewFromFloat(cfg.Risk.MinReserve),
		UtilizationCeiling: decimal.NewFromFloat(cfg.Risk.UtilizationCeiling),
		MinOrderSize:       decimal.NewFromFloat(cfg.Trading.MinOrderSize),
	}
}

// RiskGate checks proposed offers against exposure limits. It keeps no
// state between calls.
type RiskGate struct {
	limits RiskLimits
}

func NewRiskGate(limits RiskLimits) *RiskGate {
	return &RiskGate{limits: limits}
}

func (g *RiskGate) Limits() RiskLimits { return g.limits }

// Evaluate runs the checks in order. A Deny stops evaluation; a Reduce
// hands the reduced set to the next check.
func (g *RiskGate) Evaluate(exp model.Exposure, offers []model.Offer) Decision {
	decision := g.evaluate(exp, offers)
	check := decision.Check
	if check == "" {
		check = "none"
	}
	metrics.RiskDecisions.WithLabelValues(string(decision.Action), check).Inc()
	return decision
}

func (g *RiskGate) evaluate(exp model.Exposure, offers []model.Offer) Decision {
	current := cloneOffers(offers)
	if len(current) == 0 {
		return Decision{Action: ActionAllow}
	}
	var reduced []string

	// 1. 总敞口限制 (Max Exposure)
	if g.limits.MaxExposure.Sign() > 0 {
		total := model.TotalAmount(current)
		if exp.Working.Add(total).GreaterThan(g.limits.MaxExposure) {
			room := g.limits.MaxExposure.Sub(exp.Working)
			if room.LessThan(g.limits.MinOrderSize) {
				return deny("max_exposure", "exposure %s already leaves %s of %s, below minimum order %s",
					exp.Working, room, g.limits.MaxExposure, g.limits.MinOrderSize)
			}
			current = g.scaleTo(current, room)
			if len(current) == 0 {
				return deny("max_exposure", "no offer fits the remaining exposure room %s", room)
			}
			reduced = append(reduced, "max_exposure")
		}
	}

	// 2. 最低保留金 (Minimum Reserve)
	if remaining := exp.Available.Sub(model.TotalAmount(current)); remaining.LessThan(g.limits.MinReserve) {
		return deny("min_reserve", "submitting %s would leave %s idle, below reserve %s",
			model.TotalAmount(current), remaining, g.limits.MinReserve)
	}

	// 3. 资金利用率上限 (Utilization Ceiling)
	if g.limits.UtilizationCeiling.Sign() > 0 && exp.Total.Sign() > 0 {
		after := model.UtilizationRate(exp.Working.Add(model.TotalAmount(current)), exp.Total)
		if after.GreaterThan(g.limits.UtilizationCeiling) {
			room := g.limits.UtilizationCeiling.Div(decimal.NewFromInt(100)).Mul(exp.Total).Sub(exp.Working)
			if room.LessThan(g.limits.MinOrderSize) {
				return deny("utilization_ceiling", "utilization would reach %s%%, ceiling %s%%", after, g.limits.UtilizationCeiling)
			}
			current = g.scaleTo(current, room)
			if len(current) == 0 {
				return deny("utilization_ceiling", "no offer fits under the utilization ceiling %s%%", g.limits.UtilizationCeiling)
			}
			reduced = append(reduced, "utilization_ceiling")
		}
	}

	if len(reduced) > 0 {
		check := strings.Join(reduced, ",")
		return Decision{
			Action: ActionReduce,
			Offers: current,
			Check:  check,
			Reason: fmt.Sprintf("reduced by %s to %s", check, model.TotalAmount(current)),
		}
	}
	return Decision{Action: ActionAllow, Offers: current}
}

// scaleTo shrinks every offer by the same factor so the total fits room,
// then drops offers that fell under the minimum order size.
func (g *RiskGate) scaleTo(offers []model.Offer, room decimal.Decimal) []model.Offer {
	total := model.TotalAmount(offers)
	if total.Sign() <= 0 || total.LessThanOrEqual(room) {
		return offers
	}
	factor := room.Div(total)
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		amount := o.Amount.Mul(factor).Truncate(8)
		if amount.LessThan(g.limits.MinOrderSize) || amount.Sign() <= 0 {
			continue
		}
		out = append(out, model.Offer{Amount: amount, Rate: o.Rate, Period: o.Period})
	}
	return out
}

func deny(check, format string, args ...any) Decision {
	return Decision{Action: ActionDeny, Check: check, Reason: fmt.Sprintf(format, args...)}
}

func cloneOffers(offers []model.Offer) []model.Offer {
	if len(offers) == 0 {
		return nil
	}
	out := make([]model.Offer, len(offers))
	copy(out, offers)
	return out
}
