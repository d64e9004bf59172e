package model

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
)

const (
	annualRatePlaces  = 6
	utilizationPlaces = 2
	avgRatePlaces     = 8
)

// AnnualRate extrapolates one day of earnings over 365 days.
// It is zero when total is not positive.
func AnnualRate(dailyEarnings, total decimal.Decimal) decimal.Decimal {
	if total.Sign() <= 0 {
		return decimal.Zero
	}
	return dailyEarnings.Div(total).Mul(daysPerYear).Round(annualRatePlaces)
}

// UtilizationRate is working/total as a percentage, zero when total is not positive.
func UtilizationRate(working, total decimal.Decimal) decimal.Decimal {
	if total.Sign() <= 0 {
		return decimal.Zero
	}
	return working.Div(total).Mul(hundred).Round(utilizationPlaces)
}

func IdleBalance(total, working decimal.Decimal) decimal.Decimal {
	return total.Sub(working)
}

// WeightedAverageRate is the amount-weighted mean rate of orders.
func WeightedAverageRate(orders []LendingOrder) decimal.Decimal {
	amount := decimal.Zero
	weighted := decimal.Zero
	for _, o := range orders {
		amount = amount.Add(o.Amount)
		weighted = weighted.Add(o.Amount.Mul(o.Rate))
	}
	if amount.Sign() <= 0 {
		return decimal.Zero
	}
	return weighted.Div(amount).Round(avgRatePlaces)
}

const DayLayout = "2006-01-02"

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
