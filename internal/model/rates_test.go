package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRatesFromSettlementFigures(t *testing.T) {
	total := d("10000")
	working := d("9500")
	daily := d("2.5")

	if got := UtilizationRate(working, total); !got.Equal(d("95.0")) {
		t.Fatalf("utilization = %s, want 95", got)
	}
	if got := AnnualRate(daily, total); !got.Equal(d("0.091250")) {
		t.Fatalf("annual rate = %s, want 0.09125", got)
	}
	if got := IdleBalance(total, working); !got.Equal(d("500")) {
		t.Fatalf("idle = %s, want 500", got)
	}
}

func TestRatesZeroTotal(t *testing.T) {
	if !AnnualRate(d("3"), decimal.Zero).IsZero() {
		t.Fatalf("annual rate with zero total should be zero")
	}
	if !UtilizationRate(d("3"), decimal.Zero).IsZero() {
		t.Fatalf("utilization with zero total should be zero")
	}
}

func TestWeightedAverageRate(t *testing.T) {
	orders := []LendingOrder{
		{Amount: d("100"), Rate: d("0.0002")},
		{Amount: d("300"), Rate: d("0.0004")},
	}
	if got := WeightedAverageRate(orders); !got.Equal(d("0.00035")) {
		t.Fatalf("weighted avg = %s", got)
	}
	if !WeightedAverageRate(nil).IsZero() {
		t.Fatalf("empty set should average to zero")
	}
}

func TestNewDailySummaryDerivesColumns(t *testing.T) {
	s := NewDailySummary(SummaryInput{
		Date:               time.Date(2026, 3, 4, 17, 30, 0, 0, time.UTC),
		Currency:           "USD",
		TotalBalance:       d("10000"),
		DailyEarnings:      d("2.5"),
		CumulativeEarnings: d("40"),
		WorkingOrders: []LendingOrder{
			{Amount: d("5000"), Rate: d("0.0002")},
			{Amount: d("4500"), Rate: d("0.0003")},
		},
	})
	if !s.Date.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date not normalized: %s", s.Date)
	}
	if !s.WorkingBalance.Equal(d("9500")) || !s.IdleBalance.Equal(d("500")) {
		t.Fatalf("balances = %s/%s", s.WorkingBalance, s.IdleBalance)
	}
	if s.ActiveLoansCount != 2 {
		t.Fatalf("active loans = %d", s.ActiveLoansCount)
	}
	if !s.UtilizationRate.Equal(d("95")) || !s.AnnualRate.Equal(d("0.09125")) {
		t.Fatalf("rates = %s/%s", s.UtilizationRate, s.AnnualRate)
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	got := Day(time.Date(2026, 1, 2, 3, 0, 0, 0, loc))
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Day = %s, want %s", got, want)
	}
	if _, err := ParseDay("2026-13-01"); err == nil {
		t.Fatalf("expected parse error")
	}
}
