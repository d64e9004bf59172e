package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary 每日每币种一条结算汇总
type DailySummary struct {
	Date               time.Time       `json:"date" gorm:"primaryKey"`
	Currency           string          `json:"currency" gorm:"primaryKey;size:16"`
	TotalBalance       decimal.Decimal `json:"total_balance" gorm:"type:decimal(24,8)"`
	WorkingBalance     decimal.Decimal `json:"working_balance" gorm:"type:decimal(24,8)"` // 借出中的资金
	IdleBalance        decimal.Decimal `json:"idle_balance" gorm:"type:decimal(24,8)"`
	DailyEarnings      decimal.Decimal `json:"daily_earnings" gorm:"type:decimal(24,8)"`
	CumulativeEarnings decimal.Decimal `json:"cumulative_earnings" gorm:"type:decimal(24,8)"`
	AnnualRate         decimal.Decimal `json:"annual_rate" gorm:"type:decimal(18,6)"`
	UtilizationRate    decimal.Decimal `json:"utilization_rate" gorm:"type:decimal(8,2)"` // 百分比
	ActiveLoansCount   int             `json:"active_loans_count"`
	AvgLendingRate     decimal.Decimal `json:"avg_lending_rate" gorm:"type:decimal(18,10)"`
}

func (DailySummary) TableName() string { return "daily_summaries" }

// SummaryInput carries the raw figures a summary is derived from.
type SummaryInput struct {
	Date               time.Time
	Currency           string
	TotalBalance       decimal.Decimal
	DailyEarnings      decimal.Decimal
	CumulativeEarnings decimal.Decimal
	WorkingOrders      []LendingOrder
}

// NewDailySummary derives every computed column from in. It is the only
// constructor used by settlement so idle and rate columns cannot drift.
func NewDailySummary(in SummaryInput) DailySummary {
	working := decimal.Zero
	for _, o := range in.WorkingOrders {
		working = working.Add(o.Amount)
	}
	return DailySummary{
		Date:               Day(in.Date),
		Currency:           in.Currency,
		TotalBalance:       in.TotalBalance,
		WorkingBalance:     working,
		IdleBalance:        IdleBalance(in.TotalBalance, working),
		DailyEarnings:      in.DailyEarnings,
		CumulativeEarnings: in.CumulativeEarnings,
		AnnualRate:         AnnualRate(in.DailyEarnings, in.TotalBalance),
		UtilizationRate:    UtilizationRate(working, in.TotalBalance),
		ActiveLoansCount:   len(in.WorkingOrders),
		AvgLendingRate:     WeightedAverageRate(in.WorkingOrders),
	}
}
