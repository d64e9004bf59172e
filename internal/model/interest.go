package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is a raw wallet movement reported by the exchange.
type LedgerEntry struct {
	EntryID     string
	OrderID     string
	Currency    string
	Amount      decimal.Decimal
	Rate        decimal.NullDecimal
	Timestamp   time.Time
	Type        string
	Description string
}

const LedgerTypeInterest = "interest"

var orderRefPattern = regexp.MustCompile(`#(\d+)`)

// OrderRefFromDescription extracts the "#123" order reference the exchange
// puts in funding payment descriptions.
func OrderRefFromDescription(desc string) string {
	m := orderRefPattern.FindStringSubmatch(desc)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// IsLendingIncome reports whether the entry is an interest payment on a loan.
func (e LedgerEntry) IsLendingIncome() bool {
	if e.Type == LedgerTypeInterest {
		return true
	}
	return strings.Contains(strings.ToLower(e.Description), "funding payment")
}

// InterestPayment 每条放贷利息入账一行，按账本条目 ID 去重
type InterestPayment struct {
	LedgerID    string              `json:"ledger_id" gorm:"primaryKey;size:64"`
	OrderID     string              `json:"order_id,omitempty" gorm:"size:64;index"` // 弱引用
	Currency    string              `json:"currency" gorm:"size:16;index"`
	Amount      decimal.Decimal     `json:"amount" gorm:"type:decimal(24,8)"` // 扣费后净额
	Rate        decimal.NullDecimal `json:"rate" gorm:"type:decimal(18,10)"`
	PaymentDate time.Time           `json:"payment_date" gorm:"index"`
	PaidAt      time.Time           `json:"paid_at"`
	Description string              `json:"description,omitempty" gorm:"size:255"`
}

func (InterestPayment) TableName() string { return "interest_payments" }

// PaymentFromLedger converts a lending-income ledger entry.
func PaymentFromLedger(e LedgerEntry) InterestPayment {
	orderID := e.OrderID
	if orderID == "" {
		orderID = OrderRefFromDescription(e.Description)
	}
	return InterestPayment{
		LedgerID:    e.EntryID,
		OrderID:     orderID,
		Currency:    e.Currency,
		Amount:      e.Amount,
		Rate:        e.Rate,
		PaymentDate: Day(e.Timestamp),
		PaidAt:      e.Timestamp.UTC(),
		Description: e.Description,
	}
}
