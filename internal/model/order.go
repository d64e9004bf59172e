package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the local lifecycle state of a funding offer.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusActive          OrderStatus = "ACTIVE"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusExecuted        OrderStatus = "EXECUTED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusError           OrderStatus = "ERROR"
)

// IsTerminal reports whether no further exchange transition is expected.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusExecuted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsWorking reports whether the order counts towards the working balance.
func (s OrderStatus) IsWorking() bool {
	return s == StatusActive || s == StatusPartiallyFilled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPartiallyFilled, StatusExecuted,
		StatusCancelled, StatusExpired, StatusError:
		return true
	}
	return false
}

// MergeStatus returns the status to persist for an order stored as current
// when the exchange now reports observed. Terminal states are sticky.
func MergeStatus(current, observed OrderStatus) OrderStatus {
	if current.IsTerminal() {
		return current
	}
	return observed
}

// LendingOrder 是已提交到交易所的放贷挂单记录
type LendingOrder struct {
	OrderID        string          `json:"order_id" gorm:"primaryKey;size:64"`
	Currency       string          `json:"currency" gorm:"size:16;index"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(24,8)"`
	Rate           decimal.Decimal `json:"rate" gorm:"type:decimal(18,10)"`   // 日利率
	Period         int             `json:"period"`                            // 天
	Status         OrderStatus     `json:"status" gorm:"size:24;index"`
	ExchangeStatus string          `json:"exchange_status,omitempty" gorm:"size:128"` // 交易所原始状态
	StrategyName   string          `json:"strategy_name,omitempty" gorm:"size:32"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (LendingOrder) TableName() string { return "lending_orders" }

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	Currency string
	Statuses []OrderStatus
	Limit    int
}

// ExchangeOrder is an offer as the exchange reports it.
type ExchangeOrder struct {
	OrderID   string
	Currency  string
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	Period    int
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubmitResult is the exchange acknowledgement of a new offer.
type SubmitResult struct {
	OrderID string
	Status  string
}
