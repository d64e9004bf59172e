package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the top of the funding book for one lending period.
// A zero rate means that side is empty.
type Quote struct {
	BestBid   decimal.Decimal `json:"best_bid"`
	BidAmount decimal.Decimal `json:"bid_amount"`
	BestAsk   decimal.Decimal `json:"best_ask"`
	AskAmount decimal.Decimal `json:"ask_amount"`
}

func (q Quote) HasBid() bool { return q.BestBid.Sign() > 0 }
func (q Quote) HasAsk() bool { return q.BestAsk.Sign() > 0 }

// MarketSnapshot is the market view handed to an allocation strategy.
type MarketSnapshot struct {
	Currency    string              `json:"currency"`
	Quotes      map[int]Quote       `json:"quotes"`
	FRR         decimal.Decimal     `json:"frr"`
	RecentRates []decimal.Decimal   `json:"recent_rates,omitempty"`
	TakenAt     time.Time           `json:"taken_at"`
}

func (s MarketSnapshot) Quote(period int) Quote {
	if s.Quotes == nil {
		return Quote{}
	}
	return s.Quotes[period]
}

// MarketObservation 市场利率观测记录，供自适应策略计算波动率
type MarketObservation struct {
	ID         uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Currency   string          `json:"currency" gorm:"size:16;index:idx_obs_currency_time"`
	Period     int             `json:"period"`
	BestBid    decimal.Decimal `json:"best_bid" gorm:"type:decimal(18,10)"`
	BestAsk    decimal.Decimal `json:"best_ask" gorm:"type:decimal(18,10)"`
	ObservedAt time.Time       `json:"observed_at" gorm:"index:idx_obs_currency_time"`
}

func (MarketObservation) TableName() string { return "market_observations" }
