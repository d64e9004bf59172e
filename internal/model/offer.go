package model

import "github.com/shopspring/decimal"

// Offer is a proposed loan not yet accepted by the exchange.
type Offer struct {
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
	Period int             `json:"period"`
}

// TotalAmount sums the amounts of offers.
func TotalAmount(offers []Offer) decimal.Decimal {
	total := decimal.Zero
	for _, o := range offers {
		total = total.Add(o.Amount)
	}
	return total
}

// Balance is the funding wallet as reported by the exchange.
type Balance struct {
	Currency  string          `json:"currency"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
}

// Working is the part of the wallet that is lent out or locked in offers.
func (b Balance) Working() decimal.Decimal {
	w := b.Total.Sub(b.Available)
	if w.IsNegative() {
		return decimal.Zero
	}
	return w
}

// Exposure is the per-cycle risk view. It is never persisted.
type Exposure struct {
	Total     decimal.Decimal `json:"total"`
	Working   decimal.Decimal `json:"working"`
	Available decimal.Decimal `json:"available"`
}

func ExposureFromBalance(b Balance) Exposure {
	return Exposure{Total: b.Total, Working: b.Working(), Available: b.Available}
}
