// Package exchange is the boundary to the funding market: balances,
// offers, ledgers and the public funding book.
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
)

// Gateway is everything the engine needs from the exchange. Calls are
// synchronous and may fail with apperrors TRANSIENT_IO or EXCHANGE_REJECTION.
type Gateway interface {
	Balance(ctx context.Context, currency string) (model.Balance, error)
	ActiveOrders(ctx context.Context, currency string) ([]model.ExchangeOrder, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	SubmitOrder(ctx context.Context, currency string, offer model.Offer) (model.SubmitResult, error)
	LedgerEntries(ctx context.Context, currency string, since, until time.Time) ([]model.LedgerEntry, error)
	FundingBook(ctx context.Context, currency string) (model.MarketSnapshot, error)
}

// FundingSymbol maps "USD" to "fUSD".
func FundingSymbol(currency string) string {
	return "f" + strings.ToUpper(currency)
}

// CurrencyFromSymbol maps "fUSD" back to "USD".
func CurrencyFromSymbol(symbol string) string {
	return strings.TrimPrefix(symbol, "f")
}
