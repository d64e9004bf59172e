package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

// Store is the durable state of the bot. Orders are keyed by exchange id,
// payments by ledger entry id and summaries by (date, currency).
type Store interface {
	// UpsertOrder inserts or updates by order id. A stored terminal
	// status is kept even when o carries a non-terminal one.
	UpsertOrder(ctx context.Context, o model.LendingOrder) error
	GetOrder(ctx context.Context, orderID string) (model.LendingOrder, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.LendingOrder, error)

	// InsertPayment is insert-if-absent. It reports whether a row was written.
	InsertPayment(ctx context.Context, p model.InterestPayment) (bool, error)
	// ListPayments returns payments whose PaymentDate is in [from, to], oldest first.
	ListPayments(ctx context.Context, currency string, from, to time.Time) ([]model.InterestPayment, error)
	SumPayments(ctx context.Context, currency string, from, to time.Time) (decimal.Decimal, error)

	UpsertSummary(ctx context.Context, s model.DailySummary) error
	GetSummary(ctx context.Context, currency string, date time.Time) (model.DailySummary, error)
	ListSummaries(ctx context.Context, currency string, from, to time.Time) ([]model.DailySummary, error)

	SaveObservation(ctx context.Context, o model.MarketObservation) error
	RecentObservations(ctx context.Context, currency string, period int, since time.Time) ([]model.MarketObservation, error)

	// SyncCursor returns the zero time when the cursor was never set.
	SyncCursor(ctx context.Context, name string) (time.Time, error)
	SetSyncCursor(ctx context.Context, name string, position time.Time) error

	Close() error
}

func notFound(what, key string) error {
	return apperrors.New(apperrors.ErrNotFound, what+" not found: "+key, nil)
}

// IsNotFound reports a missing row.
func IsNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}

// allTime is the lower bound used for cumulative sums.
var allTime = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// CumulativeEarnings sums every payment up to and including date.
func CumulativeEarnings(ctx context.Context, s Store, currency string, date time.Time) (decimal.Decimal, error) {
	return s.SumPayments(ctx, currency, allTime, model.Day(date))
}
