package service

import (
	"strings"

	"github.com/GoPolymarket/polylend/internal/model"
)

// exchangeStatuses is the fixed vocabulary of offer states the exchange reports.
var exchangeStatuses = map[string]model.OrderStatus{
	"ACTIVE":           model.StatusActive,
	"PARTIALLY FILLED": model.StatusPartiallyFilled,
	"EXECUTED":         model.StatusExecuted,
	"CANCELED":         model.StatusCancelled,
	"CANCELLED":        model.StatusCancelled,
	"EXPIRED":          model.StatusExpired,
	"PENDING":          model.StatusPending,
}

// MapExchangeStatus maps a raw exchange status to the local enum. Compound
// statuses like "EXECUTED @ 0.0002(100.0)" or "CANCELED was: PARTIALLY
// FILLED @ ..." are matched on their leading token. ok is false for anything
// outside the vocabulary, which maps to ERROR.
func MapExchangeStatus(raw string) (status model.OrderStatus, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexAny(s, "@(:"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), " WAS"))
	s = strings.ReplaceAll(s, "_", " ")
	if st, found := exchangeStatuses[s]; found {
		return st, true
	}
	return model.StatusError, false
}
