package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	orders       map[string]model.LendingOrder
	payments     map[string]model.InterestPayment
	summaries    map[string]model.DailySummary // Key: CURRENCY:YYYY-MM-DD
	observations []model.MarketObservation
	cursors      map[string]time.Time
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]model.LendingOrder),
		payments:  make(map[string]model.InterestPayment),
		summaries: make(map[string]model.DailySummary),
		cursors:   make(map[string]time.Time),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) UpsertOrder(_ context.Context, o model.LendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Currency = strings.ToUpper(o.Currency)
	now := s.now()
	if current, ok := s.orders[o.OrderID]; ok {
		o.Status = model.MergeStatus(current.Status, o.Status)
		o.CreatedAt = current.CreatedAt
		if o.StrategyName == "" {
			o.StrategyName = current.StrategyName
		}
	} else if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	s.orders[o.OrderID] = o
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (model.LendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.LendingOrder{}, notFound("order", orderID)
	}
	return o, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, filter model.OrderFilter) ([]model.LendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LendingOrder
	for _, o := range s.orders {
		if filter.Currency != "" && !strings.EqualFold(o.Currency, filter.Currency) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, o.Status) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].OrderID < out[j].OrderID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(list []model.OrderStatus, s model.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *MemoryStore) InsertPayment(_ context.Context, p model.InterestPayment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.LedgerID]; ok {
		return false, nil
	}
	p.Currency = strings.ToUpper(p.Currency)
	p.PaymentDate = model.Day(p.PaymentDate)
	s.payments[p.LedgerID] = p
	return true, nil
}

func (s *MemoryStore) paymentsInRange(currency string, from, to time.Time) []model.InterestPayment {
	from, to = model.Day(from), model.Day(to)
	var out []model.InterestPayment
	for _, p := range s.payments {
		if !strings.EqualFold(p.Currency, currency) || p.PaymentDate.Before(from) || p.PaymentDate.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.Before(out[j].PaidAt)
		}
		return out[i].LedgerID < out[j].LedgerID
	})
	return out
}

func (s *MemoryStore) ListPayments(_ context.Context, currency string, from, to time.Time) ([]model.InterestPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentsInRange(currency, from, to), nil
}

func (s *MemoryStore) SumPayments(_ context.Context, currency string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, p := range s.paymentsInRange(currency, from, to) {
		total = total.Add(p.Amount)
	}
	return total, nil
}

func summaryKey(currency string, date time.Time) string {
	// 按 UTC 日期分割
	return strings.ToUpper(currency) + ":" + model.Day(date).Format(model.DayLayout)
}

func (s *MemoryStore) UpsertSummary(_ context.Context, sum model.DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum.Date = model.Day(sum.Date)
	sum.Currency = strings.ToUpper(sum.Currency)
	s.summaries[summaryKey(sum.Currency, sum.Date)] = sum
	return nil
}

func (s *MemoryStore) GetSummary(_ context.Context, currency string, date time.Time) (model.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := summaryKey(currency, date)
	sum, ok := s.summaries[key]
	if !ok {
		return model.DailySummary{}, notFound("summary", key)
	}
	return sum, nil
}

func (s *MemoryStore) ListSummaries(_ context.Context, currency string, from, to time.Time) ([]model.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from, to = model.Day(from), model.Day(to)
	var out []model.DailySummary
	for _, sum := range s.summaries {
		if !strings.EqualFold(sum.Currency, currency) || sum.Date.Before(from) || sum.Date.After(to) {
			continue
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) SaveObservation(_ context.Context, o model.MarketObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = uint(len(s.observations) + 1)
	o.Currency = strings.ToUpper(o.Currency)
	o.ObservedAt = o.ObservedAt.UTC()
	s.observations = append(s.observations, o)
	return nil
}

func (s *MemoryStore) RecentObservations(_ context.Context, currency string, period int, since time.Time) ([]model.MarketObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.MarketObservation
	for _, o := range s.observations {
		if strings.EqualFold(o.Currency, currency) && o.Period == period && !o.ObservedAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (s *MemoryStore) SyncCursor(_ context.Context, name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[name], nil
}

func (s *MemoryStore) SetSyncCursor(_ context.Context, name string, position time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = position.UTC()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
