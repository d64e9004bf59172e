package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists to Postgres or SQLite through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UpsertOrder(ctx context.Context, o model.LendingOrder) error {
	o.Currency = strings.ToUpper(o.Currency)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.LendingOrder
		err := tx.Where("order_id = ?", o.OrderID).Take(&current).Error
		switch {
		case err == nil:
			o.Status = model.MergeStatus(current.Status, o.Status)
			o.CreatedAt = current.CreatedAt
			if o.StrategyName == "" {
				o.StrategyName = current.StrategyName
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "rate", "period", "status", "exchange_status", "strategy_name", "updated_at"}),
		}).Create(&o).Error
	})
	if err != nil {
		logger.Error("order_repository.upsert failed", "order_id", o.OrderID, "error", err)
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

func (s *GormStore) GetOrder(ctx context.Context, orderID string) (model.LendingOrder, error) {
	var o model.LendingOrder
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.LendingOrder{}, notFound("order", orderID)
	}
	if err != nil {
		return model.LendingOrder{}, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (s *GormStore) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.LendingOrder, error) {
	q := s.db.WithContext(ctx).Model(&model.LendingOrder{})
	if filter.Currency != "" {
		q = q.Where("currency = ?", strings.ToUpper(filter.Currency))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var orders []model.LendingOrder
	if err := q.Order("created_at desc").Order("order_id").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *GormStore) InsertPayment(ctx context.Context, p model.InterestPayment) (bool, error) {
	p.Currency = strings.ToUpper(p.Currency)
	p.PaymentDate = model.Day(p.PaymentDate)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert payment %s: %w", p.LedgerID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ListPayments(ctx context.Context, currency string, from, to time.Time) ([]model.InterestPayment, error) {
	var payments []model.InterestPayment
	err := s.db.WithContext(ctx).
		Where("currency = ? AND payment_date >= ? AND payment_date <= ?", strings.ToUpper(currency), model.Day(from), model.Day(to)).
		Order("paid_at").Order("ledger_id").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// SumPayments adds amounts in Go so SQLite and Postgres agree to the last digit.
func (s *GormStore) SumPayments(ctx context.Context, currency string, from, to time.Time) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := s.db.WithContext(ctx).Model(&model.InterestPayment{}).
		Where("currency = ? AND payment_date >= ? AND payment_date <= ?", strings.ToUpper(currency), model.Day(from), model.Day(to)).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

func (s *GormStore) UpsertSummary(ctx context.Context, sum model.DailySummary) error {
	sum.Date = model.Day(sum.Date)
	sum.Currency = strings.ToUpper(sum.Currency)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "currency"}},
		UpdateAll: true,
	}).Create(&sum).Error
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

func (s *GormStore) GetSummary(ctx context.Context, currency string, date time.Time) (model.DailySummary, error) {
	var sum model.DailySummary
	err := s.db.WithContext(ctx).
		Where("date = ? AND currency = ?", model.Day(date), strings.ToUpper(currency)).
		Take(&sum).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DailySummary{}, notFound("summary", currency+"@"+model.Day(date).Format(model.DayLayout))
	}
	if err != nil {
		return model.DailySummary{}, fmt.Errorf("failed to get summary: %w", err)
	}
	return sum, nil
}

func (s *GormStore) ListSummaries(ctx context.Context, currency string, from, to time.Time) ([]model.DailySummary, error) {
	var sums []model.DailySummary
	err := s.db.WithContext(ctx).
		Where("currency = ? AND date >= ? AND date <= ?", strings.ToUpper(currency), model.Day(from), model.Day(to)).
		Order("date").
		Find(&sums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return sums, nil
}

func (s *GormStore) SaveObservation(ctx context.Context, o model.MarketObservation) error {
	o.ID = 0
	o.Currency = strings.ToUpper(o.Currency)
	o.ObservedAt = o.ObservedAt.UTC()
	if err := s.db.WithContext(ctx).Create(&o).Error; err != nil {
		return fmt.Errorf("failed to save observation: %w", err)
	}
	return nil
}

func (s *GormStore) RecentObservations(ctx context.Context, currency string, period int, since time.Time) ([]model.MarketObservation, error) {
	var obs []model.MarketObservation
	err := s.db.WithContext(ctx).
		Where("currency = ? AND period = ? AND observed_at >= ?", strings.ToUpper(currency), period, since.UTC()).
		Order("observed_at").
		Find(&obs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	return obs, nil
}

func (s *GormStore) SyncCursor(ctx context.Context, name string) (time.Time, error) {
	var c model.SyncCursor
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cursor %s: %w", name, err)
	}
	return c.Position.UTC(), nil
}

func (s *GormStore) SetSyncCursor(ctx context.Context, name string, position time.Time) error {
	c := model.SyncCursor{Name: name, Position: position.UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("failed to set cursor %s: %w", name, err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
