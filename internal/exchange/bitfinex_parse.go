package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/market"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

// 资金挂单数组下标
const (
	offerID         = 0
	offerSymbol     = 1
	offerCreated    = 2
	offerUpdated    = 3
	offerAmount     = 4
	offerAmountOrig = 5
	offerStatus     = 10
	offerRate       = 14
	offerPeriod     = 15
)

// 账本数组下标
const (
	ledgerID          = 0
	ledgerCurrency    = 1
	ledgerMTS         = 3
	ledgerAmount      = 5
	ledgerDescription = 8
)

func parseFundingWallet(rows [][]any, currency string) (model.Balance, error) {
	currency = strings.ToUpper(currency)
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		kind, _ := row[0].(string)
		ccy, _ := row[1].(string)
		if kind != "funding" || !strings.EqualFold(ccy, currency) {
			continue
		}
		total, err := toDecimal(row[2])
		if err != nil {
			return model.Balance{}, apperrors.Inconsistency("wallet balance: " + err.Error())
		}
		// AVAILABLE_BALANCE is null until the wallet has been recalculated.
		available := total
		if row[4] != nil {
			if available, err = toDecimal(row[4]); err != nil {
				return model.Balance{}, apperrors.Inconsistency("wallet available: " + err.Error())
			}
		}
		return model.Balance{Currency: currency, Total: total, Available: available}, nil
	}
	// No funding wallet yet means nothing to lend.
	return model.Balance{Currency: currency, Total: decimal.Zero, Available: decimal.Zero}, nil
}

func parseOffer(row []any) (model.ExchangeOrder, error) {
	if len(row) <= offerPeriod {
		return model.ExchangeOrder{}, fmt.Errorf("offer has %d fields", len(row))
	}
	id, err := toInt(row[offerID])
	if err != nil {
		return model.ExchangeOrder{}, fmt.Errorf("id: %w", err)
	}
	symbol, _ := row[offerSymbol].(string)
	status, _ := row[offerStatus].(string)

	amount, err := toDecimal(row[offerAmountOrig])
	if err != nil {
		return model.ExchangeOrder{}, fmt.Errorf("amount: %w", err)
	}
	if amount.IsZero() {
		if amount, err = toDecimal(row[offerAmount]); err != nil {
			return model.ExchangeOrder{}, fmt.Errorf("amount: %w", err)
		}
	}
	rate, err := toDecimal(row[offerRate])
	if err != nil {
		return model.ExchangeOrder{}, fmt.Errorf("rate: %w", err)
	}
	period, err := toInt(row[offerPeriod])
	if err != nil {
		return model.ExchangeOrder{}, fmt.Errorf("period: %w", err)
	}
	created, _ := toInt(row[offerCreated])
	updated, _ := toInt(row[offerUpdated])

	return model.ExchangeOrder{
		OrderID:   strconv.FormatInt(id, 10),
		Currency:  CurrencyFromSymbol(symbol),
		Amount:    amount.Abs(),
		Rate:      rate,
		Period:    int(period),
		Status:    status,
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}, nil
}

type notification struct {
	Type   string
	Data   []any
	Status string
	Text   string
}

// parseNotification reads [MTS, TYPE, MESSAGE_ID, null, DATA, CODE, STATUS, TEXT].
func parseNotification(arr []any) (notification, error) {
	if len(arr) < 8 {
		return notification{}, apperrors.Inconsistency(fmt.Sprintf("notification has %d fields", len(arr)))
	}
	n := notification{}
	n.Type, _ = arr[1].(string)
	n.Data, _ = arr[4].([]any)
	n.Status, _ = arr[6].(string)
	n.Text, _ = arr[7].(string)
	return n, nil
}

func parseLedgerRow(row []any) (model.LedgerEntry, error) {
	if len(row) <= ledgerDescription {
		return model.LedgerEntry{}, fmt.Errorf("ledger row has %d fields", len(row))
	}
	id, err := toInt(row[ledgerID])
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("id: %w", err)
	}
	ccy, _ := row[ledgerCurrency].(string)
	mts, err := toInt(row[ledgerMTS])
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("mts: %w", err)
	}
	amount, err := toDecimal(row[ledgerAmount])
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("amount: %w", err)
	}
	desc, _ := row[ledgerDescription].(string)

	return model.LedgerEntry{
		EntryID:     strconv.FormatInt(id, 10),
		OrderID:     model.OrderRefFromDescription(desc),
		Currency:    strings.ToUpper(ccy),
		Amount:      amount,
		Timestamp:   time.UnixMilli(mts).UTC(),
		Description: desc,
	}, nil
}

// parseBookLevel reads [RATE, PERIOD, COUNT, AMOUNT].
func parseBookLevel(row []any) (market.Level, error) {
	if len(row) < 4 {
		return market.Level{}, fmt.Errorf("book level has %d fields", len(row))
	}
	rate, err := toDecimal(row[0])
	if err != nil {
		return market.Level{}, err
	}
	period, err := toInt(row[1])
	if err != nil {
		return market.Level{}, err
	}
	count, err := toInt(row[2])
	if err != nil {
		return market.Level{}, err
	}
	amount, err := toDecimal(row[3])
	if err != nil {
		return market.Level{}, err
	}
	return market.Level{Rate: rate, Period: int(period), Count: int(count), Amount: amount}, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	}
	return decimal.Zero, fmt.Errorf("unexpected number type %T", v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		return int64(f), err
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("unexpected integer type %T", v)
}
