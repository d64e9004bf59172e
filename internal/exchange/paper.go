package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

type paperOffer struct {
	order  model.ExchangeOrder
	active bool
}

// PaperGateway simulates a funding wallet in memory. Offers stay ACTIVE
// until Fill or CancelOrder; funds are reserved while an offer exists.
type PaperGateway struct {
	mu        sync.Mutex
	total     map[string]decimal.Decimal
	available map[string]decimal.Decimal
	offers    map[string]*paperOffer
	ledger    []model.LedgerEntry
	books     map[string]model.MarketSnapshot
	failures  map[string]error
	calls     map[string]int
	nextID    int64
	now       func() time.Time
}

// NewPaperGateway creates a paper wallet holding balance of currency.
func NewPaperGateway(currency string, balance decimal.Decimal) *PaperGateway {
	currency = strings.ToUpper(currency)
	return &PaperGateway{
		total:     map[string]decimal.Decimal{currency: balance},
		available: map[string]decimal.Decimal{currency: balance},
		offers:    make(map[string]*paperOffer),
		books:     make(map[string]model.MarketSnapshot),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
		nextID:    1000,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (p *PaperGateway) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Deposit adds funds to the virtual wallet.
func (p *PaperGateway) Deposit(currency string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	currency = strings.ToUpper(currency)
	p.total[currency] = p.total[currency].Add(amount)
	p.available[currency] = p.available[currency].Add(amount)
}

// SetBook sets the snapshot FundingBook returns.
func (p *PaperGateway) SetBook(snap model.MarketSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[strings.ToUpper(snap.Currency)] = snap
}

// FailOn makes every call to op ("balance", "active_orders", "cancel",
// "submit", "ledger", "book") fail with err. A nil err clears it.
func (p *PaperGateway) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// Calls returns how many times op was invoked.
func (p *PaperGateway) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Fill marks an offer as taken by a borrower. It leaves the active
// listing and its funds stay lent out.
func (p *PaperGateway) Fill(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.offers[orderID]
	if !ok || !o.active {
		return fmt.Errorf("offer not active: %s", orderID)
	}
	o.active = false
	o.order.Status = "EXECUTED @ " + o.order.Rate.String()
	o.order.UpdatedAt = p.now().UTC()
	slog.Info("PAPER EXECUTION: Offer Filled", slog.String("id", orderID), slog.String("amount", o.order.Amount.String()))
	return nil
}

// Repay returns a loan's principal to the available balance.
func (p *PaperGateway) Repay(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.offers[orderID]
	if !ok || o.active {
		return fmt.Errorf("no loan for offer %s", orderID)
	}
	ccy := o.order.Currency
	p.available[ccy] = p.available[ccy].Add(o.order.Amount)
	delete(p.offers, orderID)
	return nil
}

// PayInterest credits a funding payment to the wallet and the ledger.
func (p *PaperGateway) PayInterest(orderID string, amount decimal.Decimal, at time.Time) model.LedgerEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	ccy := ""
	if o, ok := p.offers[orderID]; ok {
		ccy = o.order.Currency
	}
	if ccy == "" {
		for c := range p.total {
			ccy = c
			break
		}
	}
	p.nextID++
	e := model.LedgerEntry{
		EntryID:     strconv.FormatInt(p.nextID, 10),
		OrderID:     orderID,
		Currency:    ccy,
		Amount:      amount,
		Timestamp:   at.UTC(),
		Type:        model.LedgerTypeInterest,
		Description: "Margin Funding Payment on wallet funding #" + orderID,
	}
	p.ledger = append(p.ledger, e)
	p.total[ccy] = p.total[ccy].Add(amount)
	p.available[ccy] = p.available[ccy].Add(amount)
	return e
}

func (p *PaperGateway) enter(op string) error {
	p.calls[op]++
	return p.failures[op]
}

func (p *PaperGateway) Balance(_ context.Context, currency string) (model.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("balance"); err != nil {
		return model.Balance{}, err
	}
	currency = strings.ToUpper(currency)
	return model.Balance{Currency: currency, Total: p.total[currency], Available: p.available[currency]}, nil
}

func (p *PaperGateway) ActiveOrders(_ context.Context, currency string) ([]model.ExchangeOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("active_orders"); err != nil {
		return nil, err
	}
	currency = strings.ToUpper(currency)
	var out []model.ExchangeOrder
	for _, o := range p.offers {
		if o.active && o.order.Currency == currency {
			out = append(out, o.order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func (p *PaperGateway) CancelOrder(_ context.Context, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("cancel"); err != nil {
		return false, err
	}
	o, ok := p.offers[orderID]
	if !ok || !o.active {
		return false, apperrors.Rejection("cancel: offer not found "+orderID, nil)
	}
	ccy := o.order.Currency
	p.available[ccy] = p.available[ccy].Add(o.order.Amount)
	delete(p.offers, orderID)
	slog.Info("PAPER EXECUTION: Offer Canceled", slog.String("id", orderID))
	return true, nil
}

func (p *PaperGateway) SubmitOrder(_ context.Context, currency string, offer model.Offer) (model.SubmitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("submit"); err != nil {
		return model.SubmitResult{}, err
	}
	currency = strings.ToUpper(currency)
	if offer.Amount.Sign() <= 0 || offer.Rate.Sign() <= 0 || offer.Period <= 0 {
		return model.SubmitResult{}, apperrors.Rejection(fmt.Sprintf("submit: invalid offer %s@%s/%dd", offer.Amount, offer.Rate, offer.Period), nil)
	}
	if offer.Amount.GreaterThan(p.available[currency]) {
		return model.SubmitResult{}, apperrors.Rejection("submit: not enough balance", nil)
	}

	p.nextID++
	id := strconv.FormatInt(p.nextID, 10)
	now := p.now().UTC()
	p.available[currency] = p.available[currency].Sub(offer.Amount)
	p.offers[id] = &paperOffer{
		active: true,
		order: model.ExchangeOrder{
			OrderID:   id,
			Currency:  currency,
			Amount:    offer.Amount,
			Rate:      offer.Rate,
			Period:    offer.Period,
			Status:    "ACTIVE",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	slog.Info("PAPER EXECUTION: Offer Placed",
		slog.String("id", id),
		slog.String("amount", offer.Amount.String()),
		slog.String("rate", offer.Rate.String()),
		slog.Int("period", offer.Period))
	return model.SubmitResult{OrderID: id, Status: "ACTIVE"}, nil
}

func (p *PaperGateway) LedgerEntries(_ context.Context, currency string, since, until time.Time) ([]model.LedgerEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ledger"); err != nil {
		return nil, err
	}
	currency = strings.ToUpper(currency)
	var out []model.LedgerEntry
	for _, e := range p.ledger {
		if e.Currency != currency || e.Timestamp.Before(since) || !e.Timestamp.Before(until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *PaperGateway) FundingBook(_ context.Context, currency string) (model.MarketSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("book"); err != nil {
		return model.MarketSnapshot{}, err
	}
	currency = strings.ToUpper(currency)
	snap, ok := p.books[currency]
	if !ok {
		return model.MarketSnapshot{Currency: currency, Quotes: map[int]model.Quote{}, TakenAt: p.now().UTC()}, nil
	}
	return snap, nil
}
