package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second // Keep-alive interval
)

// Ticker is the latest funding ticker for a currency.
type Ticker struct {
	Currency  string
	FRR       decimal.Decimal
	Bid       decimal.Decimal
	BidPeriod int
	BidSize   decimal.Decimal
	Ask       decimal.Decimal
	AskPeriod int
	AskSize   decimal.Decimal
	UpdatedAt time.Time
}

// Snapshot renders the ticker as a top-of-book market snapshot.
func (t Ticker) Snapshot(currency string) model.MarketSnapshot {
	quotes := make(map[int]model.Quote)
	if t.Bid.Sign() > 0 && t.BidPeriod > 0 {
		q := quotes[t.BidPeriod]
		q.BestBid, q.BidAmount = t.Bid, t.BidSize
		quotes[t.BidPeriod] = q
	}
	if t.Ask.Sign() > 0 && t.AskPeriod > 0 {
		q := quotes[t.AskPeriod]
		q.BestAsk, q.AskAmount = t.Ask, t.AskSize
		quotes[t.AskPeriod] = q
	}
	return model.MarketSnapshot{
		Currency: strings.ToUpper(currency),
		Quotes:   quotes,
		FRR:      t.FRR,
		TakenAt:  t.UpdatedAt,
	}
}

// TickerFeed keeps the latest funding ticker for each subscribed currency
// from the public websocket. It reconnects with exponential delay.
type TickerFeed struct {
	url        string
	currencies []string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.RWMutex
	channels map[int64]string // chanId -> currency
	latest   map[string]Ticker

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
	log    *slog.Logger
}

func NewTickerFeed(url string, currencies ...string) *TickerFeed {
	upper := make([]string, 0, len(currencies))
	for _, c := range currencies {
		upper = append(upper, strings.ToUpper(c))
	}
	return &TickerFeed{
		url:        url,
		currencies: upper,
		channels:   make(map[int64]string),
		latest:     make(map[string]Ticker),
		done:       make(chan struct{}),
		now:        time.Now,
		log:        logger.Component("ticker"),
	}
}

// Start launches the connection loop in a background goroutine
func (f *TickerFeed) Start(ctx context.Context) {
	f.ctx, f.cancel = context.WithCancel(ctx)
	go f.runLoop()
}

// Stop closes the feed and waits for the loop to exit.
func (f *TickerFeed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.writeMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.writeMu.Unlock()
	<-f.done
}

func (f *TickerFeed) Latest(currency string) (Ticker, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latest[strings.ToUpper(currency)]
	return t, ok
}

func (f *TickerFeed) runLoop() {
	defer close(f.done)
	delay := ReconnBaseDelay

	for {
		if f.ctx.Err() != nil {
			return
		}

		conn, err := f.connect()
		if err != nil {
			f.log.Error("Connection failed", "error", err, "retry_in", delay)
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > ReconnMaxDelay {
				delay = ReconnMaxDelay
			}
			continue
		}

		// Connected successfully
		delay = ReconnBaseDelay
		if err := f.subscribe(conn); err != nil {
			f.log.Error("Failed to subscribe", "error", err)
			conn.Close()
			continue
		}

		f.readLoop(conn)

		f.mu.Lock()
		f.channels = make(map[int64]string)
		f.mu.Unlock()
	}
}

func (f *TickerFeed) connect() (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(f.ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.url, nil)
	if err != nil {
		return nil, err
	}

	// If nothing (data, heartbeat or pong) arrives within PingPeriod + buffer, the socket is dead.
	readTimeout := PingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	f.writeMu.Lock()
	f.conn = conn
	f.writeMu.Unlock()

	go f.pinger(conn)
	return conn, nil
}

func (f *TickerFeed) pinger(conn *websocket.Conn) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.writeMu.Lock()
			if f.conn != conn {
				f.writeMu.Unlock()
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			f.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (f *TickerFeed) subscribe(conn *websocket.Conn) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	for _, c := range f.currencies {
		msg := map[string]string{
			"event":   "subscribe",
			"channel": "ticker",
			"symbol":  "f" + c,
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", c, err)
		}
	}
	return nil
}

func (f *TickerFeed) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	readTimeout := PingPeriod + 10*time.Second

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() == nil {
				f.log.Error("Read error", "error", err)
			}
			return
		}
		if err := f.handleMessage(message); err != nil {
			f.log.Debug("ignoring ticker message", "error", err)
		}
	}
}

type wsEvent struct {
	Event    string `json:"event"`
	Channel  string `json:"channel"`
	ChanID   int64  `json:"chanId"`
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Msg      string `json:"msg"`
}

func (f *TickerFeed) handleMessage(message []byte) error {
	message = bytes.TrimSpace(message)
	if len(message) == 0 {
		return nil
	}

	// Control events are objects, channel data are arrays.
	if message[0] == '{' {
		var ev wsEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			return err
		}
		switch ev.Event {
		case "subscribed":
			currency := ev.Currency
			if currency == "" {
				currency = strings.TrimPrefix(ev.Symbol, "f")
			}
			f.mu.Lock()
			f.channels[ev.ChanID] = strings.ToUpper(currency)
			f.mu.Unlock()
		case "error":
			return fmt.Errorf("ws error: %s", ev.Msg)
		}
		return nil
	}

	var frame []any
	dec := json.NewDecoder(bytes.NewReader(message))
	dec.UseNumber()
	if err := dec.Decode(&frame); err != nil {
		return err
	}
	if len(frame) < 2 {
		return nil
	}
	chanID, err := toInt64(frame[0])
	if err != nil {
		return err
	}
	fields, ok := frame[1].([]any)
	if !ok {
		// "hb" heartbeat
		return nil
	}

	f.mu.RLock()
	currency, known := f.channels[chanID]
	f.mu.RUnlock()
	if !known {
		return fmt.Errorf("unknown channel %d", chanID)
	}

	t, err := parseFundingTicker(fields)
	if err != nil {
		return err
	}
	t.Currency = currency
	t.UpdatedAt = f.now()

	f.mu.Lock()
	f.latest[currency] = t
	f.mu.Unlock()
	return nil
}

// parseFundingTicker reads [FRR, BID, BID_PERIOD, BID_SIZE, ASK, ASK_PERIOD, ASK_SIZE, ...].
func parseFundingTicker(fields []any) (Ticker, error) {
	if len(fields) < 7 {
		return Ticker{}, fmt.Errorf("funding ticker has %d fields", len(fields))
	}
	var t Ticker
	var err error
	if t.FRR, err = toDecimal(fields[0]); err != nil {
		return Ticker{}, err
	}
	if t.Bid, err = toDecimal(fields[1]); err != nil {
		return Ticker{}, err
	}
	bp, err := toInt64(fields[2])
	if err != nil {
		return Ticker{}, err
	}
	t.BidPeriod = int(bp)
	if t.BidSize, err = toDecimal(fields[3]); err != nil {
		return Ticker{}, err
	}
	if t.Ask, err = toDecimal(fields[4]); err != nil {
		return Ticker{}, err
	}
	ap, err := toInt64(fields[5])
	if err != nil {
		return Ticker{}, err
	}
	t.AskPeriod = int(ap)
	if t.AskSize, err = toDecimal(fields[6]); err != nil {
		return Ticker{}, err
	}
	return t, nil
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

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case float64:
		return int64(x), nil
	}
	return 0, fmt.Errorf("unexpected integer type %T", v)
}
