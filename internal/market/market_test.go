package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregateTopOfBookPerPeriod(t *testing.T) {
	levels := []Level{
		{Rate: dec("0.00020"), Period: 2, Count: 3, Amount: dec("-5000")},
		{Rate: dec("0.00025"), Period: 2, Count: 1, Amount: dec("-1000")},
		{Rate: dec("0.00030"), Period: 2, Count: 2, Amount: dec("800")},
		{Rate: dec("0.00028"), Period: 2, Count: 4, Amount: dec("1200")},
		{Rate: dec("0.00040"), Period: 30, Count: 1, Amount: dec("-300")},
		{Rate: dec("0.00050"), Period: 2, Count: 0, Amount: dec("-1")}, // removed level
	}
	snap := Aggregate("usd", levels, time.Unix(0, 0))

	assert.Equal(t, "USD", snap.Currency)
	q := snap.Quote(2)
	assert.True(t, q.BestBid.Equal(dec("0.00025")), "bid %s", q.BestBid)
	assert.True(t, q.BidAmount.Equal(dec("1000")))
	assert.True(t, q.BestAsk.Equal(dec("0.00028")), "ask %s", q.BestAsk)
	assert.True(t, snap.Quote(30).HasBid())
	assert.False(t, snap.Quote(30).HasAsk())
	assert.False(t, snap.Quote(7).HasBid())
}

func TestHandleMessageTracksChannels(t *testing.T) {
	f := NewTickerFeed("ws://unused", "usd")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	require.NoError(t, f.handleMessage([]byte(`{"event":"info","version":2}`)))
	require.NoError(t, f.handleMessage([]byte(`{"event":"subscribed","channel":"ticker","chanId":17,"symbol":"fUSD","currency":"USD"}`)))
	require.NoError(t, f.handleMessage([]byte(`[17,"hb"]`)))
	require.NoError(t, f.handleMessage([]byte(`[17,[0.0003,0.00021,2,50000,0.00029,4,12000,0.00001,0.05,0.00025,1000000,0.0004,0.0001,null,null,200000]]`)))

	tk, ok := f.Latest("USD")
	require.True(t, ok)
	assert.True(t, tk.FRR.Equal(dec("0.0003")))
	assert.True(t, tk.Bid.Equal(dec("0.00021")))
	assert.Equal(t, 2, tk.BidPeriod)
	assert.Equal(t, 4, tk.AskPeriod)
	assert.Equal(t, now, tk.UpdatedAt)

	snap := tk.Snapshot("usd")
	assert.True(t, snap.Quote(2).HasBid())
	assert.True(t, snap.Quote(4).HasAsk())

	assert.Error(t, f.handleMessage([]byte(`[99,[1,2,3,4,5,6,7]]`)), "unknown channel")
	assert.Error(t, f.handleMessage([]byte(`{"event":"error","msg":"symbol: invalid"}`)))
}

type fakeBook struct {
	snap model.MarketSnapshot
	err  error
}

func (b fakeBook) FundingBook(context.Context, string) (model.MarketSnapshot, error) {
	return b.snap, b.err
}

type fakeTicker struct {
	t  Ticker
	ok bool
}

func (f fakeTicker) Latest(string) (Ticker, bool) { return f.t, f.ok }

func TestSourcePrefersBookAndFallsBackToTicker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	book := model.MarketSnapshot{Currency: "USD", Quotes: map[int]model.Quote{2: {BestBid: dec("0.0002")}}}
	tk := Ticker{FRR: dec("0.0003"), Bid: dec("0.00022"), BidPeriod: 2, UpdatedAt: now.Add(-30 * time.Second)}

	s := NewSource(fakeBook{snap: book}, fakeTicker{t: tk, ok: true}, time.Minute)
	s.now = func() time.Time { return now }
	snap, err := s.Snapshot(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, snap.Quote(2).BestBid.Equal(dec("0.0002")))
	assert.True(t, snap.FRR.Equal(dec("0.0003")))

	s = NewSource(fakeBook{err: errors.New("503")}, fakeTicker{t: tk, ok: true}, time.Minute)
	s.now = func() time.Time { return now }
	snap, err = s.Snapshot(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, snap.Quote(2).BestBid.Equal(dec("0.00022")))

	s = NewSource(fakeBook{err: errors.New("503")}, fakeTicker{t: tk, ok: true}, 10*time.Second)
	s.now = func() time.Time { return now }
	_, err = s.Snapshot(context.Background(), "USD")
	require.Error(t, err, "stale ticker must not be used")

	s = NewSource(fakeBook{err: errors.New("503")}, nil, time.Minute)
	_, err = s.Snapshot(context.Background(), "USD")
	require.Error(t, err)
}

func TestTickerFeedAgainstServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribed","channel":"ticker","chanId":5,"symbol":"`+sub["symbol"]+`"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[5,[0.0003,0.0002,2,100,0.00031,2,100,0,0,0,0,0,0,null,null,0]]`))
		// Keep the socket open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := NewTickerFeed("ws"+strings.TrimPrefix(srv.URL, "http"), "USD")
	f.Start(context.Background())
	defer f.Stop()

	require.Eventually(t, func() bool {
		_, ok := f.Latest("USD")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	tk, _ := f.Latest("usd")
	assert.True(t, tk.Ask.Equal(dec("0.00031")))
}
