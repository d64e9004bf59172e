package exchange

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/signer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const (
	testKey    = "key"
	testSecret = "secret"
)

// fakeBitfinex serves canned responses per path and checks signatures.
func fakeBitfinex(t *testing.T, routes map[string]func(body string) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		raw, _ := io.ReadAll(r.Body)
		if strings.HasPrefix(path, "v2/auth/") {
			nonce := r.Header.Get(signer.HeaderNonce)
			if r.Header.Get(signer.HeaderAPIKey) != testKey ||
				!signer.Verify(testSecret, path, nonce, raw, r.Header.Get(signer.HeaderSignature)) {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, `["error",10100,"apikey: invalid"]`)
				return
			}
		}
		h, ok := routes[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		status, resp := h(string(raw))
		w.WriteHeader(status)
		io.WriteString(w, resp)
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server, secret string) *BitfinexClient {
	t.Helper()
	c, err := NewBitfinexClient(config.ExchangeConfig{
		BaseURL:   srv.URL,
		PublicURL: srv.URL,
		APIKey:    testKey,
		APISecret: secret,
		TimeoutMs: 2000,
	})
	require.NoError(t, err)
	return c
}

func ok(resp string) func(string) (int, string) {
	return func(string) (int, string) { return http.StatusOK, resp }
}

func TestBalanceReadsFundingWallet(t *testing.T) {
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/auth/r/wallets": ok(`[["exchange","USD",10,0,10,null,null],["funding","USD",1500.5,0.1,300.25,null,null],["funding","BTC",1,0,null,null,null]]`),
	})
	defer srv.Close()
	c := newTestClient(t, srv, testSecret)

	b, err := c.Balance(context.Background(), "usd")
	require.NoError(t, err)
	assert.True(t, b.Total.Equal(dec("1500.5")))
	assert.True(t, b.Available.Equal(dec("300.25")))

	btc, err := c.Balance(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, btc.Available.Equal(dec("1")), "null available falls back to balance")

	eth, err := c.Balance(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, eth.Total.IsZero())
}

func TestBadSignatureIsAuthFailure(t *testing.T) {
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/auth/r/wallets": ok(`[]`),
	})
	defer srv.Close()
	c := newTestClient(t, srv, "wrong-secret")

	_, err := c.Balance(context.Background(), "USD")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthFailed), "got %v", err)
}

func TestActiveOrdersParsesOfferRows(t *testing.T) {
	row := `[41238905,"fUSD",1573912039000,1573912039000,-500,1000,"LIMIT",null,null,0,"PARTIALLY FILLED at 0.0002(500.0)",null,null,null,0.0002,2,false,false,null,false,null]`
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/auth/r/funding/offers/fUSD": ok(`[` + row + `]`),
	})
	defer srv.Close()
	c := newTestClient(t, srv, testSecret)

	orders, err := c.ActiveOrders(context.Background(), "USD")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "41238905", o.OrderID)
	assert.Equal(t, "USD", o.Currency)
	assert.True(t, o.Amount.Equal(dec("1000")))
	assert.True(t, o.Rate.Equal(dec("0.0002")))
	assert.Equal(t, 2, o.Period)
	assert.Equal(t, "PARTIALLY FILLED at 0.0002(500.0)", o.Status)
	assert.Equal(t, int64(1573912039000), o.CreatedAt.UnixMilli())
}

func TestSubmitOrderSendsStringAmounts(t *testing.T) {
	var got string
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/auth/w/funding/offer/submit": func(body string) (int, string) {
			got = body
			return http.StatusOK, `[1573912039000,"fon-req",null,null,[41238906,"fUSD",1573912039000,1573912039000,200,200,"LIMIT",null,null,0,"ACTIVE",null,null,null,0.00025,2,false,false,null,false,null],null,"SUCCESS","Submitting funding offer"]`
		},
	})
	defer srv.Close()
	c := newTestClient(t, srv, testSecret)

	res, err := c.SubmitOrder(context.Background(), "USD", model.Offer{Amount: dec("200"), Rate: dec("0.00025"), Period: 2})
	require.NoError(t, err)
	assert.Equal(t, "41238906", res.OrderID)
	assert.Equal(t, "ACTIVE", res.Status)
	assert.Contains(t, got, `"amount":"200"`)
	assert.Contains(t, got, `"rate":"0.00025"`)
	assert.Contains(t, got, `"symbol":"fUSD"`)
}

func TestSubmitOrderErrorNotificationIsRejection(t *testing.T) {
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/auth/w/funding/offer/submit": ok(`[1573912039000,"fon-req",null,null,null,null,"ERROR","Invalid offer: incorrect amount, minimum is 150"]`),
	})
	defer srv.Close()
	c := newTestClient(t, srv, testSecret)

	_, err := c.SubmitOrder(context.Background(), "USD", model.Offer{Amount: dec("10"), Rate: dec("0.0002"), Period: 2})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrExchangeRejection))
	assert.Contains(t, err.Error(), "minimum is 150")
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   apperrors.ErrorType
	}{
		{"rate limit code", http.StatusInternalServerError, `["error",10020,"ratelimit: error"]`, apperrors.ErrTransientIO},
		{"nonce", http.StatusInternalServerError, `["error",10114,"nonce: small"]`, apperrors.ErrTransientIO},
		{"too many requests", http.StatusTooManyRequests, `{"error":"ERR_RATE_LIMIT"}`, apperrors.ErrTransientIO},
		{"gateway down", http.StatusBadGateway, `<html>bad gateway</html>`, apperrors.ErrTransientIO},
		{"invalid params", http.StatusInternalServerError, `["error",10001,"Invalid offer: incorrect amount"]`, apperrors.ErrExchangeRejection},
		{"bad request", http.StatusBadRequest, `bad`, apperrors.ErrExchangeRejection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeBitfinex(t, map[string]func(string) (int, string){
				"v2/auth/r/wallets": func(string) (int, string) { return tc.status, tc.body },
			})
			defer srv.Close()
			c := newTestClient(t, srv, testSecret)

			_, err := c.Balance(context.Background(), "USD")
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestCancelOrder(t *testing.T) {
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/auth/w/funding/offer/cancel": func(body string) (int, string) {
			if !strings.Contains(body, `"id":41238905`) {
				return http.StatusOK, `[0,"foc-req",null,null,null,null,"ERROR","offer: invalid"]`
			}
			return http.StatusOK, `[0,"foc-req",null,null,[41238905,"fUSD",0,0,0,0,"LIMIT",null,null,0,"ACTIVE",null,null,null,0.0002,2,false,false,null,false,null],null,"SUCCESS","Submitted for cancellation"]`
		},
	})
	defer srv.Close()
	c := newTestClient(t, srv, testSecret)

	okCancel, err := c.CancelOrder(context.Background(), "41238905")
	require.NoError(t, err)
	assert.True(t, okCancel)

	_, err = c.CancelOrder(context.Background(), "1")
	assert.True(t, apperrors.Is(err, apperrors.ErrExchangeRejection))

	_, err = c.CancelOrder(context.Background(), "not-a-number")
	assert.Error(t, err)
}

func TestLedgerEntriesPaginatesAndReturnsOldestFirst(t *testing.T) {
	var calls atomic.Int32
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/auth/r/ledgers/USD/hist": func(body string) (int, string) {
			calls.Add(1)
			assert.Contains(t, body, `"category":28`)
			return http.StatusOK, `[[3,"USD",null,1700000300000,null,0.5,1000.5,null,"Margin Funding Payment on wallet funding #77"],[2,"USD",null,1700000200000,null,0.25,1000,null,"Margin Funding Payment on wallet funding"]]`
		},
	})
	defer srv.Close()
	c := newTestClient(t, srv, testSecret)

	since := time.UnixMilli(1700000000000)
	entries, err := c.LedgerEntries(context.Background(), "USD", since, since.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "short page ends pagination")
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[0].EntryID)
	assert.Equal(t, "3", entries[1].EntryID)
	assert.Equal(t, "77", entries[1].OrderID)
	assert.True(t, entries[1].Amount.Equal(dec("0.5")))
	assert.True(t, entries[1].IsLendingIncome())
}

func TestFundingBookAggregates(t *testing.T) {
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/book/fUSD/P0": ok(`[[0.0002,2,3,-5000],[0.00019,2,1,-100],[0.00031,2,2,800],[0.00028,2,4,1200]]`),
	})
	defer srv.Close()
	c := newTestClient(t, srv, testSecret)

	snap, err := c.FundingBook(context.Background(), "USD")
	require.NoError(t, err)
	q := snap.Quote(2)
	assert.True(t, q.BestBid.Equal(dec("0.0002")))
	assert.True(t, q.BestAsk.Equal(dec("0.00028")))
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := fakeBitfinex(t, nil)
	c := newTestClient(t, srv, testSecret)
	srv.Close()

	_, err := c.FundingBook(context.Background(), "USD")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	var appErr *apperrors.AppError
	assert.True(t, errors.As(err, &appErr))
}

func TestPublicClientCannotSign(t *testing.T) {
	srv := fakeBitfinex(t, map[string]func(string) (int, string){
		"v2/book/fUSD/P0": ok(`[[0.0002,2,3,-5000]]`),
	})
	defer srv.Close()
	c := NewPublicClient(config.ExchangeConfig{BaseURL: srv.URL, PublicURL: srv.URL})
	defer c.Close()

	_, err := c.FundingBook(context.Background(), "USD")
	require.NoError(t, err)

	_, err = c.Balance(context.Background(), "USD")
	assert.True(t, apperrors.Is(err, apperrors.ErrConfiguration))
}
