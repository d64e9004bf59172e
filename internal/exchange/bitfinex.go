package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/market"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/GoPolymarket/polylend/internal/signer"
	"golang.org/x/time/rate"
)

const (
	ledgerCategoryInterest = 28
	ledgerPageLimit        = 2500
	ledgerMaxPages         = 20
	bookLength             = 100

	errCodeRateLimit = 10020
	errCodeAuth      = 10100
	errCodeNonce     = 10114
)

// BitfinexClient talks to the Bitfinex v2 REST API.
type BitfinexClient struct {
	baseURL   string
	publicURL string
	http      *http.Client
	signer    *signer.Signer
	limiter   *rate.Limiter
	log       *slog.Logger
}

type Option func(*BitfinexClient)

func WithHTTPClient(c *http.Client) Option {
	return func(b *BitfinexClient) { b.http = c }
}

func NewBitfinexClient(cfg config.ExchangeConfig, opts ...Option) (*BitfinexClient, error) {
	s, err := signer.NewSigner(cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, apperrors.Configuration("bitfinex credentials: " + err.Error())
	}
	c := newClient(cfg, opts...)
	c.signer = s
	return c, nil
}

// NewPublicClient can only call public endpoints (FundingBook). Paper
// trading uses it for real market data.
func NewPublicClient(cfg config.ExchangeConfig, opts ...Option) *BitfinexClient {
	return newClient(cfg, opts...)
}

func newClient(cfg config.ExchangeConfig, opts ...Option) *BitfinexClient {
	limit := rate.Limit(cfg.RateLimitPerSec)
	if cfg.RateLimitPerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &BitfinexClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		log:       logger.Component("bitfinex"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close wipes the credentials.
func (c *BitfinexClient) Close() {
	if c.signer != nil {
		c.signer.Wipe()
	}
}

func (c *BitfinexClient) Balance(ctx context.Context, currency string) (model.Balance, error) {
	var rows [][]any
	if err := c.authPost(ctx, "v2/auth/r/wallets", nil, &rows); err != nil {
		return model.Balance{}, err
	}
	return parseFundingWallet(rows, currency)
}

func (c *BitfinexClient) ActiveOrders(ctx context.Context, currency string) ([]model.ExchangeOrder, error) {
	var rows [][]any
	path := "v2/auth/r/funding/offers/" + FundingSymbol(currency)
	if err := c.authPost(ctx, path, nil, &rows); err != nil {
		return nil, err
	}
	orders := make([]model.ExchangeOrder, 0, len(rows))
	for _, row := range rows {
		o, err := parseOffer(row)
		if err != nil {
			return nil, apperrors.Inconsistency("malformed offer row: " + err.Error())
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (c *BitfinexClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, apperrors.Rejection("cancel: invalid offer id "+orderID, err)
	}
	var note []any
	if err := c.authPost(ctx, "v2/auth/w/funding/offer/cancel", map[string]any{"id": id}, &note); err != nil {
		return false, err
	}
	n, err := parseNotification(note)
	if err != nil {
		return false, err
	}
	if n.Status != "SUCCESS" {
		return false, apperrors.Rejection(fmt.Sprintf("cancel %s: %s %s", orderID, n.Status, n.Text), nil)
	}
	return true, nil
}

func (c *BitfinexClient) SubmitOrder(ctx context.Context, currency string, offer model.Offer) (model.SubmitResult, error) {
	body := map[string]any{
		"type":   "LIMIT",
		"symbol": FundingSymbol(currency),
		"amount": offer.Amount.String(),
		"rate":   offer.Rate.String(),
		"period": offer.Period,
		"flags":  0,
	}
	var note []any
	if err := c.authPost(ctx, "v2/auth/w/funding/offer/submit", body, &note); err != nil {
		return model.SubmitResult{}, err
	}
	n, err := parseNotification(note)
	if err != nil {
		return model.SubmitResult{}, err
	}
	if n.Status != "SUCCESS" {
		return model.SubmitResult{}, apperrors.Rejection(fmt.Sprintf("submit: %s %s", n.Status, n.Text), nil)
	}
	o, err := parseOffer(n.Data)
	if err != nil {
		return model.SubmitResult{}, apperrors.Inconsistency("malformed submit ack: " + err.Error())
	}
	return model.SubmitResult{OrderID: o.OrderID, Status: o.Status}, nil
}

// LedgerEntries returns funding payments in [since, until), oldest first.
// The API pages newest first, so pages walk backwards from until.
func (c *BitfinexClient) LedgerEntries(ctx context.Context, currency string, since, until time.Time) ([]model.LedgerEntry, error) {
	path := "v2/auth/r/ledgers/" + strings.ToUpper(currency) + "/hist"
	end := until.UnixMilli() - 1
	var entries []model.LedgerEntry
	seen := make(map[string]bool)

	for page := 0; page < ledgerMaxPages; page++ {
		body := map[string]any{
			"start":    since.UnixMilli(),
			"end":      end,
			"limit":    ledgerPageLimit,
			"category": ledgerCategoryInterest,
		}
		var rows [][]any
		if err := c.authPost(ctx, path, body, &rows); err != nil {
			return nil, err
		}
		oldest := end
		for _, row := range rows {
			e, err := parseLedgerRow(row)
			if err != nil {
				return nil, apperrors.Inconsistency("malformed ledger row: " + err.Error())
			}
			if ms := e.Timestamp.UnixMilli(); ms < oldest {
				oldest = ms
			}
			if seen[e.EntryID] {
				continue
			}
			seen[e.EntryID] = true
			e.Type = model.LedgerTypeInterest
			entries = append(entries, e)
		}
		if len(rows) < ledgerPageLimit {
			break
		}
		end = oldest - 1
	}

	// oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (c *BitfinexClient) FundingBook(ctx context.Context, currency string) (model.MarketSnapshot, error) {
	path := "v2/book/" + FundingSymbol(currency) + "/P0"
	query := url.Values{"len": {strconv.Itoa(bookLength)}}
	var rows [][]any
	if err := c.publicGet(ctx, path, query, &rows); err != nil {
		return model.MarketSnapshot{}, err
	}
	levels := make([]market.Level, 0, len(rows))
	for _, row := range rows {
		l, err := parseBookLevel(row)
		if err != nil {
			return model.MarketSnapshot{}, apperrors.Inconsistency("malformed book row: " + err.Error())
		}
		levels = append(levels, l)
	}
	return market.Aggregate(currency, levels, time.Now()), nil
}

func (c *BitfinexClient) authPost(ctx context.Context, path string, body any, out any) error {
	if c.signer == nil {
		return apperrors.Configuration("bitfinex client has no credentials for " + path)
	}
	payload := []byte("{}")
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.signer.Headers(path, payload) {
		req.Header.Set(k, v)
	}
	return c.do(ctx, endpointLabel(path), req, out)
}

func (c *BitfinexClient) publicGet(ctx context.Context, path string, query url.Values, out any) error {
	u := c.publicURL + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, endpointLabel(path), req, out)
}

func (c *BitfinexClient) do(ctx context.Context, endpoint string, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Transient("rate limiter wait", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ExchangeRequests.WithLabelValues(endpoint, "network_error").Inc()
		return apperrors.Transient(endpoint+": request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.ExchangeRequests.WithLabelValues(endpoint, "network_error").Inc()
		return apperrors.Transient(endpoint+": read body", err)
	}

	// Errors come back as ["error", CODE, MESSAGE], usually with a 500.
	if apiErr := parseAPIError(raw); apiErr != nil {
		err := classifyAPIError(endpoint, resp.StatusCode, apiErr)
		metrics.ExchangeRequests.WithLabelValues(endpoint, resultLabel(err)).Inc()
		c.log.Warn("exchange request failed", "endpoint", endpoint, "status", resp.StatusCode, "code", apiErr.Code, "error", apiErr.Message)
		return err
	}
	if resp.StatusCode != http.StatusOK {
		err := classifyStatus(endpoint, resp.StatusCode, raw)
		metrics.ExchangeRequests.WithLabelValues(endpoint, resultLabel(err)).Inc()
		c.log.Warn("exchange request failed", "endpoint", endpoint, "status", resp.StatusCode, "error", err)
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		metrics.ExchangeRequests.WithLabelValues(endpoint, "decode_error").Inc()
		return apperrors.Inconsistency(fmt.Sprintf("%s: unexpected response: %v", endpoint, err))
	}
	metrics.ExchangeRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

type apiError struct {
	Code    int64
	Message string
}

func (e *apiError) Error() string { return fmt.Sprintf("bitfinex error %d: %s", e.Code, e.Message) }

func parseAPIError(raw []byte) *apiError {
	var arr []any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&arr); err != nil || len(arr) < 3 {
		return nil
	}
	if tag, _ := arr[0].(string); tag != "error" {
		return nil
	}
	code, _ := toInt(arr[1])
	msg, _ := arr[2].(string)
	return &apiError{Code: code, Message: msg}
}

func classifyStatus(endpoint string, status int, raw []byte) error {
	cause := fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(raw)))
	if status == http.StatusTooManyRequests || status >= 500 {
		return apperrors.Transient(endpoint, cause)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apperrors.New(apperrors.ErrAuthFailed, endpoint, cause)
	}
	return apperrors.Rejection(endpoint, cause)
}

func classifyAPIError(endpoint string, status int, apiErr *apiError) error {
	msg := strings.ToLower(apiErr.Message)
	switch {
	case status == http.StatusTooManyRequests,
		apiErr.Code == errCodeRateLimit, apiErr.Code == errCodeNonce,
		strings.Contains(msg, "ratelimit"), strings.Contains(msg, "nonce"),
		strings.Contains(msg, "temporarily unavailable"):
		return apperrors.Transient(endpoint, apiErr)
	case apiErr.Code == errCodeAuth, strings.HasPrefix(msg, "apikey"):
		return apperrors.New(apperrors.ErrAuthFailed, endpoint, apiErr)
	default:
		return apperrors.Rejection(endpoint, apiErr)
	}
}

func resultLabel(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(string(appErr.Type))
	}
	return "error"
}

// endpointLabel keeps metric cardinality bounded: "v2/auth/r/ledgers/USD/hist" -> "ledgers".
func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "v2/auth/r/wallets"):
		return "wallets"
	case strings.HasPrefix(path, "v2/auth/r/funding/offers"):
		return "offers"
	case strings.HasSuffix(path, "offer/submit"):
		return "submit"
	case strings.HasSuffix(path, "offer/cancel"):
		return "cancel"
	case strings.HasPrefix(path, "v2/auth/r/ledgers"):
		return "ledgers"
	case strings.HasPrefix(path, "v2/book"):
		return "book"
	}
	return "other"
}
