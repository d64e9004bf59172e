package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/polylend/internal/middleware"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminKey = "test-admin-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubReports struct {
	reports []model.CycleReport
}

func (s *stubReports) Latest(_ context.Context, _ string) (model.CycleReport, bool) {
	if len(s.reports) == 0 {
		return model.CycleReport{}, false
	}
	return s.reports[0], true
}

func (s *stubReports) Recent(_ context.Context, _ string, limit int) []model.CycleReport {
	if limit < len(s.reports) {
		return s.reports[:limit]
	}
	return s.reports
}

type stubTrigger struct {
	busy    bool
	settled []time.Time
	failing bool
}

func (s *stubTrigger) TriggerCycle(context.Context) (model.CycleReport, error) {
	if s.busy {
		return model.CycleReport{}, apperrors.New(apperrors.ErrConflict, "another run is in progress", nil)
	}
	return model.CycleReport{ID: "manual", Success: true}, nil
}

func (s *stubTrigger) TriggerSettlement(_ context.Context, date time.Time) (model.SettlementReport, error) {
	if s.busy {
		return model.SettlementReport{}, apperrors.New(apperrors.ErrConflict, "another run is in progress", nil)
	}
	s.settled = append(s.settled, date)
	if s.failing {
		return model.SettlementReport{Date: date, Error: "ledger unavailable"}, nil
	}
	return model.SettlementReport{Date: date, Success: true}, nil
}

type fixture struct {
	router  *gin.Engine
	store   *repository.MemoryStore
	reports *stubReports
	trigger *stubTrigger
}

func newFixture() *fixture {
	f := &fixture{
		store:   repository.NewMemoryStore(),
		reports: &stubReports{},
		trigger: &stubTrigger{},
	}
	f.router = NewRouter(RouterConfig{
		Currency:    "USD",
		AdminKey:    adminKey,
		MetricsPath: "/metrics",
	}, f.reports, f.store, f.trigger)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(middleware.HeaderAdminKey, adminKey)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture()
	f.reports.reports = []model.CycleReport{{ID: "c1", Success: true, FinishedAt: time.Now()}}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["last_cycle_ok"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesNeedKey(t *testing.T) {
	f := newFixture()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusAndCycles(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_cycle":null`)

	f.reports.reports = []model.CycleReport{{ID: "c3"}, {ID: "c2"}, {ID: "c1"}}
	w = f.do(http.MethodGet, "/v1/status", "")
	assert.Contains(t, w.Body.String(), `"id":"c3"`)

	w = f.do(http.MethodGet, "/v1/cycles?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cycles []model.CycleReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cycles))
	require.Len(t, cycles, 2)
	assert.Equal(t, "c3", cycles[0].ID)
}

func TestOrdersFilterByStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for id, st := range map[string]model.OrderStatus{"1": model.StatusActive, "2": model.StatusExecuted, "3": model.StatusCancelled} {
		require.NoError(t, f.store.UpsertOrder(ctx, model.LendingOrder{
			OrderID: id, Currency: "USD", Amount: decimal.NewFromInt(100), Rate: decimal.RequireFromString("0.0002"), Period: 2, Status: st,
		}))
	}

	w := f.do(http.MethodGet, "/v1/orders?status=active,executed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var orders []model.LendingOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	assert.Len(t, orders, 2)

	w = f.do(http.MethodGet, "/v1/orders?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInterestAndSummaries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	day := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	_, err := f.store.InsertPayment(ctx, model.InterestPayment{
		LedgerID: "L1", Currency: "USD", Amount: decimal.RequireFromString("1.25"), PaymentDate: day, PaidAt: day,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.UpsertSummary(ctx, model.DailySummary{Date: day, Currency: "USD", TotalBalance: decimal.NewFromInt(1000)}))

	w := f.do(http.MethodGet, "/v1/interest?from=2024-03-01&to=2024-03-31", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":"1.25"`)
	assert.Contains(t, w.Body.String(), `"ledger_id":"L1"`)

	w = f.do(http.MethodGet, "/v1/summaries?from=2024-03-14&to=2024-03-14", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sums []model.DailySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sums))
	assert.Len(t, sums, 1)

	w = f.do(http.MethodGet, "/v1/summaries?from=14-03-2024", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/v1/interest?from=2024-03-10&to=2024-03-01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualCycle(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/cycles", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"manual"`)

	f.trigger.busy = true
	w = f.do(http.MethodPost, "/v1/cycles", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}

func TestManualSettlement(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/settlements", `{"date":"2024-03-14"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.trigger.settled, 1)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), f.trigger.settled[0])

	// No body settles yesterday.
	w = f.do(http.MethodPost, "/v1/settlements", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.trigger.settled, 2)
	assert.Equal(t, model.Day(time.Now()).AddDate(0, 0, -1), f.trigger.settled[1])

	w = f.do(http.MethodPost, "/v1/settlements", `{"date":"2999-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/settlements", `{"date":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.trigger.failing = true
	w = f.do(http.MethodPost, "/v1/settlements", `{"date":"2024-03-14"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
