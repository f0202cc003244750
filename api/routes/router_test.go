package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/counterpos/api/controllers"
	"github.com/angelmondragon/counterpos/api/middleware"
	"github.com/angelmondragon/counterpos/internal/catalog"
	"github.com/angelmondragon/counterpos/internal/checkout"
	"github.com/angelmondragon/counterpos/internal/customers"
	"github.com/angelmondragon/counterpos/internal/promotions"
	"github.com/angelmondragon/counterpos/internal/sales"
	"github.com/angelmondragon/counterpos/internal/sessions"
	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/internal/terminal"
	"github.com/angelmondragon/counterpos/pkg/config"
	"github.com/angelmondragon/counterpos/pkg/db/dbtest"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
	"github.com/angelmondragon/counterpos/pkg/outbox"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (m *memoryCounter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryCounter) CounterKey(name string) string { return "counter:" + name }

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "test"},
		Metrics:   config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Checkout:  config.CheckoutConfig{IdempotencyTTL: 168 * time.Hour},
		RateLimit: config.RateLimitConfig{SessionOpenWindow: time.Minute, SessionOpenTerminalLimit: 10, SessionOpenCashierLimit: 2},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "counterpos-test", Level: logger.ParseLevel("error"), Output: io.Discard})
}

func newStackRouter(t *testing.T, limiter middleware.RateLimiterStore) http.Handler {
	t.Helper()
	client := dbtest.Open(t)
	logg := testLogger()
	reg := prometheus.NewRegistry()
	m := metrics.NewPOSMetrics(reg)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logg)

	mgr, err := sessions.NewManager(sessions.ManagerParams{DB: client.DB(), Tx: client, Outbox: emitter, Metrics: m, Logger: logg})
	require.NoError(t, err)
	ledger, err := stock.NewLedger(stock.LedgerParams{DB: client.DB(), Tx: client, Outbox: emitter, Metrics: m, Logger: logg})
	require.NoError(t, err)
	accounts, err := customers.NewAccounts(client.DB())
	require.NoError(t, err)
	products := catalog.NewRepository(client.DB())
	catalogSvc, err := catalog.NewService(catalog.ServiceParams{Tx: client, Repo: products, Stock: ledger, Logger: logg})
	require.NoError(t, err)
	promoRepo := promotions.NewRepository(client.DB())
	source := promotions.NewSource(promoRepo, nil, 0, logg)
	promoSvc, err := promotions.NewService(promotions.ServiceParams{Tx: client, Repo: promoRepo, Source: source, Outbox: emitter, Logger: logg})
	require.NoError(t, err)
	salesRepo := sales.NewRepository(client.DB())
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:         client,
		Catalog:    products,
		Promotions: source,
		Sessions:   mgr,
		Stock:      ledger,
		Sales:      salesRepo,
		Customers:  accounts,
		Outbox:     emitter,
		Metrics:    m,
		Logger:     logg,
	})
	require.NoError(t, err)
	salesSvc, err := sales.NewService(sales.ServiceParams{Repo: salesRepo, Tx: client, Stock: ledger, Debts: accounts, Outbox: emitter, Metrics: m, Logger: logg})
	require.NoError(t, err)

	deps := Dependencies{
		Ready:      []controllers.Dependency{{Name: "db", Pinger: client}},
		Sessions:   mgr,
		Terminals:  terminal.NewRegistry(nil, 0, logg),
		Products:   products,
		Catalog:    catalogSvc,
		Checkout:   checkoutSvc,
		Sales:      salesSvc,
		Stock:      ledger,
		Customers:  accounts,
		Promotions: promoSvc,
		Metrics:    reg,
	}
	if limiter != nil {
		deps.RateLimiter = limiter
	}
	return NewRouter(testConfig(), logg, deps)
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func call(t *testing.T, h http.Handler, method, path, cashier, terminalID string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cashier != "" {
		req.Header.Set(middleware.CashierHeader, cashier)
	}
	if terminalID != "" {
		req.Header.Set(middleware.TerminalHeader, terminalID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out apiResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), Dependencies{
		Ready: []controllers.Dependency{{Name: "db", Pinger: stubPinger{}}, {Name: "redis"}},
	})

	status, _ := call(t, router, http.MethodGet, "/health/live", "", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, router, http.MethodGet, "/health/ready", "", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), Dependencies{
		Ready: []controllers.Dependency{{Name: "db", Pinger: stubPinger{err: assert.AnError}}},
	})
	status, resp := call(t, router, http.MethodGet, "/health/ready", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_ERROR", resp.Error.Code)
}

func TestAPIRequiresCashierAndTerminal(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), Dependencies{})

	status, resp := call(t, router, http.MethodGet, "/api/v1/cart", "", "till-1", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	status, _ = call(t, router, http.MethodGet, "/api/v1/cart", "cashier-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUnwiredServicesFailClosed(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), Dependencies{})
	status, resp := call(t, router, http.MethodPost, "/api/v1/checkout", "cashier-1", "till-1", map[string]any{"paymentMethod": "cash"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
}

func TestMetricsEndpointExposesPOSCounters(t *testing.T) {
	router := newStackRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	router := newStackRouter(t, nil)
	const cashier, till = "cashier-1", "till-1"

	status, resp := call(t, router, http.MethodPost, "/api/v1/products", cashier, till, map[string]any{
		"sku":               "COLA-330",
		"name":              "Cola 330ml",
		"sellingPriceCents": 250,
		"costPriceCents":    120,
		"reorderLevel":      2,
		"initialStock":      10,
	})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	product := decode[catalog.ProductDTO](t, resp.Data)

	status, resp = call(t, router, http.MethodPost, "/api/v1/checkout", cashier, till, map[string]any{"paymentMethod": "cash"})
	require.Equal(t, http.StatusConflict, status)

	status, resp = call(t, router, http.MethodPost, "/api/v1/sessions", cashier, till, map[string]any{"openingCashCents": 5000})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	session := decode[sessions.SessionDTO](t, resp.Data)

	status, resp = call(t, router, http.MethodPost, "/api/v1/cart/items", cashier, till, map[string]any{"productId": product.ID, "quantity": 3})
	require.Equal(t, http.StatusOK, status, resp.Error.Message)
	summary := decode[struct {
		TotalCents int64 `json:"totalCents"`
	}](t, resp.Data)
	assert.Equal(t, int64(750), summary.TotalCents)

	status, resp = call(t, router, http.MethodPost, "/api/v1/checkout", cashier, till, map[string]any{"paymentMethod": "cash"})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	receipt := decode[struct {
		Sale sales.SaleDTO `json:"sale"`
	}](t, resp.Data)
	assert.Equal(t, int64(750), receipt.Sale.TotalCents)
	assert.Equal(t, session.ID, receipt.Sale.SessionID)
	require.Len(t, receipt.Sale.Items, 1)

	status, resp = call(t, router, http.MethodGet, "/api/v1/cart", cashier, till, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(0), decode[struct {
		TotalCents int64 `json:"totalCents"`
	}](t, resp.Data).TotalCents)

	status, resp = call(t, router, http.MethodGet, "/api/v1/stock/"+product.ID.String()+"/verify", cashier, till, nil)
	require.Equal(t, http.StatusOK, status)
	verification := decode[stock.Verification](t, resp.Data)
	assert.Equal(t, 7, verification.StockQuantity)
	assert.True(t, verification.Consistent)

	status, resp = call(t, router, http.MethodPost, "/api/v1/sales/"+receipt.Sale.ID.String()+"/refund", cashier, till, map[string]any{"reason": "customer changed mind"})
	require.Equal(t, http.StatusOK, status, resp.Error.Message)
	assert.Equal(t, "refunded", string(decode[sales.SaleDTO](t, resp.Data).Status))

	status, _ = call(t, router, http.MethodPost, "/api/v1/sales/"+receipt.Sale.ID.String()+"/void", cashier, till, map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, resp = call(t, router, http.MethodGet, "/api/v1/stock/"+product.ID.String()+"/verify", cashier, till, nil)
	require.Equal(t, http.StatusOK, status)
	verification = decode[stock.Verification](t, resp.Data)
	assert.Equal(t, 10, verification.StockQuantity)
	assert.True(t, verification.Consistent)

	status, resp = call(t, router, http.MethodPost, "/api/v1/sessions/"+session.ID.String()+"/close", cashier, till, map[string]any{"countedCashCents": 5000})
	require.Equal(t, http.StatusOK, status, resp.Error.Message)

	status, _ = call(t, router, http.MethodGet, "/api/v1/sessions/current", cashier, till, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestSessionBelongsToItsCashier(t *testing.T) {
	router := newStackRouter(t, nil)

	status, resp := call(t, router, http.MethodPost, "/api/v1/sessions", "cashier-1", "till-1", map[string]any{"openingCashCents": 0})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	session := decode[sessions.SessionDTO](t, resp.Data)

	status, _ = call(t, router, http.MethodGet, "/api/v1/sessions/"+session.ID.String()+"/stats", "cashier-2", "till-2", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, router, http.MethodGet, "/api/v1/sessions/current", "cashier-2", "till-1", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestSessionCloseFromAnotherTillClearsOwningTill(t *testing.T) {
	router := newStackRouter(t, nil)
	const cashier = "cashier-1"
	totalOf := func(till string) int64 {
		status, resp := call(t, router, http.MethodGet, "/api/v1/cart", cashier, till, nil)
		require.Equal(t, http.StatusOK, status)
		return decode[struct {
			TotalCents int64 `json:"totalCents"`
		}](t, resp.Data).TotalCents
	}

	status, resp := call(t, router, http.MethodPost, "/api/v1/products", cashier, "till-1", map[string]any{
		"sku":               "GUM-1",
		"name":              "Gum",
		"sellingPriceCents": 100,
		"initialStock":      10,
	})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	product := decode[catalog.ProductDTO](t, resp.Data)

	status, resp = call(t, router, http.MethodPost, "/api/v1/sessions", cashier, "till-1", map[string]any{"openingCashCents": 0})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	session := decode[sessions.SessionDTO](t, resp.Data)

	for _, till := range []string{"till-1", "till-2"} {
		status, resp = call(t, router, http.MethodPost, "/api/v1/cart/items", cashier, till, map[string]any{"productId": product.ID, "quantity": 2})
		require.Equal(t, http.StatusOK, status, resp.Error.Message)
	}

	status, resp = call(t, router, http.MethodPost, "/api/v1/sessions/"+session.ID.String()+"/close", cashier, "till-2", map[string]any{"countedCashCents": 0})
	require.Equal(t, http.StatusOK, status, resp.Error.Message)

	assert.Zero(t, totalOf("till-1"))
	assert.Equal(t, int64(200), totalOf("till-2"))
}

func TestSessionOpenIsRateLimitedPerCashier(t *testing.T) {
	router := newStackRouter(t, &memoryCounter{})

	for i := 0; i < 2; i++ {
		status, _ := call(t, router, http.MethodGet, "/api/v1/sessions", "cashier-1", "till-1", nil)
		require.Equal(t, http.StatusOK, status)
		_, _ = call(t, router, http.MethodPost, "/api/v1/sessions", "cashier-1", "till-1", map[string]any{"openingCashCents": 0})
	}
	status, resp := call(t, router, http.MethodPost, "/api/v1/sessions", "cashier-1", "till-1", map[string]any{"openingCashCents": 0})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.Code)
}

func TestStockAndCatalogRoutes(t *testing.T) {
	router := newStackRouter(t, nil)
	const cashier, till = "cashier-1", "till-1"

	status, resp := call(t, router, http.MethodPost, "/api/v1/products", cashier, till, map[string]any{
		"sku": "BREAD-1", "name": "Bread", "sellingPriceCents": 180, "reorderLevel": 5, "initialStock": 3,
	})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	product := decode[catalog.ProductDTO](t, resp.Data)

	status, resp = call(t, router, http.MethodGet, "/api/v1/products/lookup?sku=BREAD-1", cashier, till, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, product.ID, decode[catalog.ProductDTO](t, resp.Data).ID)

	status, resp = call(t, router, http.MethodGet, "/api/v1/stock/low", cashier, till, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]catalog.ProductDTO](t, resp.Data), 1)

	status, _ = call(t, router, http.MethodPost, "/api/v1/stock/"+product.ID.String()+"/remove", cashier, till, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = call(t, router, http.MethodPost, "/api/v1/stock/"+product.ID.String()+"/remove", cashier, till, map[string]any{"quantity": 5, "reason": "damaged"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, float64(3), resp.Error.Details["available"])

	status, _ = call(t, router, http.MethodPost, "/api/v1/stock/"+product.ID.String()+"/receive", cashier, till, map[string]any{"quantity": 12})
	require.Equal(t, http.StatusCreated, status)

	status, resp = call(t, router, http.MethodPost, "/api/v1/stock/"+product.ID.String()+"/count", cashier, till, map[string]any{"counted": 14, "reason": "weekly count"})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	movement := decode[stock.MovementDTO](t, resp.Data)
	assert.Equal(t, -1, movement.Quantity)

	status, resp = call(t, router, http.MethodGet, "/api/v1/stock/"+product.ID.String()+"/movements?type=adjustment", cashier, till, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]stock.MovementDTO](t, resp.Data), 1)

	status, resp = call(t, router, http.MethodPut, "/api/v1/products/"+product.ID.String()+"/status", cashier, till, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, status, resp.Error.Message)

	status, _ = call(t, router, http.MethodPost, "/api/v1/cart/items", cashier, till, map[string]any{"productId": product.ID})
	assert.Equal(t, http.StatusConflict, status)
}

func TestPromotionRoutesRejectMismatchedRule(t *testing.T) {
	router := newStackRouter(t, nil)
	const cashier, till = "cashier-1", "till-1"

	status, resp := call(t, router, http.MethodPost, "/api/v1/products", cashier, till, map[string]any{
		"sku": "SOAP-1", "name": "Soap", "sellingPriceCents": 300, "initialStock": 20,
	})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)
	product := decode[catalog.ProductDTO](t, resp.Data)

	today := time.Now().Format(promotions.DateLayout)
	status, resp = call(t, router, http.MethodPost, "/api/v1/promotions", cashier, till, map[string]any{
		"name":       "3 for 2",
		"type":       "pack_discount",
		"startDate":  today,
		"endDate":    today,
		"productIds": []string{product.ID.String()},
		"rule":       map[string]any{"pack_size": 3, "discount_cents": 300},
	})
	require.Equal(t, http.StatusCreated, status, resp.Error.Message)

	status, resp = call(t, router, http.MethodPost, "/api/v1/promotions", cashier, till, map[string]any{
		"name":       "broken",
		"type":       "pack_discount",
		"startDate":  today,
		"endDate":    today,
		"productIds": []string{product.ID.String()},
		"rule":       map[string]any{"pack_size": 1, "discount_cents": 300},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	status, resp = call(t, router, http.MethodGet, "/api/v1/promotions", cashier, till, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]json.RawMessage](t, resp.Data), 1)
}
