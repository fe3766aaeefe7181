package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/app"
	"github.com/noah-isme/backend-pos/internal/auth"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/db/memdb"
	"github.com/noah-isme/backend-pos/internal/ratelimit"
)

type okChecker struct{}

func (okChecker) PingDB(context.Context, time.Duration) error    { return nil }
func (okChecker) PingRedis(context.Context, time.Duration) error { return nil }

type testAPI struct {
	handler  http.Handler
	verifier *auth.Verifier
	store    *memdb.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		JWTSecret:          "router-test-secret",
		JWTIssuer:          "pos",
		CORSAllowedOrigins: []string{"*"},
		BodyLimitBytes:     1 << 20,
		AuditEnabled:       true,
		TaxRateBps:         1800,
		InvoicePrefix:      "INV",
		IdempotencyTTL:     time.Minute,
		LowStockAlertTopic: "alerts",
	}
	store := memdb.New()
	svcs, err := app.BuildServices(cfg, store, rdb, nil)
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	require.NoError(t, err)
	apiLimiter, err := ratelimit.NewFixed(nil, "test", time.Minute, 1000)
	require.NoError(t, err)

	return &testAPI{
		handler: newRouter(routerDeps{
			Config:      cfg,
			Logger:      zerolog.Nop(),
			Services:    svcs,
			Redis:       rdb,
			Verifier:    verifier,
			Checker:     okChecker{},
			APILimiter:  apiLimiter,
			SaleLimiter: ratelimit.Sliding{},
		}),
		verifier: verifier,
		store:    store,
	}
}

func (a *testAPI) token(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := a.verifier.Issue(auth.Identity{UserID: uuid.NewString(), Role: role})
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestHealthEndpointsAreOpen(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/live", "", nil).Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/ready", "", nil).Code)
}

func TestAPIRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestEmployeeCannotReachAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	employee := api.token(t, common.RoleEmployee)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/products"},
		{http.MethodPost, "/api/v1/stock/adjustments"},
		{http.MethodGet, "/api/v1/reports"},
		{http.MethodGet, "/api/v1/purchase-orders"},
		{http.MethodGet, "/api/v1/audit"},
	} {
		rec := api.do(t, tc.method, tc.path, employee, map[string]any{})
		require.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/products", employee, nil).Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/me", employee, nil).Code)
}

func TestSaleFlowThroughRouter(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token(t, common.RoleAdmin)
	cashier := api.token(t, common.RoleEmployee)

	rec := api.do(t, http.MethodPost, "/api/v1/products", admin, map[string]any{
		"name": "Kopi Susu", "sku": "KS-01", "price": "25000", "stock": 5, "minStock": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &product)

	rec = api.do(t, http.MethodPost, "/api/v1/sales", cashier, map[string]any{
		"lines":            []map[string]any{{"productId": product.ID, "quantity": 2}},
		"paymentMethod":    "cash",
		"paymentConfirmed": true,
		"idempotencyKey":   "till-1-0001",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt struct {
		Sale struct {
			ID        string `json:"id"`
			InvoiceNo string `json:"invoice_no"`
		} `json:"sale"`
	}
	decodeData(t, rec, &receipt)
	require.NotEmpty(t, receipt.Sale.InvoiceNo)

	rec = api.do(t, http.MethodGet, "/api/v1/sales/invoice/"+receipt.Sale.InvoiceNo, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/products/sku/KS-01", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var after struct {
		Stock int32 `json:"stock"`
	}
	decodeData(t, rec, &after)
	require.Equal(t, int32(3), after.Stock)

	rec = api.do(t, http.MethodGet, "/api/v1/audit", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []struct {
		Action string `json:"action"`
	}
	decodeData(t, rec, &logs)
	require.NotEmpty(t, logs)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	require.Contains(t, actions, "product.create")
}

func TestBodyLimitOnAPI(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token(t, common.RoleAdmin)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories", bytes.NewReader(make([]byte, 2<<20)))
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestProtectPprof(t *testing.T) {
	h := protectPprof(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), "ops", "secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("ops", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
