package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/db/memdb"
	"github.com/noah-isme/backend-pos/internal/obs"
)

func TestServiceRecord(t *testing.T) {
	store := memdb.New()
	svc := Service{Store: store, Enabled: true, SamplingRate: 1}
	userID := uuid.NewString()

	req := httptest.NewRequest(http.MethodPost, "https://pos.test/api/v1/products/abc/restore?reason=typo", nil)
	req.Header.Set("User-Agent", "till-7")
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := common.WithRole(common.WithUserID(req.Context(), userID), common.RoleAdmin)
	ctx = obs.WithRoutePattern(ctx, "/api/v1/products/{id}/restore")
	req = req.WithContext(ctx)

	require.NoError(t, svc.Record(req.Context(), req, Entry{Actor: ActorFromRequest(req), ResourceID: "abc", Status: http.StatusOK}))

	rows, err := svc.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	require.Equal(t, string(ActorKindUser), got.ActorKind)
	require.True(t, got.ActorUserID.Valid)
	require.Equal(t, userID, uuid.UUID(got.ActorUserID.Bytes).String())
	require.Equal(t, "POST /api/v1/products/{id}/restore", got.Action)
	require.Equal(t, "products.restore", got.ResourceType)
	require.Equal(t, "abc", got.ResourceID.String)
	require.Equal(t, "10.0.0.2", got.Ip.String)
	require.Equal(t, "req-123", got.RequestID.String)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	require.Equal(t, map[string]string{"role": "admin", "query": "reason=typo"}, meta)
}

func TestServiceRecordNonUUIDSubject(t *testing.T) {
	store := memdb.New()
	svc := Service{Store: store, Enabled: true}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/categories/1", nil)

	require.NoError(t, svc.Record(req.Context(), req, Entry{Actor: Actor{Kind: ActorKindUser, UserID: "cashier-1"}}))
	rows, err := svc.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.False(t, rows[0].ActorUserID.Valid)
	require.JSONEq(t, `{"subject":"cashier-1"}`, string(rows[0].Metadata))
	require.Equal(t, "categories.1", rows[0].ResourceType)
}

func TestServiceRecordDisabled(t *testing.T) {
	store := memdb.New()
	svc := Service{Store: store}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, svc.Record(req.Context(), req, Entry{}))
	rows, err := svc.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.Error(t, Service{Enabled: true}.Record(req.Context(), req, Entry{}))
}

func TestBuildResource(t *testing.T) {
	require.Equal(t, "sales", buildResource("", "/api/v1/sales"))
	require.Equal(t, "stock.adjustments", buildResource("", "/api/v1/stock/adjustments"))
	require.Equal(t, "unknown", buildResource("", "/api/v1/{id}"))
	require.Equal(t, "custom", buildResource("custom", "/x"))
}

type failingStore struct{}

func (failingStore) InsertAuditLog(context.Context, db.InsertAuditLogParams) (db.AuditLog, error) {
	return db.AuditLog{}, errors.New("db down")
}

func (failingStore) ListAuditLogs(context.Context, db.ListAuditLogsParams) ([]db.AuditLog, error) {
	return nil, errors.New("db down")
}

func TestMiddlewareRecordsAndHandlerLists(t *testing.T) {
	store := memdb.New()
	svc := Service{Store: store, Enabled: true}
	rec := HTTPRecorder{Service: svc}

	r := chi.NewRouter()
	r.Use(obs.RoutePatternMiddleware)
	r.With(rec.Middleware(HTTPConfig{
		Action:          "product.price_change",
		ResourceType:    "product",
		ResourceIDParam: "id",
		MetadataFunc: func(_ *http.Request, status int) map[string]any {
			return map[string]any{"ok": status < 400}
		},
	})).Put("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Get("/audit", Handler{Service: svc}.List)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/products/p-1", nil))
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/audit?limit=5", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data       []db.AuditLog     `json:"data"`
		Pagination common.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "product.price_change", body.Data[0].Action)
	require.Equal(t, "p-1", body.Data[0].ResourceID.String)
	require.EqualValues(t, http.StatusConflict, body.Data[0].Status)
	require.JSONEq(t, `{"ok":false}`, string(body.Data[0].Metadata))
	require.Equal(t, 5, body.Pagination.PerPage)

	// A broken store never changes the audited response.
	broken := HTTPRecorder{Service: Service{Store: failingStore{}, Enabled: true}}
	h := broken.Middleware(HTTPConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/sales", nil))
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = httptest.NewRecorder()
	Handler{Service: Service{Store: failingStore{}}}.List(resp, httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}
