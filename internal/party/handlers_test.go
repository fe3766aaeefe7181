package party_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/db/memdb"
	"github.com/noah-isme/backend-pos/internal/party"
)

func router() http.Handler {
	h := &party.Handler{Svc: &party.Service{Q: memdb.New()}}
	r := chi.NewRouter()
	r.Post("/customers", h.CreateCustomer)
	r.Get("/customers", h.ListCustomers)
	r.Get("/customers/{id}", h.GetCustomer)
	r.Post("/suppliers", h.CreateSupplier)
	return r
}

func TestCustomerLifecycle(t *testing.T) {
	r := router()

	body, _ := json.Marshal(map[string]string{"name": "Asha", "phone": "98450 12345", "email": "Asha@Example.com"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/customers", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "asha@example.com", created.Data.Email)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/"+created.Data.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers?q=ash", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), created.Data.ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/6f1c2a0e-7d43-4c55-9a1b-2f9e0a1b2c3d", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSupplierValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/suppliers", bytes.NewReader([]byte(`{"name":"","email":"nope"}`))))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
