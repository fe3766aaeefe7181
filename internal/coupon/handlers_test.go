package coupon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/db"
)

type stubQueries struct {
	coupons []db.Coupon
}

func (s *stubQueries) CreateCoupon(ctx context.Context, arg db.CreateCouponParams) (db.Coupon, error) {
	for _, c := range s.coupons {
		if strings.EqualFold(c.Code, arg.Code) {
			return db.Coupon{}, db.NewConstraintError(db.ErrConflict, "coupons_code_key")
		}
	}
	c := db.Coupon{ID: uuid.New(), Code: arg.Code, Percentage: arg.Percentage, Active: arg.Active}
	s.coupons = append(s.coupons, c)
	return c, nil
}

func (s *stubQueries) ListCoupons(ctx context.Context, activeOnly bool) ([]db.Coupon, error) {
	var out []db.Coupon
	for _, c := range s.coupons {
		if !activeOnly || c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubQueries) SetCouponActive(ctx context.Context, id uuid.UUID, active bool) (db.Coupon, error) {
	for i := range s.coupons {
		if s.coupons[i].ID == id {
			s.coupons[i].Active = active
			return s.coupons[i], nil
		}
	}
	return db.Coupon{}, db.ErrNotFound
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestCouponHandlers(t *testing.T) {
	h := &coupon.Handler{Svc: &coupon.Service{Q: &stubQueries{}}}

	t.Run("create", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons", strings.NewReader(`{"code":"SAVE10","percentage":"10"}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("duplicate code conflicts regardless of case", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons", strings.NewReader(`{"code":"save10","percentage":"5"}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("percentage out of range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons", strings.NewReader(`{"code":"HUGE","percentage":"150"}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("preview", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/preview", strings.NewReader(`{"code":"save10","subtotal":"200"}`))
		rec := httptest.NewRecorder()
		h.Preview(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data coupon.Result `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.True(t, body.Data.Discount.Equal(decimal.NewFromInt(20)))
	})

	t.Run("preview unknown code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/preview", strings.NewReader(`{"code":"NOPE","subtotal":"200"}`))
		rec := httptest.NewRecorder()
		h.Preview(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "COUPON_NOT_FOUND", body.Error.Code)
	})
}
