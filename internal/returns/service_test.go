package returns_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/db/memdb"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/returns"
	"github.com/noah-isme/backend-pos/internal/sale"
)

var actor = uuid.MustParse("5d2b1f3e-9c4a-4e8b-a7d6-0f1e2d3c4b5a")

type fixture struct {
	store   *memdb.Store
	product db.Product
	receipt sale.Receipt
	svc     *returns.Service
}

func setup(t *testing.T, stock, qty int32) fixture {
	t.Helper()
	ctx := context.Background()
	store := memdb.New()
	p, err := store.CreateProduct(ctx, db.CreateProductParams{
		Name: "Green tea", Sku: "TEA-1", Price: decimal.RequireFromString("12.50"), Stock: stock,
	})
	require.NoError(t, err)
	sales := &sale.Service{Store: store, Pricing: &pricing.Service{Store: store}}
	receipt, err := sales.Commit(ctx, sale.CommitInput{
		Lines:            []pricing.CartLine{{ProductID: p.ID.String(), Quantity: qty}},
		PaymentMethod:    "cash",
		PaymentConfirmed: true,
		CashierID:        actor,
	})
	require.NoError(t, err)
	return fixture{
		store:   store,
		product: p,
		receipt: receipt,
		svc:     &returns.Service{Store: store, Events: &events.Bus{Store: store}},
	}
}

func (f fixture) stock(t *testing.T) int32 {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), f.product.ID)
	require.NoError(t, err)
	return p.Stock
}

func (f fixture) movements(t *testing.T, kind string) []db.StockMovement {
	t.Helper()
	rows, err := f.store.ListStockMovements(context.Background(), db.ListStockMovementsParams{
		ProductID: pgtype.UUID{Bytes: f.product.ID, Valid: true}, Kind: kind, Limit: 50,
	})
	require.NoError(t, err)
	return rows
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var ae *common.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %v", err)
	return ae.Code
}

func TestReturnRoundTripRestoresStock(t *testing.T) {
	f := setup(t, 10, 2)
	require.Equal(t, int32(8), f.stock(t))

	res, err := f.svc.Process(context.Background(), f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{{ProductID: f.product.ID.String(), Quantity: 2}},
	}, actor)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.True(t, res.Return.RefundTotal.Equal(decimal.RequireFromString("25")))

	require.Equal(t, int32(10), f.stock(t))
	in := f.movements(t, db.MovementReturnIn)
	require.Len(t, in, 1)
	require.Equal(t, int32(2), in[0].Quantity)
	require.Equal(t, f.receipt.Sale.ID, uuid.UUID(in[0].RefID.Bytes))
	require.Len(t, f.movements(t, db.MovementSaleOut), 1)
	require.Len(t, f.store.Events(events.TopicReturnCreated), 1)

	unchanged, err := f.store.GetSale(context.Background(), f.receipt.Sale.ID)
	require.NoError(t, err)
	require.True(t, unchanged.Total.Equal(f.receipt.Sale.Total))
}

func TestReturnClampedToRemainingQuantity(t *testing.T) {
	f := setup(t, 10, 3)
	ctx := context.Background()
	itemID := f.receipt.Items[0].ID.String()

	_, err := f.svc.Process(ctx, f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{{SaleItemID: itemID, Quantity: 2}},
	}, actor)
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{{SaleItemID: itemID, Quantity: 2}},
	}, actor)
	require.Equal(t, "INVALID_QUANTITY", appCode(t, err))
	var ae *common.AppError
	require.True(t, errors.As(err, &ae))
	shortfall, ok := ae.Details.(returns.Shortfall)
	require.True(t, ok)
	require.Equal(t, int32(1), shortfall.Remaining)
	require.Equal(t, int32(9), f.stock(t), "rejected return must not restock")

	_, err = f.svc.Process(ctx, f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{{SaleItemID: itemID, Quantity: 1}},
	}, actor)
	require.NoError(t, err)
	require.Equal(t, int32(10), f.stock(t))
	require.Len(t, f.movements(t, db.MovementReturnIn), 2)
}

func TestReturnRejectsDuplicateLinesBeyondSold(t *testing.T) {
	f := setup(t, 10, 2)
	_, err := f.svc.Process(context.Background(), f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{
			{ProductID: f.product.ID.String(), Quantity: 2},
			{ProductID: f.product.ID.String(), Quantity: 1},
		},
	}, actor)
	require.Equal(t, "INVALID_QUANTITY", appCode(t, err))
	require.Equal(t, int32(8), f.stock(t))
}

func TestReturnLineValidation(t *testing.T) {
	f := setup(t, 10, 2)
	ctx := context.Background()

	_, err := f.svc.Process(ctx, f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{{ProductID: f.product.ID.String(), Quantity: -1}},
	}, actor)
	require.Equal(t, "INVALID_QUANTITY", appCode(t, err))

	_, err = f.svc.Process(ctx, f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{{ProductID: f.product.ID.String(), Quantity: 0}},
	}, actor)
	require.Equal(t, "VALIDATION_FAILED", appCode(t, err))

	_, err = f.svc.Process(ctx, f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{{ProductID: uuid.NewString(), Quantity: 1}},
	}, actor)
	require.Equal(t, "NOT_FOUND", appCode(t, err))

	_, err = f.svc.Process(ctx, uuid.New(), returns.Request{
		Lines: []returns.Line{{ProductID: f.product.ID.String(), Quantity: 1}},
	}, actor)
	require.Equal(t, "NOT_FOUND", appCode(t, err))
}

func TestReturnZeroLinesAreDroppedAndRefundOverride(t *testing.T) {
	f := setup(t, 10, 2)
	refund := decimal.RequireFromString("10")
	res, err := f.svc.Process(context.Background(), f.receipt.Sale.ID, returns.Request{
		Lines: []returns.Line{
			{ProductID: f.product.ID.String(), Quantity: 0},
			{ProductID: f.product.ID.String(), Quantity: 1, RefundAmount: &refund},
		},
		Reason: "damaged box",
	}, actor)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.True(t, res.Items[0].RefundAmount.Equal(refund))
	require.Equal(t, "damaged box", res.Return.Reason.String)
	require.Equal(t, int32(9), f.stock(t))
}

func TestCreateHandler(t *testing.T) {
	f := setup(t, 10, 2)
	router := chi.NewRouter()
	h := &returns.Handler{Svc: f.svc}
	router.Post("/sales/{id}/returns", h.Create)

	body, _ := json.Marshal(map[string]any{
		"lines": []map[string]any{{"productId": f.product.ID.String(), "quantity": 5}},
	})
	req := httptest.NewRequest(http.MethodPost, "/sales/"+f.receipt.Sale.ID.String()+"/returns", bytes.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), actor.String()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "INVALID_QUANTITY", resp.Error.Code)
	require.EqualValues(t, 2, resp.Error.Details["remaining"])
}
