package purchase

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/db/memdb"
	"github.com/noah-isme/backend-pos/internal/events"
)

var buyer = uuid.MustParse("3c9d4e1f-2a6b-4c8d-9e0f-1a2b3c4d5e6f")

func setup(t *testing.T) (*memdb.Store, *Service, db.Product, View) {
	t.Helper()
	ctx := context.Background()
	store := memdb.New()
	sup, err := store.CreateSupplier(ctx, db.CreatePartyParams{Name: "Acme Wholesale"})
	require.NoError(t, err)
	p, err := store.CreateProduct(ctx, db.CreateProductParams{Name: "Soap", Sku: "SOAP-1", Price: decimal.NewFromInt(40)})
	require.NoError(t, err)
	svc := &Service{Store: store, Events: &events.Bus{Store: store}}
	view, err := svc.Create(ctx, CreateInput{
		SupplierID: sup.ID.String(),
		Items:      []ItemInput{{ProductID: p.ID.String(), Quantity: 10, UnitCost: decimal.RequireFromString("22.5")}},
	}, buyer)
	require.NoError(t, err)
	require.Equal(t, db.POStatusOpen, view.Status)
	return store, svc, p, view
}

func TestReceiveIncrementsStockAndLedger(t *testing.T) {
	store, svc, p, view := setup(t)
	ctx := context.Background()
	itemID := view.Items[0].ID.String()

	res, err := svc.Receive(ctx, view.ID, ReceiveInput{ItemID: itemID, Quantity: 4}, buyer)
	require.NoError(t, err)
	require.Equal(t, db.POStatusPartial, res.Status)
	require.Equal(t, int32(4), res.Stock)
	require.Equal(t, db.MovementPOReceipt, res.Movement.Kind)
	require.Equal(t, int32(4), res.Movement.Quantity)

	moves, err := store.ListStockMovements(ctx, db.ListStockMovementsParams{ProductID: pgtype.UUID{Bytes: p.ID, Valid: true}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, moves, 1)

	updated, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, updated.CostPrice.Valid)
	require.True(t, updated.CostPrice.Decimal.Equal(decimal.RequireFromString("22.5")))
	require.Len(t, store.CostHistory(p.ID), 1)

	res, err = svc.Receive(ctx, view.ID, ReceiveInput{ItemID: itemID, Quantity: 6}, buyer)
	require.NoError(t, err)
	require.Equal(t, db.POStatusReceived, res.Status)
	require.Equal(t, int32(10), res.Stock)
	require.Len(t, store.Events(events.TopicPOItemReceived), 2)
}

func TestReceiveRejectsOverReceipt(t *testing.T) {
	store, svc, p, view := setup(t)
	ctx := context.Background()

	_, err := svc.Receive(ctx, view.ID, ReceiveInput{ItemID: view.Items[0].ID.String(), Quantity: 11}, buyer)
	var ae *common.AppError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, "INVALID_QUANTITY", ae.Code)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int32(0), got.Stock)

	_, err = svc.Receive(ctx, uuid.New(), ReceiveInput{ItemID: view.Items[0].ID.String(), Quantity: 1}, buyer)
	require.True(t, errors.As(err, &ae))
	require.Equal(t, "NOT_FOUND", ae.Code)
}

func TestCreateRequiresKnownSupplier(t *testing.T) {
	store := memdb.New()
	svc := &Service{Store: store}
	_, err := svc.Create(context.Background(), CreateInput{
		SupplierID: uuid.NewString(),
		Items:      []ItemInput{{ProductID: uuid.NewString(), Quantity: 1}},
	}, buyer)
	var ae *common.AppError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, "NOT_FOUND", ae.Code)
	orders, err := store.ListPurchaseOrders(context.Background(), db.ListPurchaseOrdersParams{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, db.POStatusOpen, StatusFor(nil))
	require.Equal(t, db.POStatusOpen, StatusFor([]db.PurchaseOrderItem{{QuantityOrdered: 2}}))
	require.Equal(t, db.POStatusPartial, StatusFor([]db.PurchaseOrderItem{
		{QuantityOrdered: 2, QuantityReceived: 2}, {QuantityOrdered: 3},
	}))
	require.Equal(t, db.POStatusReceived, StatusFor([]db.PurchaseOrderItem{
		{QuantityOrdered: 2, QuantityReceived: 2}, {QuantityOrdered: 3, QuantityReceived: 3},
	}))
}
