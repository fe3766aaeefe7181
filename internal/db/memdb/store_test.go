package memdb

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/db"
)

func TestExecTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, err := s.CreateProduct(ctx, db.CreateProductParams{Name: "Tea", Sku: "T-1", Price: decimal.NewFromInt(10), Stock: 5})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.ExecTx(ctx, func(q db.Querier) error {
		if _, err := q.DecrementStock(ctx, p.ID, 3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int32(5), got.Stock)
}

func TestDecrementStockGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, err := s.CreateProduct(ctx, db.CreateProductParams{Name: "Tea", Sku: "T-1", Price: decimal.NewFromInt(10), Stock: 2})
	require.NoError(t, err)

	_, err = s.DecrementStock(ctx, p.ID, 3)
	require.ErrorIs(t, err, db.ErrInsufficientStock)

	left, err := s.DecrementStock(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Equal(t, int32(0), left)

	require.NoError(t, s.SoftDeleteProduct(ctx, p.ID, s.now()))
	_, err = s.DecrementStock(ctx, p.ID, 0)
	require.ErrorIs(t, err, db.ErrInsufficientStock)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateProduct(ctx, db.CreateProductParams{Name: "A", Sku: "S", Barcode: pgtype.Text{String: "111", Valid: true}})
	require.NoError(t, err)

	_, err = s.CreateProduct(ctx, db.CreateProductParams{Name: "B", Sku: "S"})
	require.ErrorIs(t, err, db.ErrConflict)
	require.Equal(t, "products_sku_key", db.ConstraintName(err))

	_, err = s.CreateProduct(ctx, db.CreateProductParams{Name: "B", Sku: "S2", Barcode: pgtype.Text{String: "111", Valid: true}})
	require.ErrorIs(t, err, db.ErrConflict)
	require.Equal(t, "products_barcode_key", db.ConstraintName(err))

	_, err = s.CreateCoupon(ctx, db.CreateCouponParams{Code: "SAVE10", Percentage: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = s.CreateCoupon(ctx, db.CreateCouponParams{Code: "save10", Percentage: decimal.NewFromInt(5)})
	require.ErrorIs(t, err, db.ErrConflict)
}

func TestCategoryDeleteRestricted(t *testing.T) {
	ctx := context.Background()
	s := New()
	c, err := s.CreateCategory(ctx, db.CreateCategoryParams{Name: "Drinks"})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, db.CreateProductParams{Name: "Tea", Sku: "T", CategoryID: pgtype.UUID{Bytes: c.ID, Valid: true}})
	require.NoError(t, err)

	err = s.DeleteCategory(ctx, c.ID)
	require.ErrorIs(t, err, db.ErrReferenced)
}

func TestStockLedgerDrift(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, err := s.CreateProduct(ctx, db.CreateProductParams{Name: "Tea", Sku: "T", Stock: 4})
	require.NoError(t, err)

	drift, err := s.StockLedgerDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.Equal(t, int64(0), drift[0].LedgerTotal)

	_, err = s.CreateStockMovement(ctx, db.CreateStockMovementParams{ProductID: p.ID, Kind: db.MovementManualAdjust, Quantity: 4, Reason: "initial stock"})
	require.NoError(t, err)
	drift, err = s.StockLedgerDrift(ctx)
	require.NoError(t, err)
	require.Empty(t, drift)
}
