package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/db/memdb"
)

func TestServiceCreateAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	cat, err := store.CreateCategory(ctx, db.CreateCategoryParams{Name: "Snacks"})
	require.NoError(t, err)
	product, err := store.CreateProduct(ctx, db.CreateProductParams{
		Name: "Chips", Sku: "CH-1", Price: dec("100"), CategoryID: pgtype.UUID{Bytes: cat.ID, Valid: true},
	})
	require.NoError(t, err)

	svc := &Service{Store: store}
	view, err := svc.Create(ctx, CreateInput{
		Name:    "Snack week",
		Kind:    KindPercent,
		Value:   dec("20"),
		Targets: []TargetInput{{Type: TargetCategory, ID: cat.ID.String()}},
	})
	require.NoError(t, err)
	require.True(t, view.Active)
	require.Len(t, view.Targets, 1)

	set, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	res := set.Resolve(ProductFromModel(product), product.Price, time.Now())
	require.True(t, res.Price.Equal(dec("80")))

	_, err = svc.SetActive(ctx, view.ID, false)
	require.NoError(t, err)
	set, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, set.Promotions)
}

func TestServiceCreateRejectsUnknownTarget(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	svc := &Service{Store: store}

	_, err := svc.Create(ctx, CreateInput{
		Name:    "Ghost",
		Kind:    KindFixed,
		Value:   dec("5"),
		Targets: []TargetInput{{Type: TargetProduct, ID: "6f1c2a0e-7d43-4c55-9a1b-2f9e0a1b2c3d"}},
	})
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "NOT_FOUND", appErr.Code)

	promos, err := store.ListPromotions(ctx, false)
	require.NoError(t, err)
	require.Empty(t, promos, "promotion header must roll back with its targets")
}

func TestServiceCreateValidatesPercent(t *testing.T) {
	svc := &Service{Store: memdb.New()}
	_, err := svc.Create(context.Background(), CreateInput{
		Name:    "Too much",
		Kind:    KindPercent,
		Value:   dec("120"),
		Targets: []TargetInput{{Type: TargetProduct, ID: "6f1c2a0e-7d43-4c55-9a1b-2f9e0a1b2c3d"}},
	})
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
}
