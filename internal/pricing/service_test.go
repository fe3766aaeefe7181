package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/db/memdb"
)

func seedProduct(t *testing.T, store *memdb.Store, sku, price string, stock int32, category pgtype.UUID) db.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), db.CreateProductParams{
		Name: sku, Sku: sku, Price: dec(price), Stock: stock, CategoryID: category,
	})
	require.NoError(t, err)
	return p
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

func TestQuoteWithCoupon(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p1 := seedProduct(t, store, "P1", "100", 10, pgtype.UUID{})
	_, err := store.CreateCoupon(ctx, db.CreateCouponParams{Code: "SAVE10", Percentage: dec("10"), Active: true})
	require.NoError(t, err)

	svc := &Service{Store: store, TaxBps: 1800}
	q, err := svc.Quote(ctx, QuoteInput{Lines: []CartLine{{ProductID: p1.ID.String(), Quantity: 2}}, CouponCode: "save10"})
	require.NoError(t, err)
	requireDec(t, "200", q.Subtotal)
	requireDec(t, "20", q.CouponDiscount)
	requireDec(t, "32.4", q.Tax)
	requireDec(t, "212.4", q.Total)
}

func TestQuoteAppliesCategoryPromotion(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	cat, err := store.CreateCategory(ctx, db.CreateCategoryParams{Name: "Tea"})
	require.NoError(t, err)
	p1 := seedProduct(t, store, "P1", "100", 10, pgtype.UUID{Bytes: cat.ID, Valid: true})
	promo, err := store.CreatePromotion(ctx, db.CreatePromotionParams{Name: "Tea time", Kind: db.PromotionPercent, Value: dec("20"), Active: true})
	require.NoError(t, err)
	_, err = store.CreatePromotionTarget(ctx, db.CreatePromotionTargetParams{PromotionID: promo.ID, TargetType: db.TargetCategory, TargetID: cat.ID})
	require.NoError(t, err)

	svc := &Service{Store: store}
	q, err := svc.Quote(ctx, QuoteInput{Lines: []CartLine{{ProductID: p1.ID.String(), Quantity: 3}}})
	require.NoError(t, err)
	requireDec(t, "80", q.Lines[0].UnitPrice)
	requireDec(t, "240", q.Subtotal)
	require.Equal(t, promo.ID, *q.Lines[0].PromotionID)
}

func TestQuoteMergesLinesForStockCheck(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p1 := seedProduct(t, store, "P1", "5", 3, pgtype.UUID{})

	svc := &Service{Store: store}
	_, err := svc.Quote(ctx, QuoteInput{Lines: []CartLine{
		{ProductID: p1.ID.String(), Quantity: 2},
		{ProductID: p1.ID.String(), Quantity: 2},
	}})
	require.Equal(t, "INSUFFICIENT_STOCK", appCode(t, err))
	require.Contains(t, err.Error(), "only 3 units available")
}

func TestQuoteRejectsSecondCoupon(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p1 := seedProduct(t, store, "P1", "5", 3, pgtype.UUID{})

	svc := &Service{Store: store}
	_, err := svc.Quote(ctx, QuoteInput{
		Lines:         []CartLine{{ProductID: p1.ID.String(), Quantity: 1}},
		AppliedCoupon: "SAVE10",
		CouponCode:    "FESTIVE",
	})
	require.Equal(t, "COUPON_ALREADY_APPLIED", appCode(t, err))
}

func TestQuoteValidation(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p1 := seedProduct(t, store, "P1", "5", 3, pgtype.UUID{})
	svc := &Service{Store: store}

	_, err := svc.Quote(ctx, QuoteInput{Lines: []CartLine{{ProductID: p1.ID.String(), Quantity: 0}}})
	require.Equal(t, "VALIDATION_FAILED", appCode(t, err))

	_, err = svc.Quote(ctx, QuoteInput{})
	require.Equal(t, "VALIDATION_FAILED", appCode(t, err))

	_, err = svc.Quote(ctx, QuoteInput{Lines: []CartLine{{ProductID: p1.ID.String(), Quantity: 1}}, CouponCode: "NOPE"})
	require.Equal(t, "COUPON_NOT_FOUND", appCode(t, err))
}

func TestMergeLines(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	merged, order, err := MergeLines([]CartLine{
		{ProductID: b.String(), Quantity: 1},
		{ProductID: a.String(), Quantity: 4},
		{ProductID: b.String(), Quantity: 2},
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{b, a}, order)
	require.Equal(t, int32(3), merged[b])
	require.Equal(t, int32(4), merged[a])

	_, _, err = MergeLines([]CartLine{
		{ProductID: a.String(), Quantity: math.MaxInt32},
		{ProductID: a.String(), Quantity: 1},
	})
	require.Equal(t, "INVALID_QUANTITY", appCode(t, err))

	_, _, err = MergeLines([]CartLine{{ProductID: a.String(), Quantity: -1}})
	require.Equal(t, "INVALID_QUANTITY", appCode(t, err))
}

func TestQuoteRejectsOverflowingMergedQuantity(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p1 := seedProduct(t, store, "P1", "5", 3, pgtype.UUID{})

	svc := &Service{Store: store}
	_, err := svc.Quote(ctx, QuoteInput{Lines: []CartLine{
		{ProductID: p1.ID.String(), Quantity: 2000000000},
		{ProductID: p1.ID.String(), Quantity: 2000000000},
	}})
	require.Equal(t, "INVALID_QUANTITY", appCode(t, err))
}
