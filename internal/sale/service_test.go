package sale

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/db/memdb"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

var cashier = uuid.MustParse("0b7e6c8f-31a1-4f0e-9d35-6a4c1e2f7a10")

func newService(store db.Store) *Service {
	return &Service{
		Store:   store,
		Pricing: &pricing.Service{Store: store, TaxBps: 1800},
		Events:  &events.Bus{Store: store},
	}
}

func seedProduct(t *testing.T, store *memdb.Store, sku string, price string, stock, minStock int32) db.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), db.CreateProductParams{
		Name: "Product " + sku, Sku: sku, Price: decimal.RequireFromString(price), Stock: stock, MinStock: minStock,
	})
	require.NoError(t, err)
	return p
}

func stockOf(t *testing.T, store *memdb.Store, id uuid.UUID) int32 {
	t.Helper()
	p, err := store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func movements(t *testing.T, store *memdb.Store, id uuid.UUID) []db.StockMovement {
	t.Helper()
	rows, err := store.ListStockMovements(context.Background(), db.ListStockMovementsParams{
		ProductID: pgtype.UUID{Bytes: id, Valid: true}, Limit: 100,
	})
	require.NoError(t, err)
	return rows
}

func commitInput(lines ...pricing.CartLine) CommitInput {
	return CommitInput{Lines: lines, PaymentMethod: "cash", PaymentConfirmed: true, CashierID: cashier}
}

func appErr(t *testing.T, err error) *common.AppError {
	t.Helper()
	var ae *common.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %v", err)
	return ae
}

func TestCommitDecrementsStockAndRecordsMovement(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "100", 10, 0)
	svc := newService(store)

	receipt, err := svc.Commit(ctx, commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 2}))
	require.NoError(t, err)
	require.Regexp(t, `^INV-[0-9A-Z]{26}$`, receipt.Sale.InvoiceNo)
	require.True(t, receipt.Sale.Total.Equal(decimal.RequireFromString("236")))
	require.Len(t, receipt.Items, 1)
	require.Equal(t, "P1", receipt.Items[0].SkuSnapshot)
	require.NotNil(t, receipt.Payment)
	require.True(t, receipt.Payment.Amount.Equal(receipt.Sale.Total))

	require.Equal(t, int32(8), stockOf(t, store, p.ID))
	moves := movements(t, store, p.ID)
	require.Len(t, moves, 1)
	require.Equal(t, db.MovementSaleOut, moves[0].Kind)
	require.Equal(t, int32(-2), moves[0].Quantity)
	require.Equal(t, "sale "+receipt.Sale.InvoiceNo, moves[0].Reason)

	var snapshot []db.SaleItemSnapshot
	require.NoError(t, json.Unmarshal(receipt.Sale.Items, &snapshot))
	require.Len(t, snapshot, 1)
	require.Equal(t, p.ID.String(), snapshot[0].ProductID)
	require.Equal(t, int32(2), snapshot[0].Quantity)

	require.Len(t, store.Events(events.TopicSaleCompleted), 1)
}

func TestCommitRejectsInsufficientStock(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "100", 3, 0)
	svc := newService(store)

	_, err := svc.Commit(ctx, commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 5}))
	ae := appErr(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", ae.Code)
	require.Contains(t, ae.Message, "only 3 units available")

	require.Equal(t, int32(3), stockOf(t, store, p.ID))
	require.Empty(t, movements(t, store, p.ID))
	sales, err := store.ListSales(ctx, db.ListSalesParams{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, sales)
}

// staleStore reports inflated stock to the pricing read so the advisory check
// passes and the guarded decrement has to refuse the sale.
type staleStore struct {
	*memdb.Store
}

type staleQuerier struct {
	db.Querier
}

func (q staleQuerier) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]db.Product, error) {
	rows, err := q.Querier.GetProductsByIDs(ctx, ids)
	for i := range rows {
		rows[i].Stock += 100
	}
	return rows, err
}

func (s staleStore) ExecTx(ctx context.Context, fn func(db.Querier) error) error {
	return s.Store.ExecTx(ctx, func(q db.Querier) error { return fn(staleQuerier{q}) })
}

func TestCommitGuardRollsBackWholeSale(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	plenty := seedProduct(t, store, "P1", "10", 50, 0)
	scarce := seedProduct(t, store, "P2", "10", 3, 0)
	svc := newService(staleStore{store})

	_, err := svc.Commit(ctx, commitInput(
		pricing.CartLine{ProductID: plenty.ID.String(), Quantity: 4},
		pricing.CartLine{ProductID: scarce.ID.String(), Quantity: 5},
	))
	ae := appErr(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", ae.Code)
	shortage, ok := ae.Details.(pricing.StockShortage)
	require.True(t, ok)
	require.Equal(t, "commit", shortage.Stage)
	require.Equal(t, int32(3), shortage.Available)

	require.Equal(t, int32(50), stockOf(t, store, plenty.ID), "earlier line must roll back")
	require.Equal(t, int32(3), stockOf(t, store, scarce.ID))
	require.Empty(t, movements(t, store, plenty.ID))
	require.Empty(t, store.Events(""))
}

func TestCommitRollsBackOnPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 5, 0)
	store.Fail = func(op string) error {
		if op == "CreatePayment" {
			return errors.New("connection reset")
		}
		return nil
	}
	svc := newService(store)

	_, err := svc.Commit(ctx, commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 2}))
	require.ErrorContains(t, err, "connection reset")
	store.Fail = nil
	require.Equal(t, int32(5), stockOf(t, store, p.ID))
	require.Empty(t, movements(t, store, p.ID))
}

func TestCommitIdempotencyKeyReplaysSale(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 5, 0)
	svc := newService(store)

	in := commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 2})
	in.IdempotencyKey = "till-4-0001"
	first, err := svc.Commit(ctx, in)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := svc.Commit(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Sale.ID, second.Sale.ID)
	require.Len(t, second.Items, 1)
	require.Equal(t, int32(3), stockOf(t, store, p.ID))
}

func TestCommitRetriesInvoiceCollision(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 5, 0)
	svc := newService(store)

	calls := 0
	svc.NewInvoice = func(prefix string, _ time.Time) string {
		calls++
		if calls == 1 {
			return prefix + "-FIXED"
		}
		return prefix + "-NEXT"
	}
	svc.InvoicePrefix = "POS"
	first, err := svc.Commit(ctx, commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, "POS-FIXED", first.Sale.InvoiceNo)

	calls = 0
	second, err := svc.Commit(ctx, commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, "POS-NEXT", second.Sale.InvoiceNo)
	require.Equal(t, int32(3), stockOf(t, store, p.ID))
}

func TestConcurrentCommitsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 5, 0)
	svc := newService(store)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		refused  int
		unexpect []error
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Commit(ctx, commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case pricing.IsInsufficientStock(err):
				refused++
			default:
				unexpect = append(unexpect, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, unexpect)
	require.Equal(t, 5, ok)
	require.Equal(t, 7, refused)
	require.Equal(t, int32(0), stockOf(t, store, p.ID))
	require.Len(t, movements(t, store, p.ID), 5)
}

func TestCommitEmitsLowStockEvent(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 6, 5)
	svc := newService(store)

	_, err := svc.Commit(ctx, commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 2}))
	require.NoError(t, err)

	lows := store.Events(events.TopicStockLow)
	require.Len(t, lows, 1)
	var payload events.StockLow
	require.NoError(t, json.Unmarshal(lows[0].Payload, &payload))
	require.Equal(t, int32(4), payload.Stock)
	require.Equal(t, int32(5), payload.MinStock)
}

func TestCommitStoresDiscountRate(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "100", 10, 0)
	_, err := store.CreateCoupon(ctx, db.CreateCouponParams{Code: "SAVE10", Percentage: decimal.RequireFromString("10"), Active: true})
	require.NoError(t, err)
	svc := newService(store)

	in := commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 2})
	in.CouponCode = "save10"
	receipt, err := svc.Commit(ctx, in)
	require.NoError(t, err)
	require.True(t, receipt.Sale.Discount.Equal(decimal.RequireFromString("20")))
	require.True(t, receipt.Sale.DiscountRate.Valid)
	require.True(t, receipt.Sale.DiscountRate.Decimal.Equal(decimal.RequireFromString("0.1")))
	require.True(t, receipt.Sale.Total.Equal(decimal.RequireFromString("212.4")))
	require.Equal(t, "SAVE10", receipt.Sale.CouponCode.String)
}

func TestCommitValidation(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 5, 0)
	svc := newService(store)

	in := commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 1})
	in.PaymentConfirmed = false
	_, err := svc.Commit(ctx, in)
	require.Equal(t, "VALIDATION_FAILED", appErr(t, err).Code)

	in = commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 1})
	in.CashierID = uuid.Nil
	_, err = svc.Commit(ctx, in)
	require.Equal(t, "UNAUTHORIZED", appErr(t, err).Code)

	in = commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 1})
	in.CustomerID = uuid.NewString()
	_, err = svc.Commit(ctx, in)
	require.Equal(t, "NOT_FOUND", appErr(t, err).Code)
	require.Equal(t, int32(5), stockOf(t, store, p.ID))
}

func TestCommitRejectsDuplicateLinesOverStock(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 3, 0)
	svc := newService(store)

	_, err := svc.Commit(ctx, commitInput(
		pricing.CartLine{ProductID: p.ID.String(), Quantity: 2},
		pricing.CartLine{ProductID: p.ID.String(), Quantity: 2},
	))
	ae := appErr(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", ae.Code)
	require.Equal(t, int32(4), ae.Details.(pricing.StockShortage).Requested)
	require.Equal(t, int32(3), stockOf(t, store, p.ID))
}

func TestCommitRejectsOverflowingDuplicateLines(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 3, 0)
	svc := newService(store)

	_, err := svc.Commit(ctx, commitInput(
		pricing.CartLine{ProductID: p.ID.String(), Quantity: 2000000000},
		pricing.CartLine{ProductID: p.ID.String(), Quantity: 2000000000},
	))
	require.Equal(t, "INVALID_QUANTITY", appErr(t, err).Code)
	require.Equal(t, int32(3), stockOf(t, store, p.ID))
	require.Empty(t, movements(t, store, p.ID))

	sales, err := store.ListSales(ctx, db.ListSalesParams{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestReceiptKeepsCartOrder(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	a := seedProduct(t, store, "A", "10", 5, 0)
	b := seedProduct(t, store, "B", "10", 5, 0)
	c := seedProduct(t, store, "C", "10", 5, 0)
	svc := newService(store)

	committed, err := svc.Commit(ctx, commitInput(
		pricing.CartLine{ProductID: c.ID.String(), Quantity: 1},
		pricing.CartLine{ProductID: a.ID.String(), Quantity: 1},
		pricing.CartLine{ProductID: b.ID.String(), Quantity: 1},
		pricing.CartLine{ProductID: c.ID.String(), Quantity: 1},
	))
	require.NoError(t, err)

	var snapshot []db.SaleItemSnapshot
	require.NoError(t, json.Unmarshal(committed.Sale.Items, &snapshot))

	got, err := svc.Get(ctx, committed.Sale.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	for i, it := range got.Items {
		require.Equal(t, int32(i+1), it.LineNo)
		require.Equal(t, snapshot[i].Sku, it.SkuSnapshot)
	}
	require.Equal(t, []string{"C", "A", "B"}, []string{got.Items[0].SkuSnapshot, got.Items[1].SkuSnapshot, got.Items[2].SkuSnapshot})
	require.Equal(t, int32(2), got.Items[0].Quantity)
}

func TestIdempotencyKeyScopedToCashier(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	p := seedProduct(t, store, "P1", "10", 5, 0)
	svc := newService(store)

	first := commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 1})
	first.IdempotencyKey = "till-0001"
	r1, err := svc.Commit(ctx, first)
	require.NoError(t, err)

	other := commitInput(pricing.CartLine{ProductID: p.ID.String(), Quantity: 2})
	other.IdempotencyKey = "till-0001"
	other.CashierID = uuid.New()
	r2, err := svc.Commit(ctx, other)
	require.NoError(t, err)
	require.False(t, r2.Replayed)
	require.NotEqual(t, r1.Sale.ID, r2.Sale.ID)
	require.Equal(t, other.CashierID, r2.Sale.CashierID)
	require.Equal(t, int32(2), stockOf(t, store, p.ID))

	again, err := svc.Commit(ctx, first)
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, r1.Sale.ID, again.Sale.ID)
}
