// Package sale commits checkouts: it prices the cart, writes the sale with its
// line items and payment, and reconciles stock in a single transaction.
package sale

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

const maxInvoiceAttempts = 3

// CommitInput is the finalized cart submitted at checkout.
type CommitInput struct {
	Lines            []pricing.CartLine `json:"lines" validate:"required,min=1,dive"`
	CouponCode       string             `json:"couponCode" validate:"max=64"`
	AppliedCoupon    string             `json:"appliedCoupon" validate:"max=64"`
	PaymentMethod    string             `json:"paymentMethod" validate:"required,max=32"`
	PaymentConfirmed bool               `json:"paymentConfirmed"`
	CustomerID       string             `json:"customerId" validate:"omitempty,uuid"`
	IdempotencyKey   string             `json:"idempotencyKey" validate:"max=128"`

	CashierID uuid.UUID `json:"-"`
}

// Receipt is a committed sale with its normalized line items.
type Receipt struct {
	Sale     db.Sale           `json:"sale"`
	Items    []db.SaleItem     `json:"items"`
	Payment  *db.Payment       `json:"payment,omitempty"`
	Totals   *pricing.Totals   `json:"totals,omitempty"`
	Replayed bool              `json:"replayed"`
	LowStock []events.StockLow `json:"-"`
}

// Service commits sales.
type Service struct {
	Store         db.Store
	Pricing       *pricing.Service
	Events        *events.Bus
	InvoicePrefix string
	Now           func() time.Time
	// NewInvoice overrides invoice number generation.
	NewInvoice func(prefix string, at time.Time) string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// InvoiceNumber returns "<prefix>-<ULID>". ULIDs drawn within the same
// millisecond are strictly increasing.
func InvoiceNumber(prefix string, at time.Time) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(at), entropy)
	entropyMu.Unlock()
	if prefix == "" {
		prefix = "INV"
	}
	return prefix + "-" + id.String()
}

func (s *Service) invoice(at time.Time) string {
	if s.NewInvoice != nil {
		return s.NewInvoice(s.InvoicePrefix, at)
	}
	return InvoiceNumber(s.InvoicePrefix, at)
}

// Commit prices the cart and persists the sale. Stock is decremented with a
// guarded update per product inside the same transaction as the sale header,
// items, movements and payment; any failure leaves no trace. A repeated
// idempotency key returns the sale recorded under it.
func (s *Service) Commit(ctx context.Context, in CommitInput) (Receipt, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Receipt{}, err
	}
	if !in.PaymentConfirmed {
		return Receipt{}, common.NewAppError("VALIDATION_FAILED", "payment must be confirmed before commit", http.StatusUnprocessableEntity, nil)
	}
	if in.CashierID == uuid.Nil {
		return Receipt{}, common.NewAppError("UNAUTHORIZED", "cashier identity required", http.StatusUnauthorized, nil)
	}
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	if in.IdempotencyKey != "" {
		if r, ok, err := s.replay(ctx, in.CashierID, in.IdempotencyKey); err != nil || ok {
			return r, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxInvoiceAttempts; attempt++ {
		receipt, err := s.commitOnce(ctx, in, s.invoice(s.now()))
		if err == nil {
			s.afterCommit(ctx, receipt)
			return receipt, nil
		}
		switch db.ConstraintName(err) {
		case "sales_invoice_no_key":
			lastErr = err
			continue
		case db.SalesIdempotencyConstraint:
			if r, ok, rerr := s.replay(ctx, in.CashierID, in.IdempotencyKey); rerr == nil && ok {
				return r, nil
			}
		case "sales_customer_id_fkey":
			return Receipt{}, common.ErrNotFound("customer not found")
		}
		if pricing.IsInsufficientStock(err) {
			obs.ObserveSale("insufficient_stock", in.PaymentMethod, 0)
		} else {
			obs.ObserveSale("error", in.PaymentMethod, 0)
		}
		return Receipt{}, err
	}
	obs.ObserveSale("error", in.PaymentMethod, 0)
	return Receipt{}, fmt.Errorf("allocate invoice number: %w", lastErr)
}

// replay looks the key up within the cashier's own sales only.
func (s *Service) replay(ctx context.Context, cashierID uuid.UUID, key string) (Receipt, bool, error) {
	existing, err := s.Store.GetSaleByIdempotencyKey(ctx, cashierID, key)
	if errors.Is(err, db.ErrNotFound) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	r, err := s.receipt(ctx, existing)
	if err != nil {
		return Receipt{}, false, err
	}
	r.Replayed = true
	return r, true, nil
}

func (s *Service) commitOnce(ctx context.Context, in CommitInput, invoiceNo string) (Receipt, error) {
	var receipt Receipt
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		quote, err := s.Pricing.QuoteWith(ctx, q, pricing.QuoteInput{
			Lines:         in.Lines,
			CouponCode:    in.CouponCode,
			AppliedCoupon: in.AppliedCoupon,
		})
		if err != nil {
			return err
		}
		if len(quote.Lines) == 0 {
			return common.NewAppError("VALIDATION_FAILED", "cart has no sellable lines", http.StatusUnprocessableEntity, nil)
		}

		snapshot := make([]db.SaleItemSnapshot, 0, len(quote.Lines))
		for _, l := range quote.Lines {
			snapshot = append(snapshot, db.SaleItemSnapshot{
				ProductID: l.ProductID.String(),
				Name:      l.Name,
				Sku:       l.Sku,
				Quantity:  l.Quantity,
				Price:     l.UnitPrice,
				BasePrice: l.BasePrice,
			})
		}
		items, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("encode sale items: %w", err)
		}

		params := db.CreateSaleParams{
			InvoiceNo:        invoiceNo,
			CashierID:        in.CashierID,
			Subtotal:         quote.Subtotal,
			Discount:         quote.CouponDiscount,
			Tax:              quote.Tax,
			Total:            quote.Total,
			PaymentMethod:    in.PaymentMethod,
			PaymentConfirmed: true,
			CouponCode:       db.Text(quote.CouponCode),
			Items:            items,
			IdempotencyKey:   db.Text(in.IdempotencyKey),
			CreatedAt:        s.now(),
		}
		if quote.CouponCode != "" {
			params.DiscountRate = decimal.NullDecimal{Decimal: quote.DiscountRate, Valid: true}
		}
		if in.CustomerID != "" {
			params.CustomerID = pgtype.UUID{Bytes: uuid.MustParse(in.CustomerID), Valid: true}
		}
		sale, err := q.CreateSale(ctx, params)
		if err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		receipt.Sale = sale

		for i, l := range quote.Lines {
			item, err := q.CreateSaleItem(ctx, db.CreateSaleItemParams{
				SaleID:       sale.ID,
				LineNo:       int32(i + 1),
				ProductID:    l.ProductID,
				Quantity:     l.Quantity,
				UnitPrice:    l.UnitPrice,
				BasePrice:    l.BasePrice,
				NameSnapshot: l.Name,
				SkuSnapshot:  l.Sku,
			})
			if err != nil {
				return fmt.Errorf("create sale item: %w", err)
			}
			receipt.Items = append(receipt.Items, item)

			remaining, err := q.DecrementStock(ctx, l.ProductID, l.Quantity)
			if errors.Is(err, db.ErrInsufficientStock) {
				var available int32
				if p, perr := q.GetProduct(ctx, l.ProductID); perr == nil && !p.IsDeleted {
					available = p.Stock
				}
				return pricing.InsufficientStock(l.ProductID, l.Quantity, available, "commit")
			}
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if _, err := q.CreateStockMovement(ctx, db.CreateStockMovementParams{
				ProductID: l.ProductID,
				UserID:    pgtype.UUID{Bytes: in.CashierID, Valid: true},
				Kind:      db.MovementSaleOut,
				Quantity:  -l.Quantity,
				Reason:    "sale " + invoiceNo,
				RefTable:  db.Text("sales"),
				RefID:     pgtype.UUID{Bytes: sale.ID, Valid: true},
			}); err != nil {
				return fmt.Errorf("record sale movement: %w", err)
			}
			if p, ok := quote.Products[l.ProductID]; ok && remaining <= p.MinStock {
				receipt.LowStock = append(receipt.LowStock, events.StockLow{
					ProductID: p.ID.String(),
					Sku:       p.Sku,
					Name:      p.Name,
					Stock:     remaining,
					MinStock:  p.MinStock,
				})
			}
		}

		payment, err := q.CreatePayment(ctx, db.CreatePaymentParams{
			SaleID:    sale.ID,
			Method:    in.PaymentMethod,
			Amount:    quote.Total,
			Confirmed: true,
		})
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		receipt.Payment = &payment
		totals := quote.Totals
		receipt.Totals = &totals
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// afterCommit publishes events and metrics. The sale is already durable, so
// failures here are logged and never surface to the caller.
func (s *Service) afterCommit(ctx context.Context, r Receipt) {
	amount, _ := r.Sale.Total.Float64()
	obs.ObserveSale("ok", r.Sale.PaymentMethod, amount)
	for range r.Items {
		obs.ObserveMovement(db.MovementSaleOut)
	}
	if s.Events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	logger := zerolog.Ctx(ctx)
	if _, err := s.Events.Emit(ctx, events.TopicSaleCompleted, r.Sale.ID, events.SaleCompleted{
		SaleID:        r.Sale.ID.String(),
		InvoiceNo:     r.Sale.InvoiceNo,
		CashierID:     r.Sale.CashierID.String(),
		Total:         r.Sale.Total.StringFixed(2),
		PaymentMethod: r.Sale.PaymentMethod,
		Items:         len(r.Items),
	}); err != nil {
		logger.Warn().Err(err).Str("invoice_no", r.Sale.InvoiceNo).Msg("emit sale.completed")
	}
	for _, low := range r.LowStock {
		if _, err := s.Events.Emit(ctx, events.TopicStockLow, uuid.MustParse(low.ProductID), low); err != nil {
			logger.Warn().Err(err).Str("product_id", low.ProductID).Msg("emit stock.low")
		}
	}
}

func (s *Service) receipt(ctx context.Context, sale db.Sale) (Receipt, error) {
	items, err := s.Store.ListSaleItems(ctx, sale.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("list sale items: %w", err)
	}
	return Receipt{Sale: sale, Items: items}, nil
}

// Get returns a sale with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Receipt, error) {
	sale, err := s.Store.GetSale(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return Receipt{}, common.ErrNotFound("sale not found")
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("get sale: %w", err)
	}
	return s.receipt(ctx, sale)
}

// GetByInvoice looks a sale up by its invoice number.
func (s *Service) GetByInvoice(ctx context.Context, invoiceNo string) (Receipt, error) {
	sale, err := s.Store.GetSaleByInvoice(ctx, strings.TrimSpace(invoiceNo))
	if errors.Is(err, db.ErrNotFound) {
		return Receipt{}, common.ErrNotFound("sale not found")
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("get sale by invoice: %w", err)
	}
	return s.receipt(ctx, sale)
}

// ListInput filters the sales listing. From is inclusive, To exclusive.
type ListInput struct {
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

// List returns sale headers, newest first.
func (s *Service) List(ctx context.Context, in ListInput) ([]db.Sale, error) {
	limit, offset := common.Window(in.Page, in.PerPage)
	sales, err := s.Store.ListSales(ctx, db.ListSalesParams{
		From:   db.PgTime(in.From),
		To:     db.PgTime(in.To),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}
