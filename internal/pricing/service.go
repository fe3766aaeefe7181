package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/promotion"
)

// CartLine is a requested product quantity.
type CartLine struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int32  `json:"quantity" validate:"gt=0"`
}

// QuoteInput is the cart submitted for pricing.
type QuoteInput struct {
	Lines []CartLine `json:"lines" validate:"required,min=1,dive"`
	// CouponCode is the coupon requested in this call.
	CouponCode string `json:"couponCode" validate:"max=64"`
	// AppliedCoupon is the coupon the client already holds, if any.
	AppliedCoupon string `json:"appliedCoupon" validate:"max=64"`
}

// Quote is a priced cart together with the catalog rows it was priced from.
type Quote struct {
	Totals
	Products map[uuid.UUID]db.Product `json:"-"`
}

// Service prices carts against the current catalog, promotions and coupons.
type Service struct {
	Store  db.Querier
	TaxBps int64
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Quote prices the cart and performs the advisory stock check.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (Quote, error) {
	return s.QuoteWith(ctx, s.Store, in)
}

// QuoteWith prices the cart reading through q.
func (s *Service) QuoteWith(ctx context.Context, q db.Querier, in QuoteInput) (Quote, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Quote{}, err
	}
	code, err := coupon.Choose(in.AppliedCoupon, in.CouponCode)
	if err != nil {
		return Quote{}, coupon.AsAppError(err)
	}

	merged, order, err := MergeLines(in.Lines)
	if err != nil {
		return Quote{}, err
	}
	products, err := q.GetProductsByIDs(ctx, order)
	if err != nil {
		return Quote{}, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uuid.UUID]db.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	set, err := promotion.LoadSet(ctx, q)
	if err != nil {
		return Quote{}, err
	}
	now := s.now()

	lines := make([]Line, 0, len(order))
	for _, id := range order {
		p, ok := byID[id]
		if !ok || p.IsDeleted {
			return Quote{}, common.ErrNotFound("product not found").WithDetails(map[string]string{"productId": id.String()})
		}
		qty := merged[id]
		if qty > p.Stock {
			return Quote{}, InsufficientStock(id, qty, p.Stock, "advisory")
		}
		res := set.Resolve(promotion.ProductFromModel(p), p.Price, now)
		lines = append(lines, Line{
			ProductID:   id,
			Name:        p.Name,
			Sku:         p.Sku,
			Quantity:    qty,
			BasePrice:   p.Price,
			UnitPrice:   res.Price,
			PromotionID: res.PromotionID,
		})
	}

	var applied *coupon.Coupon
	if code != "" {
		coupons, err := coupon.Active(ctx, q)
		if err != nil {
			return Quote{}, err
		}
		c, err := coupon.Lookup(code, coupons)
		if err != nil {
			return Quote{}, coupon.AsAppError(err)
		}
		applied = &c
	}

	taxBps := s.TaxBps
	if taxBps == 0 {
		taxBps = DefaultTaxBps
	}
	return Quote{Totals: ComputeTotals(lines, applied, taxBps), Products: byID}, nil
}

// MergeLines sums quantities per product, keeping first-seen order. Sums
// are taken in int64; a product whose combined quantity is not positive or
// does not fit an int32 fails with INVALID_QUANTITY.
func MergeLines(lines []CartLine) (map[uuid.UUID]int32, []uuid.UUID, error) {
	sums := make(map[uuid.UUID]int64, len(lines))
	order := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		id, err := uuid.Parse(l.ProductID)
		if err != nil {
			return nil, nil, common.ErrBadRequest("invalid product id").WithDetails(map[string]string{"productId": l.ProductID})
		}
		if l.Quantity <= 0 {
			return nil, nil, InvalidQuantity(id, int64(l.Quantity))
		}
		if _, ok := sums[id]; !ok {
			order = append(order, id)
		}
		sums[id] += int64(l.Quantity)
		if sums[id] > math.MaxInt32 {
			return nil, nil, InvalidQuantity(id, sums[id])
		}
	}
	merged := make(map[uuid.UUID]int32, len(sums))
	for id, qty := range sums {
		merged[id] = int32(qty)
	}
	return merged, order, nil
}

// QuantityProblem describes a refused line quantity.
type QuantityProblem struct {
	ProductID string `json:"productId"`
	Requested int64  `json:"requested"`
}

// InvalidQuantity builds the INVALID_QUANTITY error for a cart line.
func InvalidQuantity(productID uuid.UUID, requested int64) *common.AppError {
	msg := fmt.Sprintf("quantity must be between 1 and %d", math.MaxInt32)
	return common.NewAppError("INVALID_QUANTITY", msg, http.StatusUnprocessableEntity, nil).WithDetails(QuantityProblem{
		ProductID: productID.String(),
		Requested: requested,
	})
}

// StockShortage describes a refused quantity.
type StockShortage struct {
	ProductID string `json:"productId"`
	Requested int32  `json:"requested"`
	Available int32  `json:"available"`
	Stage     string `json:"stage"`
}

// InsufficientStock builds the INSUFFICIENT_STOCK error. stage is "advisory"
// for the pre-commit check and "commit" when the guarded decrement refused.
func InsufficientStock(productID uuid.UUID, requested, available int32, stage string) *common.AppError {
	if available < 0 {
		available = 0
	}
	msg := fmt.Sprintf("only %d units available", available)
	return common.NewAppError("INSUFFICIENT_STOCK", msg, http.StatusConflict, nil).WithDetails(StockShortage{
		ProductID: productID.String(),
		Requested: requested,
		Available: available,
		Stage:     stage,
	})
}

// IsInsufficientStock reports whether err is an INSUFFICIENT_STOCK error.
func IsInsufficientStock(err error) bool {
	var appErr *common.AppError
	return errors.As(err, &appErr) && appErr.Code == "INSUFFICIENT_STOCK"
}
