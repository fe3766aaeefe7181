package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/coupon"
)

// DefaultTaxBps is the sales tax applied when none is configured.
const DefaultTaxBps int64 = 1800

// Line describes a priced cart line. UnitPrice is the promotion-resolved
// price; BasePrice is the catalog price it was derived from.
type Line struct {
	ProductID   uuid.UUID       `json:"productId"`
	Name        string          `json:"name"`
	Sku         string          `json:"sku"`
	Quantity    int32           `json:"quantity"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	PromotionID *uuid.UUID      `json:"promotionId,omitempty"`
}

// Totals aggregates computed pricing components. Every amount is rounded
// half-up to two decimal places and Total = Subtotal - CouponDiscount + Tax.
type Totals struct {
	Lines          []Line          `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	CouponCode     string          `json:"couponCode,omitempty"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	DiscountRate   decimal.Decimal `json:"discountRate"`
	AfterCoupon    decimal.Decimal `json:"afterCoupon"`
	TaxRateBps     int64           `json:"taxRateBps"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
}

var (
	hundred = decimal.NewFromInt(100)
	tenK    = decimal.NewFromInt(10000)
)

// Round rounds a monetary amount half-up to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeTotals calculates cart totals: subtotal from the resolved unit
// prices, the coupon discount on the subtotal, tax on the discounted amount,
// and the payable total. Lines with a non-positive quantity are ignored. The
// result depends only on its arguments.
func ComputeTotals(lines []Line, c *coupon.Coupon, taxBps int64) Totals {
	out := Totals{Lines: make([]Line, 0, len(lines)), TaxRateBps: taxBps}
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		l.UnitPrice = Round(l.UnitPrice)
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
		subtotal = subtotal.Add(l.LineTotal)
		out.Lines = append(out.Lines, l)
	}
	out.Subtotal = Round(subtotal)

	out.CouponDiscount = decimal.Zero
	out.DiscountRate = decimal.Zero
	if c != nil {
		out.CouponCode = c.Code
		out.CouponDiscount = Round(coupon.Discount(out.Subtotal, c.Percentage))
		out.DiscountRate = c.Percentage.Div(hundred)
	}
	out.AfterCoupon = out.Subtotal.Sub(out.CouponDiscount)
	out.Tax = Round(out.AfterCoupon.Mul(decimal.NewFromInt(taxBps)).Div(tenK))
	out.Total = out.AfterCoupon.Add(out.Tax)
	return out
}
