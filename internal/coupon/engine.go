package coupon

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no active coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrAlreadyApplied is returned when a second, different coupon is requested
	// while one is already applied.
	ErrAlreadyApplied = errors.New("coupon already applied")
)

// Coupon is the runtime view of a coupon.
type Coupon struct {
	ID         uuid.UUID
	Code       string
	Percentage decimal.Decimal
	Active     bool
}

// Result is the outcome of applying a coupon to a subtotal.
type Result struct {
	CouponID   uuid.UUID       `json:"couponId"`
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
	Discount   decimal.Decimal `json:"discount"`
}

var hundred = decimal.NewFromInt(100)

// Lookup finds an active coupon by case-insensitive exact code match.
func Lookup(code string, coupons []Coupon) (Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Coupon{}, ErrNotFound
	}
	for _, c := range coupons {
		if c.Active && strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return Coupon{}, ErrNotFound
}

// Apply computes the discount of the coupon matching code on subtotal. The
// discount never exceeds the subtotal.
func Apply(subtotal decimal.Decimal, code string, coupons []Coupon) (Result, error) {
	c, err := Lookup(code, coupons)
	if err != nil {
		return Result{}, err
	}
	return Result{CouponID: c.ID, Code: c.Code, Percentage: c.Percentage, Discount: Discount(subtotal, c.Percentage)}, nil
}

// Discount returns subtotal × percentage / 100 bounded to [0, subtotal].
func Discount(subtotal, percentage decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !percentage.IsPositive() {
		return decimal.Zero
	}
	d := subtotal.Mul(percentage).Div(hundred)
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}

// Choose enforces the single-coupon rule. applied is the code the client
// currently holds, requested the code in this request. Re-applying the same
// code is allowed; naming a different one while a coupon is held is not.
func Choose(applied, requested string) (string, error) {
	applied = strings.TrimSpace(applied)
	requested = strings.TrimSpace(requested)
	switch {
	case applied == "":
		return requested, nil
	case requested == "" || strings.EqualFold(applied, requested):
		return applied, nil
	default:
		return "", ErrAlreadyApplied
	}
}
