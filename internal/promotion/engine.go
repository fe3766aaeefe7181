package promotion

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Promotion kinds.
const (
	KindPercent = "percent"
	KindFixed   = "fixed"
)

// Target types.
const (
	TargetProduct  = "product"
	TargetCategory = "category"
)

// Promotion is the runtime view of a promotion rule.
type Promotion struct {
	ID       uuid.UUID
	Kind     string
	Value    decimal.Decimal
	StartsAt *time.Time
	EndsAt   *time.Time
	Active   bool
}

// Target links a promotion to a product or a whole category.
type Target struct {
	PromotionID uuid.UUID
	TargetType  string
	TargetID    uuid.UUID
}

// Product carries the fields of a product that promotions can match on.
type Product struct {
	ID         uuid.UUID
	CategoryID *uuid.UUID
}

// ValidAt reports whether the promotion is active and now falls inside its
// window. A missing bound is unbounded on that side.
func (p Promotion) ValidAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

var hundred = decimal.NewFromInt(100)

// Apply returns the candidate unit price after applying the promotion to price.
func (p Promotion) Apply(price decimal.Decimal) decimal.Decimal {
	switch p.Kind {
	case KindPercent:
		out := price.Mul(decimal.NewFromInt(1).Sub(p.Value.Div(hundred)))
		if out.IsNegative() {
			return decimal.Zero
		}
		return out
	case KindFixed:
		out := price.Sub(p.Value)
		if out.IsNegative() {
			return decimal.Zero
		}
		return out
	default:
		return price
	}
}

// Resolution describes the outcome of resolving a unit price.
type Resolution struct {
	Price       decimal.Decimal
	PromotionID *uuid.UUID
}

// Resolve finds the lowest price reachable through any valid promotion that
// targets the product directly or through its category. It never returns a
// price above basePrice.
func Resolve(product Product, basePrice decimal.Decimal, now time.Time, promotions []Promotion, targets []Target) Resolution {
	byID := make(map[uuid.UUID]Promotion, len(promotions))
	for _, p := range promotions {
		byID[p.ID] = p
	}
	best := Resolution{Price: basePrice}
	seen := make(map[uuid.UUID]bool)
	for _, t := range targets {
		if !matches(t, product) || seen[t.PromotionID] {
			continue
		}
		seen[t.PromotionID] = true
		promo, ok := byID[t.PromotionID]
		if !ok || !promo.ValidAt(now) {
			continue
		}
		candidate := promo.Apply(basePrice)
		if candidate.LessThan(best.Price) {
			id := promo.ID
			best = Resolution{Price: candidate, PromotionID: &id}
		}
	}
	return best
}

// ResolveUnitPrice returns the promotion-discounted unit price for product.
func ResolveUnitPrice(product Product, basePrice decimal.Decimal, now time.Time, promotions []Promotion, targets []Target) decimal.Decimal {
	return Resolve(product, basePrice, now, promotions, targets).Price
}

func matches(t Target, product Product) bool {
	switch t.TargetType {
	case TargetProduct:
		return t.TargetID == product.ID
	case TargetCategory:
		return product.CategoryID != nil && t.TargetID == *product.CategoryID
	default:
		return false
	}
}

// Set is a snapshot of promotions and targets taken at one point in time.
type Set struct {
	Promotions []Promotion
	Targets    []Target
}

// Resolve resolves product against the snapshot.
func (s Set) Resolve(product Product, basePrice decimal.Decimal, now time.Time) Resolution {
	return Resolve(product, basePrice, now, s.Promotions, s.Targets)
}
