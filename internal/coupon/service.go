package coupon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
)

// Querier captures the database methods required by the coupon service.
type Querier interface {
	CreateCoupon(ctx context.Context, arg db.CreateCouponParams) (db.Coupon, error)
	ListCoupons(ctx context.Context, activeOnly bool) ([]db.Coupon, error)
	SetCouponActive(ctx context.Context, id uuid.UUID, active bool) (db.Coupon, error)
}

// Service manages coupons.
type Service struct {
	Q Querier
}

// CreateInput is the payload accepted when creating a coupon.
type CreateInput struct {
	Code       string          `json:"code" validate:"required,max=64"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     *bool           `json:"active"`
}

// Create stores a new coupon. Codes are unique regardless of case.
func (s *Service) Create(ctx context.Context, in CreateInput, createdBy *uuid.UUID) (db.Coupon, error) {
	if err := common.ValidateStruct(in); err != nil {
		return db.Coupon{}, err
	}
	if !in.Percentage.IsPositive() || in.Percentage.GreaterThan(hundred) {
		return db.Coupon{}, common.NewAppError("VALIDATION_FAILED", "percentage must be in (0, 100]", http.StatusUnprocessableEntity, nil)
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	c, err := s.Q.CreateCoupon(ctx, db.CreateCouponParams{
		Code:       strings.TrimSpace(in.Code),
		Percentage: in.Percentage,
		Active:     active,
		CreatedBy:  db.PgUUID(createdBy),
	})
	if errors.Is(err, db.ErrConflict) {
		return db.Coupon{}, common.ErrConflict("coupon code already exists")
	}
	if err != nil {
		return db.Coupon{}, fmt.Errorf("create coupon: %w", err)
	}
	return c, nil
}

// List returns stored coupons.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]db.Coupon, error) {
	return s.Q.ListCoupons(ctx, activeOnly)
}

// SetActive toggles a coupon.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (db.Coupon, error) {
	c, err := s.Q.SetCouponActive(ctx, id, active)
	if errors.Is(err, db.ErrNotFound) {
		return db.Coupon{}, common.ErrNotFound("coupon not found")
	}
	return c, err
}

// Active loads the active coupons as engine inputs.
func (s *Service) Active(ctx context.Context) ([]Coupon, error) {
	return Active(ctx, s.Q)
}

// Active loads the active coupons from q.
func Active(ctx context.Context, q interface {
	ListCoupons(ctx context.Context, activeOnly bool) ([]db.Coupon, error)
}) ([]Coupon, error) {
	rows, err := q.ListCoupons(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	out := make([]Coupon, 0, len(rows))
	for _, c := range rows {
		out = append(out, Coupon{ID: c.ID, Code: c.Code, Percentage: c.Percentage, Active: c.Active})
	}
	return out, nil
}

// Preview applies code to subtotal without side effects.
func (s *Service) Preview(ctx context.Context, subtotal decimal.Decimal, code string) (Result, error) {
	coupons, err := s.Active(ctx)
	if err != nil {
		return Result{}, err
	}
	res, err := Apply(subtotal, code, coupons)
	if err != nil {
		return Result{}, AsAppError(err)
	}
	return res, nil
}

// AsAppError maps engine errors to their API form.
func AsAppError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("COUPON_NOT_FOUND", "coupon not found", http.StatusNotFound, err)
	case errors.Is(err, ErrAlreadyApplied):
		return common.NewAppError("COUPON_ALREADY_APPLIED", "remove the applied coupon before applying another", http.StatusConflict, err)
	default:
		return err
	}
}
