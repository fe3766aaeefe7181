package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const promotionColumns = `id, name, kind, value, starts_at, ends_at, active, created_at`

func scanPromotion(row pgx.Row) (Promotion, error) {
	var p Promotion
	err := row.Scan(&p.ID, &p.Name, &p.Kind, &p.Value, &p.StartsAt, &p.EndsAt, &p.Active, &p.CreatedAt)
	return p, mapErr(err)
}

type CreatePromotionParams struct {
	Name     string
	Kind     string
	Value    decimal.Decimal
	StartsAt pgtype.Timestamptz
	EndsAt   pgtype.Timestamptz
	Active   bool
}

func (q *Queries) CreatePromotion(ctx context.Context, arg CreatePromotionParams) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, `
		INSERT INTO promotions (name, kind, value, starts_at, ends_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+promotionColumns,
		arg.Name, arg.Kind, arg.Value, arg.StartsAt, arg.EndsAt, arg.Active))
}

func (q *Queries) SetPromotionActive(ctx context.Context, id uuid.UUID, active bool) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, `
		UPDATE promotions SET active = $2 WHERE id = $1
		RETURNING `+promotionColumns, id, active))
}

func (q *Queries) ListPromotions(ctx context.Context, activeOnly bool) ([]Promotion, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+promotionColumns+` FROM promotions
		WHERE (NOT $1::boolean OR active)
		ORDER BY created_at, id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (q *Queries) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type CreatePromotionTargetParams struct {
	PromotionID uuid.UUID
	TargetType  string
	TargetID    uuid.UUID
}

func (q *Queries) CreatePromotionTarget(ctx context.Context, arg CreatePromotionTargetParams) (PromotionTarget, error) {
	var t PromotionTarget
	err := q.db.QueryRow(ctx, `
		INSERT INTO promotion_targets (promotion_id, target_type, target_id)
		VALUES ($1, $2, $3)
		RETURNING id, promotion_id, target_type, target_id`,
		arg.PromotionID, arg.TargetType, arg.TargetID).Scan(&t.ID, &t.PromotionID, &t.TargetType, &t.TargetID)
	return t, mapErr(err)
}

func (q *Queries) ListPromotionTargets(ctx context.Context) ([]PromotionTarget, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, promotion_id, target_type, target_id FROM promotion_targets ORDER BY promotion_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PromotionTarget
	for rows.Next() {
		var t PromotionTarget
		if err := rows.Scan(&t.ID, &t.PromotionID, &t.TargetType, &t.TargetID); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const couponColumns = `id, code, percentage, active, created_by, created_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Percentage, &c.Active, &c.CreatedBy, &c.CreatedAt)
	return c, mapErr(err)
}

type CreateCouponParams struct {
	Code       string
	Percentage decimal.Decimal
	Active     bool
	CreatedBy  pgtype.UUID
}

func (q *Queries) CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, `
		INSERT INTO coupons (code, percentage, active, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+couponColumns, arg.Code, arg.Percentage, arg.Active, arg.CreatedBy))
}

func (q *Queries) ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+couponColumns+` FROM coupons
		WHERE (NOT $1::boolean OR active)
		ORDER BY lower(code)`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) SetCouponActive(ctx context.Context, id uuid.UUID, active bool) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, `
		UPDATE coupons SET active = $2 WHERE id = $1
		RETURNING `+couponColumns, id, active))
}
