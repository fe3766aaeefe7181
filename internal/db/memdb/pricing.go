package memdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/db"
)

func (s *Store) CreatePromotion(_ context.Context, arg db.CreatePromotionParams) (db.Promotion, error) {
	if err := s.begin("CreatePromotion"); err != nil {
		return db.Promotion{}, err
	}
	defer s.end()
	p := db.Promotion{
		ID: uuid.New(), Name: arg.Name, Kind: arg.Kind, Value: arg.Value,
		StartsAt: arg.StartsAt, EndsAt: arg.EndsAt, Active: arg.Active, CreatedAt: s.now(),
	}
	s.st.promotions[p.ID] = p
	return p, nil
}

func (s *Store) SetPromotionActive(_ context.Context, id uuid.UUID, active bool) (db.Promotion, error) {
	if err := s.begin("SetPromotionActive"); err != nil {
		return db.Promotion{}, err
	}
	defer s.end()
	p, ok := s.st.promotions[id]
	if !ok {
		return db.Promotion{}, db.ErrNotFound
	}
	p.Active = active
	s.st.promotions[id] = p
	return p, nil
}

func (s *Store) ListPromotions(_ context.Context, activeOnly bool) ([]db.Promotion, error) {
	if err := s.begin("ListPromotions"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.Promotion
	for _, p := range s.st.promotions {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) DeletePromotion(_ context.Context, id uuid.UUID) error {
	if err := s.begin("DeletePromotion"); err != nil {
		return err
	}
	defer s.end()
	if _, ok := s.st.promotions[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.st.promotions, id)
	kept := s.st.targets[:0:0]
	for _, t := range s.st.targets {
		if t.PromotionID != id {
			kept = append(kept, t)
		}
	}
	s.st.targets = kept
	return nil
}

func (s *Store) CreatePromotionTarget(_ context.Context, arg db.CreatePromotionTargetParams) (db.PromotionTarget, error) {
	if err := s.begin("CreatePromotionTarget"); err != nil {
		return db.PromotionTarget{}, err
	}
	defer s.end()
	if _, ok := s.st.promotions[arg.PromotionID]; !ok {
		return db.PromotionTarget{}, db.NewConstraintError(db.ErrReferenced, "promotion_targets_promotion_id_fkey")
	}
	for _, t := range s.st.targets {
		if t.PromotionID == arg.PromotionID && t.TargetType == arg.TargetType && t.TargetID == arg.TargetID {
			return db.PromotionTarget{}, db.NewConstraintError(db.ErrConflict, "promotion_targets_promotion_id_target_type_target_id_key")
		}
	}
	t := db.PromotionTarget{ID: uuid.New(), PromotionID: arg.PromotionID, TargetType: arg.TargetType, TargetID: arg.TargetID}
	s.st.targets = append(s.st.targets, t)
	return t, nil
}

func (s *Store) ListPromotionTargets(_ context.Context) ([]db.PromotionTarget, error) {
	if err := s.begin("ListPromotionTargets"); err != nil {
		return nil, err
	}
	defer s.end()
	return append([]db.PromotionTarget(nil), s.st.targets...), nil
}

func (s *Store) CreateCoupon(_ context.Context, arg db.CreateCouponParams) (db.Coupon, error) {
	if err := s.begin("CreateCoupon"); err != nil {
		return db.Coupon{}, err
	}
	defer s.end()
	for _, c := range s.st.coupons {
		if strings.EqualFold(c.Code, arg.Code) {
			return db.Coupon{}, db.NewConstraintError(db.ErrConflict, "coupons_code_key")
		}
	}
	c := db.Coupon{ID: uuid.New(), Code: arg.Code, Percentage: arg.Percentage, Active: arg.Active, CreatedBy: arg.CreatedBy, CreatedAt: s.now()}
	s.st.coupons[c.ID] = c
	return c, nil
}

func (s *Store) ListCoupons(_ context.Context, activeOnly bool) ([]db.Coupon, error) {
	if err := s.begin("ListCoupons"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.Coupon
	for _, c := range s.st.coupons {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Code) < strings.ToLower(out[j].Code) })
	return out, nil
}

func (s *Store) SetCouponActive(_ context.Context, id uuid.UUID, active bool) (db.Coupon, error) {
	if err := s.begin("SetCouponActive"); err != nil {
		return db.Coupon{}, err
	}
	defer s.end()
	c, ok := s.st.coupons[id]
	if !ok {
		return db.Coupon{}, db.ErrNotFound
	}
	c.Active = active
	s.st.coupons[id] = c
	return c, nil
}
