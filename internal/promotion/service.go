package promotion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
)

// Service manages promotion rules and produces point-in-time snapshots for
// price resolution.
type Service struct {
	Store db.Store
	Now   func() time.Time
}

// TargetInput references a product or category a promotion applies to.
type TargetInput struct {
	Type string `json:"type" validate:"required,oneof=product category"`
	ID   string `json:"id" validate:"required,uuid"`
}

// CreateInput is the payload accepted when creating a promotion.
type CreateInput struct {
	Name     string          `json:"name" validate:"required,max=120"`
	Kind     string          `json:"kind" validate:"required,oneof=percent fixed"`
	Value    decimal.Decimal `json:"value"`
	StartsAt *time.Time      `json:"startsAt"`
	EndsAt   *time.Time      `json:"endsAt"`
	Active   *bool           `json:"active"`
	Targets  []TargetInput   `json:"targets" validate:"required,min=1,dive"`
}

// View is a promotion together with its targets.
type View struct {
	db.Promotion
	Targets []db.PromotionTarget `json:"targets"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create validates and stores a promotion with its targets in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (View, error) {
	if err := common.ValidateStruct(in); err != nil {
		return View{}, err
	}
	if !in.Value.IsPositive() {
		return View{}, common.NewAppError("VALIDATION_FAILED", "value must be positive", http.StatusUnprocessableEntity, nil)
	}
	if in.Kind == KindPercent && in.Value.GreaterThan(hundred) {
		return View{}, common.NewAppError("VALIDATION_FAILED", "percent value must not exceed 100", http.StatusUnprocessableEntity, nil)
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return View{}, common.NewAppError("VALIDATION_FAILED", "endsAt must not precede startsAt", http.StatusUnprocessableEntity, nil)
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	var view View
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		promo, err := q.CreatePromotion(ctx, db.CreatePromotionParams{
			Name:     strings.TrimSpace(in.Name),
			Kind:     in.Kind,
			Value:    in.Value,
			StartsAt: db.PgTime(in.StartsAt),
			EndsAt:   db.PgTime(in.EndsAt),
			Active:   active,
		})
		if err != nil {
			return fmt.Errorf("create promotion: %w", err)
		}
		view.Promotion = promo
		for _, t := range in.Targets {
			targetID := uuid.MustParse(t.ID)
			if err := ensureTarget(ctx, q, t.Type, targetID); err != nil {
				return err
			}
			row, err := q.CreatePromotionTarget(ctx, db.CreatePromotionTargetParams{
				PromotionID: promo.ID,
				TargetType:  t.Type,
				TargetID:    targetID,
			})
			if err != nil {
				if errors.Is(err, db.ErrConflict) {
					return common.ErrConflict("duplicate promotion target")
				}
				return fmt.Errorf("create promotion target: %w", err)
			}
			view.Targets = append(view.Targets, row)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

func ensureTarget(ctx context.Context, q db.Querier, kind string, id uuid.UUID) error {
	var err error
	switch kind {
	case TargetProduct:
		_, err = q.GetProduct(ctx, id)
	case TargetCategory:
		_, err = q.GetCategory(ctx, id)
	}
	if errors.Is(err, db.ErrNotFound) {
		return common.ErrNotFound(kind + " not found").WithDetails(map[string]string{"id": id.String()})
	}
	return err
}

// List returns promotions with their targets.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]View, error) {
	promos, err := s.Store.ListPromotions(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	targets, err := s.Store.ListPromotionTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promotion targets: %w", err)
	}
	grouped := make(map[uuid.UUID][]db.PromotionTarget)
	for _, t := range targets {
		grouped[t.PromotionID] = append(grouped[t.PromotionID], t)
	}
	out := make([]View, 0, len(promos))
	for _, p := range promos {
		out = append(out, View{Promotion: p, Targets: grouped[p.ID]})
	}
	return out, nil
}

// SetActive toggles the active flag.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (db.Promotion, error) {
	promo, err := s.Store.SetPromotionActive(ctx, id, active)
	if errors.Is(err, db.ErrNotFound) {
		return db.Promotion{}, common.ErrNotFound("promotion not found")
	}
	return promo, err
}

// Delete removes a promotion and its targets.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.Store.DeletePromotion(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return common.ErrNotFound("promotion not found")
	}
	return err
}

// Snapshot loads the active promotions and all targets as engine inputs.
func (s *Service) Snapshot(ctx context.Context) (Set, error) {
	return LoadSet(ctx, s.Store)
}

// SetLoader is the subset of db.Querier needed to build a Set.
type SetLoader interface {
	ListPromotions(ctx context.Context, activeOnly bool) ([]db.Promotion, error)
	ListPromotionTargets(ctx context.Context) ([]db.PromotionTarget, error)
}

// LoadSet reads the active promotions and all targets through q.
func LoadSet(ctx context.Context, q SetLoader) (Set, error) {
	promos, err := q.ListPromotions(ctx, true)
	if err != nil {
		return Set{}, fmt.Errorf("list promotions: %w", err)
	}
	targets, err := q.ListPromotionTargets(ctx)
	if err != nil {
		return Set{}, fmt.Errorf("list promotion targets: %w", err)
	}
	set := Set{Promotions: make([]Promotion, 0, len(promos)), Targets: make([]Target, 0, len(targets))}
	for _, p := range promos {
		set.Promotions = append(set.Promotions, FromModel(p))
	}
	for _, t := range targets {
		set.Targets = append(set.Targets, Target{PromotionID: t.PromotionID, TargetType: t.TargetType, TargetID: t.TargetID})
	}
	return set, nil
}

// FromModel converts a stored promotion into its engine form.
func FromModel(p db.Promotion) Promotion {
	return Promotion{
		ID:       p.ID,
		Kind:     p.Kind,
		Value:    p.Value,
		StartsAt: db.TimePtr(p.StartsAt),
		EndsAt:   db.TimePtr(p.EndsAt),
		Active:   p.Active,
	}
}

// ProductFromModel extracts the fields promotions match on.
func ProductFromModel(p db.Product) Product {
	return Product{ID: p.ID, CategoryID: db.UUIDPtr(p.CategoryID)}
}
