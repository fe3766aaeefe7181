// Package stock exposes the append-only stock ledger: movement history,
// manual adjustments and drift verification against product counters.
package stock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Service manages stock movements.
type Service struct {
	Store  db.Store
	Events *events.Bus
}

// AdjustInput describes a manual stock correction. Quantity is signed for
// manual_adjust; damage_out takes the number of units written off.
type AdjustInput struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Kind      string `json:"kind" validate:"required,oneof=manual_adjust damage_out"`
	Quantity  int32  `json:"quantity" validate:"ne=0"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

// Adjustment is the recorded movement and the resulting stock level.
type Adjustment struct {
	Movement db.StockMovement `json:"movement"`
	Stock    int32            `json:"stock"`
}

// ListInput filters the movement history.
type ListInput struct {
	ProductID *uuid.UUID
	Kind      string
	Page      int
	PerPage   int
}

// Movements lists ledger entries, newest first.
func (s *Service) Movements(ctx context.Context, in ListInput) ([]db.StockMovement, error) {
	limit, offset := common.Window(in.Page, in.PerPage)
	rows, err := s.Store.ListStockMovements(ctx, db.ListStockMovementsParams{
		ProductID: db.PgUUID(in.ProductID),
		Kind:      strings.TrimSpace(in.Kind),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	return rows, nil
}

// Adjust applies a manual correction and its ledger entry atomically.
// Negative deltas use the guarded decrement and never take stock below zero.
func (s *Service) Adjust(ctx context.Context, in AdjustInput, actorID uuid.UUID) (Adjustment, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Adjustment{}, err
	}
	delta := in.Quantity
	if in.Kind == db.MovementDamageOut {
		if delta < 0 {
			return Adjustment{}, common.NewAppError("INVALID_QUANTITY", "damage_out takes a positive number of units", http.StatusUnprocessableEntity, nil)
		}
		delta = -delta
	}
	productID := uuid.MustParse(in.ProductID)

	var (
		out     Adjustment
		product db.Product
	)
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		p, err := q.GetProduct(ctx, productID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && p.IsDeleted) {
			return common.ErrNotFound("product not found")
		}
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		product = p

		var level int32
		if delta < 0 {
			level, err = q.DecrementStock(ctx, productID, -delta)
			if errors.Is(err, db.ErrInsufficientStock) {
				return pricing.InsufficientStock(productID, -delta, p.Stock, "adjust")
			}
		} else {
			level, err = q.IncrementStock(ctx, productID, delta)
		}
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		m, err := q.CreateStockMovement(ctx, db.CreateStockMovementParams{
			ProductID: productID,
			UserID:    db.PgUUID(&actorID),
			Kind:      in.Kind,
			Quantity:  delta,
			Reason:    strings.TrimSpace(in.Reason),
		})
		if err != nil {
			return fmt.Errorf("record movement: %w", err)
		}
		out = Adjustment{Movement: m, Stock: level}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	obs.ObserveMovement(in.Kind)
	if s.Events != nil {
		ctx = context.WithoutCancel(ctx)
		if _, err := s.Events.Emit(ctx, events.TopicStockAdjusted, productID, out); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("product_id", productID.String()).Msg("emit stock.adjusted")
		}
		if delta < 0 && out.Stock <= product.MinStock {
			if _, err := s.Events.Emit(ctx, events.TopicStockLow, productID, events.StockLow{
				ProductID: productID.String(),
				Sku:       product.Sku,
				Name:      product.Name,
				Stock:     out.Stock,
				MinStock:  product.MinStock,
			}); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("product_id", productID.String()).Msg("emit stock.low")
			}
		}
	}
	return out, nil
}

// Verify compares every product's stock counter with the sum of its ledger
// entries and returns the products that disagree.
func (s *Service) Verify(ctx context.Context) ([]db.StockDriftRow, error) {
	rows, err := s.Store.StockLedgerDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("stock ledger drift: %w", err)
	}
	if obs.StockDriftProducts != nil {
		obs.StockDriftProducts.Set(float64(len(rows)))
	}
	return rows, nil
}

// RecordInitial writes the opening ledger entry for a newly created product.
func RecordInitial(ctx context.Context, q db.Querier, productID uuid.UUID, qty int32, actorID *uuid.UUID) error {
	if qty == 0 {
		return nil
	}
	_, err := q.CreateStockMovement(ctx, db.CreateStockMovementParams{
		ProductID: productID,
		UserID:    db.PgUUID(actorID),
		Kind:      db.MovementManualAdjust,
		Quantity:  qty,
		Reason:    "initial stock",
		RefTable:  db.Text("products"),
		RefID:     pgtype.UUID{Bytes: productID, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("record initial stock: %w", err)
	}
	return nil
}
