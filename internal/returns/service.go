// Package returns restocks goods brought back against a prior sale.
package returns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// Line is one returned line. Either SaleItemID or ProductID identifies the
// sold line; RefundAmount defaults to unit price times quantity.
type Line struct {
	SaleItemID   string           `json:"saleItemId" validate:"omitempty,uuid"`
	ProductID    string           `json:"productId" validate:"omitempty,uuid"`
	Quantity     int32            `json:"quantity"`
	RefundAmount *decimal.Decimal `json:"refundAmount"`
}

// Request is the return submitted for a sale.
type Request struct {
	Lines  []Line `json:"lines" validate:"required,min=1,dive"`
	Reason string `json:"reason" validate:"max=500"`
}

// Result is a recorded return with its items.
type Result struct {
	Return db.SalesReturn       `json:"return"`
	Items  []db.SalesReturnItem `json:"items"`
}

// Shortfall describes a return quantity beyond what is still returnable.
type Shortfall struct {
	SaleItemID string `json:"saleItemId"`
	ProductID  string `json:"productId"`
	Requested  int32  `json:"requested"`
	Remaining  int32  `json:"remaining"`
}

// Service processes sales returns.
type Service struct {
	Store  db.Store
	Events *events.Bus
}

type allocation struct {
	item   db.SaleItem
	qty    int32
	refund decimal.Decimal
}

func invalidQuantity(msg string) *common.AppError {
	return common.NewAppError("INVALID_QUANTITY", msg, http.StatusUnprocessableEntity, nil)
}

// Process records a return against saleID. The sale row is locked for the
// duration of the transaction, so concurrent returns of the same sale are
// clamped against each other. Each sale item accepts at most its sold
// quantity minus what earlier returns already took back.
func (s *Service) Process(ctx context.Context, saleID uuid.UUID, req Request, actorID uuid.UUID) (Result, error) {
	if err := common.ValidateStruct(req); err != nil {
		return Result{}, err
	}
	if actorID == uuid.Nil {
		return Result{}, common.NewAppError("UNAUTHORIZED", "actor identity required", http.StatusUnauthorized, nil)
	}
	lines := make([]Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		switch {
		case l.Quantity < 0:
			return Result{}, invalidQuantity("quantity must not be negative")
		case l.Quantity == 0:
			continue
		case l.SaleItemID == "" && l.ProductID == "":
			return Result{}, common.NewAppError("VALIDATION_FAILED", "saleItemId or productId is required", http.StatusUnprocessableEntity, nil)
		case l.RefundAmount != nil && l.RefundAmount.IsNegative():
			return Result{}, common.NewAppError("VALIDATION_FAILED", "refundAmount must not be negative", http.StatusUnprocessableEntity, nil)
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return Result{}, common.NewAppError("VALIDATION_FAILED", "no items to return", http.StatusUnprocessableEntity, nil)
	}

	var (
		result    Result
		invoiceNo string
	)
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		sale, err := q.GetSaleForUpdate(ctx, saleID)
		if errors.Is(err, db.ErrNotFound) {
			return common.ErrNotFound("sale not found")
		}
		if err != nil {
			return fmt.Errorf("lock sale: %w", err)
		}
		invoiceNo = sale.InvoiceNo

		items, err := q.ListSaleItems(ctx, saleID)
		if err != nil {
			return fmt.Errorf("list sale items: %w", err)
		}
		returned, err := q.ReturnedQuantitiesBySale(ctx, saleID)
		if err != nil {
			return fmt.Errorf("load returned quantities: %w", err)
		}
		remaining := make(map[uuid.UUID]int32, len(items))
		for _, it := range items {
			remaining[it.ID] = it.Quantity
		}
		for _, row := range returned {
			remaining[row.SaleItemID] -= int32(row.Quantity)
		}

		allocs, err := allocate(lines, items, remaining)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, a := range allocs {
			total = total.Add(a.refund)
		}
		header, err := q.CreateSalesReturn(ctx, db.CreateSalesReturnParams{
			SaleID:      saleID,
			ActorID:     actorID,
			Reason:      db.Text(req.Reason),
			RefundTotal: total,
		})
		if err != nil {
			return fmt.Errorf("create sales return: %w", err)
		}
		result.Return = header

		for _, a := range allocs {
			row, err := q.CreateSalesReturnItem(ctx, db.CreateSalesReturnItemParams{
				ReturnID:     header.ID,
				SaleItemID:   a.item.ID,
				ProductID:    a.item.ProductID,
				Quantity:     a.qty,
				RefundAmount: a.refund,
			})
			if err != nil {
				return fmt.Errorf("create sales return item: %w", err)
			}
			result.Items = append(result.Items, row)

			if _, err := q.IncrementStock(ctx, a.item.ProductID, a.qty); err != nil {
				return fmt.Errorf("restock product %s: %w", a.item.ProductID, err)
			}
			if _, err := q.CreateStockMovement(ctx, db.CreateStockMovementParams{
				ProductID: a.item.ProductID,
				UserID:    pgtype.UUID{Bytes: actorID, Valid: true},
				Kind:      db.MovementReturnIn,
				Quantity:  a.qty,
				Reason:    "return " + sale.InvoiceNo,
				RefTable:  db.Text("sales"),
				RefID:     pgtype.UUID{Bytes: saleID, Valid: true},
			}); err != nil {
				return fmt.Errorf("record return movement: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.Code == "INVALID_QUANTITY" {
			obs.ObserveReturn("rejected")
		} else {
			obs.ObserveReturn("error")
		}
		return Result{}, err
	}

	obs.ObserveReturn("ok")
	var units int32
	for _, it := range result.Items {
		units += it.Quantity
		obs.ObserveMovement(db.MovementReturnIn)
	}
	if s.Events != nil {
		if _, err := s.Events.Emit(context.WithoutCancel(ctx), events.TopicReturnCreated, result.Return.ID, events.ReturnCreated{
			ReturnID:    result.Return.ID.String(),
			SaleID:      saleID.String(),
			RefundTotal: result.Return.RefundTotal.StringFixed(2),
			Units:       units,
		}); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("invoice_no", invoiceNo).Msg("emit return.created")
		}
	}
	return result, nil
}

// allocate maps request lines onto sale items. Lines naming a product are
// spread over that product's sale items in order. remaining is consumed.
func allocate(lines []Line, items []db.SaleItem, remaining map[uuid.UUID]int32) ([]allocation, error) {
	byID := make(map[uuid.UUID]db.SaleItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	var out []allocation
	for _, l := range lines {
		var candidates []db.SaleItem
		if l.SaleItemID != "" {
			it, ok := byID[uuid.MustParse(l.SaleItemID)]
			if !ok {
				return nil, common.ErrNotFound("sale item not found").WithDetails(map[string]string{"saleItemId": l.SaleItemID})
			}
			if l.ProductID != "" && !strings.EqualFold(l.ProductID, it.ProductID.String()) {
				return nil, common.NewAppError("VALIDATION_FAILED", "productId does not match sale item", http.StatusUnprocessableEntity, nil)
			}
			candidates = []db.SaleItem{it}
		} else {
			pid := uuid.MustParse(l.ProductID)
			for _, it := range items {
				if it.ProductID == pid {
					candidates = append(candidates, it)
				}
			}
			if len(candidates) == 0 {
				return nil, common.ErrNotFound("product was not part of this sale").WithDetails(map[string]string{"productId": l.ProductID})
			}
		}

		available := int32(0)
		for _, c := range candidates {
			if r := remaining[c.ID]; r > 0 {
				available += r
			}
		}
		if l.Quantity > available {
			first := candidates[0]
			return nil, invalidQuantity(fmt.Sprintf("only %d units can still be returned", available)).WithDetails(Shortfall{
				SaleItemID: first.ID.String(),
				ProductID:  first.ProductID.String(),
				Requested:  l.Quantity,
				Remaining:  available,
			})
		}

		left := l.Quantity
		var parts []allocation
		for _, c := range candidates {
			if left == 0 {
				break
			}
			take := remaining[c.ID]
			if take <= 0 {
				continue
			}
			if take > left {
				take = left
			}
			remaining[c.ID] -= take
			left -= take
			parts = append(parts, allocation{
				item:   c,
				qty:    take,
				refund: c.UnitPrice.Mul(decimal.NewFromInt32(take)).Round(2),
			})
		}
		if l.RefundAmount != nil {
			distributeRefund(parts, l.RefundAmount.Round(2))
		}
		out = append(out, parts...)
	}
	return out, nil
}

// distributeRefund spreads an explicit refund over the allocated parts in
// proportion to quantity; the last part absorbs rounding.
func distributeRefund(parts []allocation, amount decimal.Decimal) {
	var units int32
	for _, p := range parts {
		units += p.qty
	}
	if units == 0 {
		return
	}
	left := amount
	for i := range parts {
		if i == len(parts)-1 {
			parts[i].refund = left
			return
		}
		share := amount.Mul(decimal.NewFromInt32(parts[i].qty)).Div(decimal.NewFromInt32(units)).Round(2)
		parts[i].refund = share
		left = left.Sub(share)
	}
}

// List returns the returns recorded against a sale.
func (s *Service) List(ctx context.Context, saleID uuid.UUID) ([]db.SalesReturn, error) {
	rows, err := s.Store.ListSalesReturns(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sales returns: %w", err)
	}
	return rows, nil
}
