// Package purchase manages supplier purchase orders and goods receipt.
package purchase

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

// ItemInput is one ordered product.
type ItemInput struct {
	ProductID string          `json:"productId" validate:"required,uuid"`
	Quantity  int32           `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unitCost"`
}

// CreateInput is the payload accepted when raising a purchase order.
type CreateInput struct {
	SupplierID string      `json:"supplierId" validate:"required,uuid"`
	Notes      string      `json:"notes" validate:"max=1000"`
	Items      []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ReceiveInput records units arriving against an order line.
type ReceiveInput struct {
	ItemID   string `json:"itemId" validate:"required,uuid"`
	Quantity int32  `json:"quantity" validate:"gt=0"`
}

// View is a purchase order with its lines.
type View struct {
	db.PurchaseOrder
	Items []db.PurchaseOrderItem `json:"items"`
}

// Receipt is the outcome of receiving goods.
type Receipt struct {
	Item     db.PurchaseOrderItem `json:"item"`
	Status   string               `json:"status"`
	Stock    int32                `json:"stock"`
	Movement db.StockMovement     `json:"movement"`
}

// Service manages purchase orders.
type Service struct {
	Store  db.Store
	Events *events.Bus
}

// Create stores a purchase order and its lines in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID uuid.UUID) (View, error) {
	if err := common.ValidateStruct(in); err != nil {
		return View{}, err
	}
	for _, it := range in.Items {
		if it.UnitCost.IsNegative() {
			return View{}, common.NewAppError("VALIDATION_FAILED", "unitCost must not be negative", http.StatusUnprocessableEntity, nil)
		}
	}
	supplierID := uuid.MustParse(in.SupplierID)

	var view View
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		if _, err := q.GetSupplier(ctx, supplierID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return common.ErrNotFound("supplier not found")
			}
			return fmt.Errorf("get supplier: %w", err)
		}
		po, err := q.CreatePurchaseOrder(ctx, db.CreatePurchaseOrderParams{
			SupplierID: supplierID,
			Notes:      db.Text(in.Notes),
			CreatedBy:  actorID,
		})
		if err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		view.PurchaseOrder = po
		for _, it := range in.Items {
			productID := uuid.MustParse(it.ProductID)
			p, err := q.GetProduct(ctx, productID)
			if errors.Is(err, db.ErrNotFound) || (err == nil && p.IsDeleted) {
				return common.ErrNotFound("product not found").WithDetails(map[string]string{"productId": it.ProductID})
			}
			if err != nil {
				return fmt.Errorf("get product: %w", err)
			}
			row, err := q.CreatePurchaseOrderItem(ctx, db.CreatePurchaseOrderItemParams{
				PoID:            po.ID,
				ProductID:       productID,
				QuantityOrdered: it.Quantity,
				UnitCost:        it.UnitCost.Round(2),
			})
			if err != nil {
				return fmt.Errorf("create purchase order item: %w", err)
			}
			view.Items = append(view.Items, row)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

// Get returns a purchase order with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	po, err := s.Store.GetPurchaseOrder(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return View{}, common.ErrNotFound("purchase order not found")
	}
	if err != nil {
		return View{}, fmt.Errorf("get purchase order: %w", err)
	}
	items, err := s.Store.ListPurchaseOrderItems(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("list purchase order items: %w", err)
	}
	return View{PurchaseOrder: po, Items: items}, nil
}

// List returns purchase orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, page, perPage int) ([]db.PurchaseOrder, error) {
	limit, offset := common.Window(page, perPage)
	rows, err := s.Store.ListPurchaseOrders(ctx, db.ListPurchaseOrdersParams{
		Status: strings.TrimSpace(status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	return rows, nil
}

// Receive books goods against an order line: the received counter, the
// product stock, the po_receipt ledger entry, the cost history and the order
// status all change in one transaction. Receiving more than is outstanding
// is rejected.
func (s *Service) Receive(ctx context.Context, poID uuid.UUID, in ReceiveInput, actorID uuid.UUID) (Receipt, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Receipt{}, err
	}
	itemID := uuid.MustParse(in.ItemID)

	var out Receipt
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		item, err := q.GetPurchaseOrderItemForUpdate(ctx, itemID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && item.PoID != poID) {
			return common.ErrNotFound("purchase order item not found")
		}
		if err != nil {
			return fmt.Errorf("lock purchase order item: %w", err)
		}
		outstanding := item.QuantityOrdered - item.QuantityReceived
		if in.Quantity > outstanding {
			return common.NewAppError("INVALID_QUANTITY", fmt.Sprintf("only %d units outstanding", outstanding), http.StatusUnprocessableEntity, nil).
				WithDetails(map[string]any{"itemId": item.ID.String(), "requested": in.Quantity, "outstanding": outstanding})
		}
		item, err = q.AddPurchaseOrderItemReceived(ctx, itemID, in.Quantity)
		if err != nil {
			return fmt.Errorf("update received quantity: %w", err)
		}
		out.Item = item

		level, err := q.IncrementStock(ctx, item.ProductID, in.Quantity)
		if err != nil {
			return fmt.Errorf("increment stock: %w", err)
		}
		out.Stock = level
		out.Movement, err = q.CreateStockMovement(ctx, db.CreateStockMovementParams{
			ProductID: item.ProductID,
			UserID:    pgtype.UUID{Bytes: actorID, Valid: true},
			Kind:      db.MovementPOReceipt,
			Quantity:  in.Quantity,
			Reason:    "purchase order receipt",
			RefTable:  db.Text("purchase_orders"),
			RefID:     pgtype.UUID{Bytes: poID, Valid: true},
		})
		if err != nil {
			return fmt.Errorf("record receipt movement: %w", err)
		}
		if _, err := q.CreateProductCostHistory(ctx, db.CreateProductCostHistoryParams{
			ProductID: item.ProductID,
			UnitCost:  item.UnitCost,
			SourceRef: "po:" + poID.String(),
		}); err != nil {
			return fmt.Errorf("record cost history: %w", err)
		}
		if err := q.SetProductCostPrice(ctx, item.ProductID, item.UnitCost); err != nil {
			return fmt.Errorf("set cost price: %w", err)
		}

		lines, err := q.ListPurchaseOrderItems(ctx, poID)
		if err != nil {
			return fmt.Errorf("list purchase order items: %w", err)
		}
		out.Status = StatusFor(lines)
		if err := q.UpdatePurchaseOrderStatus(ctx, poID, out.Status); err != nil {
			return fmt.Errorf("update purchase order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	obs.ObserveMovement(db.MovementPOReceipt)
	if s.Events != nil {
		if _, err := s.Events.Emit(context.WithoutCancel(ctx), events.TopicPOItemReceived, poID, out); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("po_id", poID.String()).Msg("emit purchase_order.item_received")
		}
	}
	return out, nil
}

// StatusFor derives the order status from its lines.
func StatusFor(items []db.PurchaseOrderItem) string {
	some, complete := false, len(items) > 0
	for _, it := range items {
		if it.QuantityReceived > 0 {
			some = true
		}
		if it.QuantityReceived < it.QuantityOrdered {
			complete = false
		}
	}
	switch {
	case complete:
		return db.POStatusReceived
	case some:
		return db.POStatusPartial
	default:
		return db.POStatusOpen
	}
}
