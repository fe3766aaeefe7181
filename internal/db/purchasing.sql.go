package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const purchaseOrderColumns = `id, supplier_id, status, notes, created_by, created_at`

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.SupplierID, &po.Status, &po.Notes, &po.CreatedBy, &po.CreatedAt)
	return po, mapErr(err)
}

type CreatePurchaseOrderParams struct {
	SupplierID uuid.UUID
	Notes      pgtype.Text
	CreatedBy  uuid.UUID
}

func (q *Queries) CreatePurchaseOrder(ctx context.Context, arg CreatePurchaseOrderParams) (PurchaseOrder, error) {
	return scanPurchaseOrder(q.db.QueryRow(ctx, `
		INSERT INTO purchase_orders (supplier_id, notes, created_by)
		VALUES ($1, $2, $3)
		RETURNING `+purchaseOrderColumns, arg.SupplierID, arg.Notes, arg.CreatedBy))
}

func (q *Queries) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return scanPurchaseOrder(q.db.QueryRow(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id))
}

type ListPurchaseOrdersParams struct {
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListPurchaseOrders(ctx context.Context, arg ListPurchaseOrdersParams) ([]PurchaseOrder, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+purchaseOrderColumns+` FROM purchase_orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, po)
	}
	return items, rows.Err()
}

func (q *Queries) UpdatePurchaseOrderStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := q.db.Exec(ctx, `UPDATE purchase_orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const purchaseOrderItemColumns = `id, po_id, product_id, quantity_ordered, quantity_received, unit_cost`

func scanPurchaseOrderItem(row pgx.Row) (PurchaseOrderItem, error) {
	var i PurchaseOrderItem
	err := row.Scan(&i.ID, &i.PoID, &i.ProductID, &i.QuantityOrdered, &i.QuantityReceived, &i.UnitCost)
	return i, mapErr(err)
}

type CreatePurchaseOrderItemParams struct {
	PoID            uuid.UUID
	ProductID       uuid.UUID
	QuantityOrdered int32
	UnitCost        decimal.Decimal
}

func (q *Queries) CreatePurchaseOrderItem(ctx context.Context, arg CreatePurchaseOrderItemParams) (PurchaseOrderItem, error) {
	return scanPurchaseOrderItem(q.db.QueryRow(ctx, `
		INSERT INTO purchase_order_items (po_id, product_id, quantity_ordered, unit_cost)
		VALUES ($1, $2, $3, $4)
		RETURNING `+purchaseOrderItemColumns, arg.PoID, arg.ProductID, arg.QuantityOrdered, arg.UnitCost))
}

func (q *Queries) ListPurchaseOrderItems(ctx context.Context, poID uuid.UUID) ([]PurchaseOrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+purchaseOrderItemColumns+` FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseOrderItem
	for rows.Next() {
		i, err := scanPurchaseOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) GetPurchaseOrderItemForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrderItem, error) {
	return scanPurchaseOrderItem(q.db.QueryRow(ctx, `
		SELECT `+purchaseOrderItemColumns+` FROM purchase_order_items WHERE id = $1 FOR UPDATE`, id))
}

// AddPurchaseOrderItemReceived raises quantity_received by qty without
// exceeding the ordered quantity; ErrNotFound means the bound would be crossed.
func (q *Queries) AddPurchaseOrderItemReceived(ctx context.Context, id uuid.UUID, qty int32) (PurchaseOrderItem, error) {
	return scanPurchaseOrderItem(q.db.QueryRow(ctx, `
		UPDATE purchase_order_items SET quantity_received = quantity_received + $2
		WHERE id = $1 AND quantity_received + $2 <= quantity_ordered
		RETURNING `+purchaseOrderItemColumns, id, qty))
}

type CreateProductCostHistoryParams struct {
	ProductID uuid.UUID
	UnitCost  decimal.Decimal
	SourceRef string
}

func (q *Queries) CreateProductCostHistory(ctx context.Context, arg CreateProductCostHistoryParams) (ProductCostHistory, error) {
	var h ProductCostHistory
	err := q.db.QueryRow(ctx, `
		INSERT INTO product_cost_history (product_id, unit_cost, source_ref)
		VALUES ($1, $2, $3)
		RETURNING id, product_id, unit_cost, source_ref, created_at`,
		arg.ProductID, arg.UnitCost, arg.SourceRef).Scan(&h.ID, &h.ProductID, &h.UnitCost, &h.SourceRef, &h.CreatedAt)
	return h, mapErr(err)
}
