package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type CreateSalesReturnParams struct {
	SaleID      uuid.UUID
	ActorID     uuid.UUID
	Reason      pgtype.Text
	RefundTotal decimal.Decimal
}

const salesReturnColumns = `id, sale_id, actor_id, reason, refund_total, created_at`

func (q *Queries) CreateSalesReturn(ctx context.Context, arg CreateSalesReturnParams) (SalesReturn, error) {
	var r SalesReturn
	err := q.db.QueryRow(ctx, `
		INSERT INTO sales_returns (sale_id, actor_id, reason, refund_total)
		VALUES ($1, $2, $3, $4)
		RETURNING `+salesReturnColumns,
		arg.SaleID, arg.ActorID, arg.Reason, arg.RefundTotal).Scan(&r.ID, &r.SaleID, &r.ActorID, &r.Reason, &r.RefundTotal, &r.CreatedAt)
	return r, mapErr(err)
}

type CreateSalesReturnItemParams struct {
	ReturnID     uuid.UUID
	SaleItemID   uuid.UUID
	ProductID    uuid.UUID
	Quantity     int32
	RefundAmount decimal.Decimal
}

func (q *Queries) CreateSalesReturnItem(ctx context.Context, arg CreateSalesReturnItemParams) (SalesReturnItem, error) {
	var i SalesReturnItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO sales_return_items (return_id, sale_item_id, product_id, quantity, refund_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, return_id, sale_item_id, product_id, quantity, refund_amount`,
		arg.ReturnID, arg.SaleItemID, arg.ProductID, arg.Quantity, arg.RefundAmount).
		Scan(&i.ID, &i.ReturnID, &i.SaleItemID, &i.ProductID, &i.Quantity, &i.RefundAmount)
	return i, mapErr(err)
}

type ReturnedQuantityRow struct {
	SaleItemID uuid.UUID
	Quantity   int64
}

// ReturnedQuantitiesBySale sums previously returned units per sale item.
func (q *Queries) ReturnedQuantitiesBySale(ctx context.Context, saleID uuid.UUID) ([]ReturnedQuantityRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT ri.sale_item_id, sum(ri.quantity)::bigint
		FROM sales_return_items ri
		JOIN sales_returns r ON r.id = ri.return_id
		WHERE r.sale_id = $1
		GROUP BY ri.sale_item_id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReturnedQuantityRow
	for rows.Next() {
		var row ReturnedQuantityRow
		if err := rows.Scan(&row.SaleItemID, &row.Quantity); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

func (q *Queries) ListSalesReturns(ctx context.Context, saleID uuid.UUID) ([]SalesReturn, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+salesReturnColumns+` FROM sales_returns WHERE sale_id = $1 ORDER BY created_at, id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SalesReturn
	for rows.Next() {
		var r SalesReturn
		if err := rows.Scan(&r.ID, &r.SaleID, &r.ActorID, &r.Reason, &r.RefundTotal, &r.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
