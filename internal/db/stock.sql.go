package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CreateStockMovementParams struct {
	ProductID uuid.UUID
	UserID    pgtype.UUID
	Kind      string
	Quantity  int32
	Reason    string
	RefTable  pgtype.Text
	RefID     pgtype.UUID
}

const stockMovementColumns = `id, product_id, user_id, kind, quantity, reason, ref_table, ref_id, created_at`

// CreateStockMovement appends to the ledger. The ledger is append-only: no
// statement updates or deletes stock_movements rows.
func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error) {
	var m StockMovement
	err := q.db.QueryRow(ctx, `
		INSERT INTO stock_movements (product_id, user_id, kind, quantity, reason, ref_table, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+stockMovementColumns,
		arg.ProductID, arg.UserID, arg.Kind, arg.Quantity, arg.Reason, arg.RefTable, arg.RefID).
		Scan(&m.ID, &m.ProductID, &m.UserID, &m.Kind, &m.Quantity, &m.Reason, &m.RefTable, &m.RefID, &m.CreatedAt)
	return m, mapErr(err)
}

type ListStockMovementsParams struct {
	ProductID pgtype.UUID
	Kind      string
	Limit     int32
	Offset    int32
}

func (q *Queries) ListStockMovements(ctx context.Context, arg ListStockMovementsParams) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+stockMovementColumns+` FROM stock_movements
		WHERE ($1::uuid IS NULL OR product_id = $1)
			AND ($2::text = '' OR kind = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`, arg.ProductID, arg.Kind, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.UserID, &m.Kind, &m.Quantity, &m.Reason, &m.RefTable, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

type StockDriftRow struct {
	ProductID   uuid.UUID `json:"product_id"`
	Name        string    `json:"name"`
	Sku         string    `json:"sku"`
	Stock       int32     `json:"stock"`
	LedgerTotal int64     `json:"ledger_total"`
}

// StockLedgerDrift lists products whose stock counter differs from the sum
// of their ledger entries.
func (q *Queries) StockLedgerDrift(ctx context.Context) ([]StockDriftRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.id, p.name, p.sku, p.stock, coalesce(sum(m.quantity), 0)::bigint AS ledger_total
		FROM products p
		LEFT JOIN stock_movements m ON m.product_id = p.id
		GROUP BY p.id
		HAVING p.stock <> coalesce(sum(m.quantity), 0)
		ORDER BY p.name, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockDriftRow
	for rows.Next() {
		var r StockDriftRow
		if err := rows.Scan(&r.ProductID, &r.Name, &r.Sku, &r.Stock, &r.LedgerTotal); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
