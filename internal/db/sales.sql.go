package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// SalesIdempotencyConstraint scopes idempotency keys to the cashier that
// submitted them.
const SalesIdempotencyConstraint = "sales_cashier_idempotency_key"

const saleColumns = `id, invoice_no, cashier_id, customer_id, subtotal, discount, discount_rate, tax, total,
	payment_method, payment_confirmed, coupon_code, items, idempotency_key, is_deleted, created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.InvoiceNo, &s.CashierID, &s.CustomerID, &s.Subtotal, &s.Discount, &s.DiscountRate,
		&s.Tax, &s.Total, &s.PaymentMethod, &s.PaymentConfirmed, &s.CouponCode, &s.Items, &s.IdempotencyKey,
		&s.IsDeleted, &s.CreatedAt)
	return s, mapErr(err)
}

func collectSales(rows pgx.Rows, err error) ([]Sale, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

type CreateSaleParams struct {
	InvoiceNo        string
	CashierID        uuid.UUID
	CustomerID       pgtype.UUID
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	DiscountRate     decimal.NullDecimal
	Tax              decimal.Decimal
	Total            decimal.Decimal
	PaymentMethod    string
	PaymentConfirmed bool
	CouponCode       pgtype.Text
	Items            []byte
	IdempotencyKey   pgtype.Text
	CreatedAt        time.Time
}

func (q *Queries) CreateSale(ctx context.Context, arg CreateSaleParams) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, `
		INSERT INTO sales (invoice_no, cashier_id, customer_id, subtotal, discount, discount_rate, tax, total,
			payment_method, payment_confirmed, coupon_code, items, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+saleColumns,
		arg.InvoiceNo, arg.CashierID, arg.CustomerID, arg.Subtotal, arg.Discount, arg.DiscountRate, arg.Tax,
		arg.Total, arg.PaymentMethod, arg.PaymentConfirmed, arg.CouponCode, arg.Items, arg.IdempotencyKey,
		arg.CreatedAt))
}

type CreateSaleItemParams struct {
	SaleID       uuid.UUID
	LineNo       int32
	ProductID    uuid.UUID
	Quantity     int32
	UnitPrice    decimal.Decimal
	BasePrice    decimal.Decimal
	NameSnapshot string
	SkuSnapshot  string
}

const saleItemColumns = `id, sale_id, line_no, product_id, quantity, unit_price, base_price, name_snapshot, sku_snapshot`

func scanSaleItem(row pgx.Row) (SaleItem, error) {
	var i SaleItem
	err := row.Scan(&i.ID, &i.SaleID, &i.LineNo, &i.ProductID, &i.Quantity, &i.UnitPrice, &i.BasePrice, &i.NameSnapshot, &i.SkuSnapshot)
	return i, mapErr(err)
}

func (q *Queries) CreateSaleItem(ctx context.Context, arg CreateSaleItemParams) (SaleItem, error) {
	return scanSaleItem(q.db.QueryRow(ctx, `
		INSERT INTO sale_items (sale_id, line_no, product_id, quantity, unit_price, base_price, name_snapshot, sku_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+saleItemColumns,
		arg.SaleID, arg.LineNo, arg.ProductID, arg.Quantity, arg.UnitPrice, arg.BasePrice, arg.NameSnapshot, arg.SkuSnapshot))
}

type CreatePaymentParams struct {
	SaleID    uuid.UUID
	Method    string
	Amount    decimal.Decimal
	Confirmed bool
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	var p Payment
	err := q.db.QueryRow(ctx, `
		INSERT INTO payments (sale_id, method, amount, confirmed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sale_id, method, amount, confirmed, created_at`,
		arg.SaleID, arg.Method, arg.Amount, arg.Confirmed).Scan(&p.ID, &p.SaleID, &p.Method, &p.Amount, &p.Confirmed, &p.CreatedAt)
	return p, mapErr(err)
}

func (q *Queries) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 AND NOT is_deleted`, id))
}

// GetSaleForUpdate locks the sale row until the surrounding transaction ends.
// Returns against the same sale serialize on this lock.
func (q *Queries) GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id))
}

func (q *Queries) GetSaleByInvoice(ctx context.Context, invoiceNo string) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE invoice_no = $1`, invoiceNo))
}

func (q *Queries) GetSaleByIdempotencyKey(ctx context.Context, cashierID uuid.UUID, key string) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE cashier_id = $1 AND idempotency_key = $2`, cashierID, key))
}

func (q *Queries) ListSaleItems(ctx context.Context, saleID uuid.UUID) ([]SaleItem, error) {
	rows, err := q.db.Query(ctx, `SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id = $1 ORDER BY line_no, id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SaleItem
	for rows.Next() {
		i, err := scanSaleItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type ListSalesParams struct {
	From   pgtype.Timestamptz
	To     pgtype.Timestamptz
	Limit  int32
	Offset int32
}

func (q *Queries) ListSales(ctx context.Context, arg ListSalesParams) ([]Sale, error) {
	return collectSales(q.db.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE NOT is_deleted
			AND ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`, arg.From, arg.To, arg.Limit, arg.Offset))
}

// ListSalesBetween returns every non-deleted sale in [from, to) for reporting.
func (q *Queries) ListSalesBetween(ctx context.Context, from, to time.Time) ([]Sale, error) {
	return collectSales(q.db.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE NOT is_deleted AND created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`, from, to))
}
