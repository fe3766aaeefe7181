package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const categoryColumns = `id, name, description, created_at, updated_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

type CreateCategoryParams struct {
	Name        string
	Description pgtype.Text
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	return scanCategory(q.db.QueryRow(ctx, `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING `+categoryColumns, arg.Name, arg.Description))
}

type UpdateCategoryParams struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	return scanCategory(q.db.QueryRow(ctx, `
		UPDATE categories SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+categoryColumns, arg.ID, arg.Name, arg.Description))
}

func (q *Queries) GetCategory(ctx context.Context, id uuid.UUID) (Category, error) {
	return scanCategory(q.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
}

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) CountActiveProductsInCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM products WHERE category_id = $1 AND NOT is_deleted`, categoryID).Scan(&n)
	return n, mapErr(err)
}

func (q *Queries) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const productColumns = `id, name, sku, barcode, category_id, price, cost_price, stock, min_stock,
	is_deleted, deleted_at, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Sku, &p.Barcode, &p.CategoryID, &p.Price, &p.CostPrice,
		&p.Stock, &p.MinStock, &p.IsDeleted, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, mapErr(err)
}

func collectProducts(rows pgx.Rows, err error) ([]Product, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

type CreateProductParams struct {
	Name       string
	Sku        string
	Barcode    pgtype.Text
	CategoryID pgtype.UUID
	Price      decimal.Decimal
	CostPrice  decimal.NullDecimal
	Stock      int32
	MinStock   int32
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, `
		INSERT INTO products (name, sku, barcode, category_id, price, cost_price, stock, min_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+productColumns,
		arg.Name, arg.Sku, arg.Barcode, arg.CategoryID, arg.Price, arg.CostPrice, arg.Stock, arg.MinStock))
}

// UpdateProductParams changes catalog attributes only. Stock is never written
// here; it moves exclusively through the ledger-backed statements.
type UpdateProductParams struct {
	ID         uuid.UUID
	Name       string
	Sku        string
	Barcode    pgtype.Text
	CategoryID pgtype.UUID
	Price      decimal.Decimal
	CostPrice  decimal.NullDecimal
	MinStock   int32
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, `
		UPDATE products
		SET name = $2, sku = $3, barcode = $4, category_id = $5, price = $6, cost_price = $7,
			min_stock = $8, updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+productColumns,
		arg.ID, arg.Name, arg.Sku, arg.Barcode, arg.CategoryID, arg.Price, arg.CostPrice, arg.MinStock))
}

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// GetProductForUpdate locks the product row until the surrounding
// transaction ends.
func (q *Queries) GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetProductBySku(ctx context.Context, sku string) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
}

func (q *Queries) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return collectProducts(q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[]) ORDER BY name, id`, ids))
}

type ListProductsParams struct {
	Search         string
	CategoryID     pgtype.UUID
	LowStockOnly   bool
	IncludeDeleted bool
	Limit          int32
	Offset         int32
}

const productFilter = `
	WHERE ($1::text = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%' OR barcode = $1)
		AND ($2::uuid IS NULL OR category_id = $2)
		AND (NOT $3::boolean OR stock <= min_stock)
		AND ($4::boolean OR NOT is_deleted)`

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	return collectProducts(q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products`+productFilter+`
		ORDER BY name, id
		LIMIT $5 OFFSET $6`,
		arg.Search, arg.CategoryID, arg.LowStockOnly, arg.IncludeDeleted, arg.Limit, arg.Offset))
}

func (q *Queries) CountProducts(ctx context.Context, arg ListProductsParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM products`+productFilter,
		arg.Search, arg.CategoryID, arg.LowStockOnly, arg.IncludeDeleted).Scan(&n)
	return n, mapErr(err)
}

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE products SET is_deleted = true, deleted_at = $2, updated_at = $2
		WHERE id = $1 AND NOT is_deleted`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) RestoreProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, `
		UPDATE products SET is_deleted = false, deleted_at = NULL, updated_at = now()
		WHERE id = $1 AND is_deleted
		RETURNING `+productColumns, id))
}

// HardDeleteProduct removes the product row. Products referenced by sales or
// purchase orders cannot be removed and yield ErrReferenced.
func (q *Queries) HardDeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementStock subtracts qty only when enough stock is available and the
// product is not deleted. The guard and the write are one statement, so two
// concurrent decrements can never take stock below zero.
func (q *Queries) DecrementStock(ctx context.Context, id uuid.UUID, qty int32) (int32, error) {
	var stock int32
	err := q.db.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND NOT is_deleted AND stock >= $2
		RETURNING stock`, id, qty).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientStock
	}
	return stock, mapErr(err)
}

func (q *Queries) IncrementStock(ctx context.Context, id uuid.UUID, qty int32) (int32, error) {
	var stock int32
	err := q.db.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1
		RETURNING stock`, id, qty).Scan(&stock)
	return stock, mapErr(err)
}

func (q *Queries) SetProductCostPrice(ctx context.Context, id uuid.UUID, cost decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, `UPDATE products SET cost_price = $2, updated_at = now() WHERE id = $1`, id, cost)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
