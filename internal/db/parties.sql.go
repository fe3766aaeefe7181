package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CreatePartyParams struct {
	Name  string
	Phone pgtype.Text
	Email pgtype.Text
}

type ListPartiesParams struct {
	Search string
	Limit  int32
	Offset int32
}

const partyColumns = `id, name, phone, email, created_at`

func (q *Queries) CreateCustomer(ctx context.Context, arg CreatePartyParams) (Customer, error) {
	var c Customer
	err := q.db.QueryRow(ctx, `
		INSERT INTO customers (name, phone, email) VALUES ($1, $2, $3)
		RETURNING `+partyColumns, arg.Name, arg.Phone, arg.Email).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	return c, mapErr(err)
}

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	var c Customer
	err := q.db.QueryRow(ctx, `SELECT `+partyColumns+` FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	return c, mapErr(err)
}

func (q *Queries) ListCustomers(ctx context.Context, arg ListPartiesParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+partyColumns+` FROM customers
		WHERE ($1::text = '' OR name ILIKE '%' || $1 || '%' OR phone = $1 OR email = $1)
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) CreateSupplier(ctx context.Context, arg CreatePartyParams) (Supplier, error) {
	var s Supplier
	err := q.db.QueryRow(ctx, `
		INSERT INTO suppliers (name, phone, email) VALUES ($1, $2, $3)
		RETURNING `+partyColumns, arg.Name, arg.Phone, arg.Email).
		Scan(&s.ID, &s.Name, &s.Phone, &s.Email, &s.CreatedAt)
	return s, mapErr(err)
}

func (q *Queries) GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error) {
	var s Supplier
	err := q.db.QueryRow(ctx, `SELECT `+partyColumns+` FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Phone, &s.Email, &s.CreatedAt)
	return s, mapErr(err)
}

func (q *Queries) ListSuppliers(ctx context.Context, arg ListPartiesParams) ([]Supplier, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+partyColumns+` FROM suppliers
		WHERE ($1::text = '' OR name ILIKE '%' || $1 || '%' OR phone = $1 OR email = $1)
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Phone, &s.Email, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
