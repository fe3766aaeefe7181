// Package party manages customers and suppliers.
package party

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
)

// Querier is the subset of db.Querier used by the party service.
type Querier interface {
	CreateCustomer(ctx context.Context, arg db.CreatePartyParams) (db.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (db.Customer, error)
	ListCustomers(ctx context.Context, arg db.ListPartiesParams) ([]db.Customer, error)
	CreateSupplier(ctx context.Context, arg db.CreatePartyParams) (db.Supplier, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (db.Supplier, error)
	ListSuppliers(ctx context.Context, arg db.ListPartiesParams) ([]db.Supplier, error)
}

// Input is the payload for creating a customer or supplier.
type Input struct {
	Name  string `json:"name" validate:"required,max=160"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

func (in Input) params() db.CreatePartyParams {
	return db.CreatePartyParams{
		Name:  strings.TrimSpace(in.Name),
		Phone: db.Text(in.Phone),
		Email: db.Text(strings.ToLower(in.Email)),
	}
}

// Service manages customers and suppliers.
type Service struct {
	Q Querier
}

func (s *Service) CreateCustomer(ctx context.Context, in Input) (db.Customer, error) {
	if err := common.ValidateStruct(in); err != nil {
		return db.Customer{}, err
	}
	c, err := s.Q.CreateCustomer(ctx, in.params())
	if err != nil {
		return db.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (db.Customer, error) {
	c, err := s.Q.GetCustomer(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return db.Customer{}, common.ErrNotFound("customer not found")
	}
	return c, err
}

func (s *Service) ListCustomers(ctx context.Context, search string, page, perPage int) ([]db.Customer, error) {
	limit, offset := common.Window(page, perPage)
	return s.Q.ListCustomers(ctx, db.ListPartiesParams{Search: strings.TrimSpace(search), Limit: limit, Offset: offset})
}

func (s *Service) CreateSupplier(ctx context.Context, in Input) (db.Supplier, error) {
	if err := common.ValidateStruct(in); err != nil {
		return db.Supplier{}, err
	}
	sup, err := s.Q.CreateSupplier(ctx, in.params())
	if err != nil {
		return db.Supplier{}, fmt.Errorf("create supplier: %w", err)
	}
	return sup, nil
}

func (s *Service) GetSupplier(ctx context.Context, id uuid.UUID) (db.Supplier, error) {
	sup, err := s.Q.GetSupplier(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return db.Supplier{}, common.ErrNotFound("supplier not found")
	}
	return sup, err
}

func (s *Service) ListSuppliers(ctx context.Context, search string, page, perPage int) ([]db.Supplier, error) {
	limit, offset := common.Window(page, perPage)
	return s.Q.ListSuppliers(ctx, db.ListPartiesParams{Search: strings.TrimSpace(search), Limit: limit, Offset: offset})
}
