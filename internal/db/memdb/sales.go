package memdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/db"
)

func (s *Store) CreateSale(_ context.Context, arg db.CreateSaleParams) (db.Sale, error) {
	if err := s.begin("CreateSale"); err != nil {
		return db.Sale{}, err
	}
	defer s.end()
	for _, existing := range s.st.sales {
		if existing.InvoiceNo == arg.InvoiceNo {
			return db.Sale{}, db.NewConstraintError(db.ErrConflict, "sales_invoice_no_key")
		}
		if arg.IdempotencyKey.Valid && existing.IdempotencyKey.Valid && existing.CashierID == arg.CashierID &&
			existing.IdempotencyKey.String == arg.IdempotencyKey.String {
			return db.Sale{}, db.NewConstraintError(db.ErrConflict, db.SalesIdempotencyConstraint)
		}
	}
	if arg.CustomerID.Valid {
		if _, ok := s.st.customers[uuid.UUID(arg.CustomerID.Bytes)]; !ok {
			return db.Sale{}, db.NewConstraintError(db.ErrReferenced, "sales_customer_id_fkey")
		}
	}
	createdAt := arg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	sale := db.Sale{
		ID: uuid.New(), InvoiceNo: arg.InvoiceNo, CashierID: arg.CashierID, CustomerID: arg.CustomerID,
		Subtotal: arg.Subtotal, Discount: arg.Discount, DiscountRate: arg.DiscountRate, Tax: arg.Tax, Total: arg.Total,
		PaymentMethod: arg.PaymentMethod, PaymentConfirmed: arg.PaymentConfirmed, CouponCode: arg.CouponCode,
		Items: append([]byte(nil), arg.Items...), IdempotencyKey: arg.IdempotencyKey, CreatedAt: createdAt.UTC(),
	}
	s.st.sales[sale.ID] = sale
	return sale, nil
}

func (s *Store) CreateSaleItem(_ context.Context, arg db.CreateSaleItemParams) (db.SaleItem, error) {
	if err := s.begin("CreateSaleItem"); err != nil {
		return db.SaleItem{}, err
	}
	defer s.end()
	if _, ok := s.st.sales[arg.SaleID]; !ok {
		return db.SaleItem{}, db.NewConstraintError(db.ErrReferenced, "sale_items_sale_id_fkey")
	}
	if _, ok := s.st.products[arg.ProductID]; !ok {
		return db.SaleItem{}, db.NewConstraintError(db.ErrReferenced, "sale_items_product_id_fkey")
	}
	item := db.SaleItem{
		ID: uuid.New(), SaleID: arg.SaleID, LineNo: arg.LineNo, ProductID: arg.ProductID, Quantity: arg.Quantity,
		UnitPrice: arg.UnitPrice, BasePrice: arg.BasePrice, NameSnapshot: arg.NameSnapshot, SkuSnapshot: arg.SkuSnapshot,
	}
	s.st.saleItems = append(s.st.saleItems, item)
	return item, nil
}

func (s *Store) CreatePayment(_ context.Context, arg db.CreatePaymentParams) (db.Payment, error) {
	if err := s.begin("CreatePayment"); err != nil {
		return db.Payment{}, err
	}
	defer s.end()
	if _, ok := s.st.sales[arg.SaleID]; !ok {
		return db.Payment{}, db.NewConstraintError(db.ErrReferenced, "payments_sale_id_fkey")
	}
	p := db.Payment{ID: uuid.New(), SaleID: arg.SaleID, Method: arg.Method, Amount: arg.Amount, Confirmed: arg.Confirmed, CreatedAt: s.now()}
	s.st.payments = append(s.st.payments, p)
	return p, nil
}

func (s *Store) getSale(op string, id uuid.UUID) (db.Sale, error) {
	if err := s.begin(op); err != nil {
		return db.Sale{}, err
	}
	defer s.end()
	sale, ok := s.st.sales[id]
	if !ok || sale.IsDeleted {
		return db.Sale{}, db.ErrNotFound
	}
	return sale, nil
}

func (s *Store) GetSale(_ context.Context, id uuid.UUID) (db.Sale, error) {
	return s.getSale("GetSale", id)
}

// GetSaleForUpdate behaves like GetSale; ExecTx already serializes writers.
func (s *Store) GetSaleForUpdate(_ context.Context, id uuid.UUID) (db.Sale, error) {
	return s.getSale("GetSaleForUpdate", id)
}

func (s *Store) findSale(op string, match func(db.Sale) bool) (db.Sale, error) {
	if err := s.begin(op); err != nil {
		return db.Sale{}, err
	}
	defer s.end()
	for _, sale := range s.st.sales {
		if match(sale) {
			return sale, nil
		}
	}
	return db.Sale{}, db.ErrNotFound
}

func (s *Store) GetSaleByInvoice(_ context.Context, invoiceNo string) (db.Sale, error) {
	return s.findSale("GetSaleByInvoice", func(sale db.Sale) bool { return sale.InvoiceNo == invoiceNo })
}

func (s *Store) GetSaleByIdempotencyKey(_ context.Context, cashierID uuid.UUID, key string) (db.Sale, error) {
	return s.findSale("GetSaleByIdempotencyKey", func(sale db.Sale) bool {
		return sale.CashierID == cashierID && sale.IdempotencyKey.Valid && sale.IdempotencyKey.String == key
	})
}

func (s *Store) ListSaleItems(_ context.Context, saleID uuid.UUID) ([]db.SaleItem, error) {
	if err := s.begin("ListSaleItems"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.SaleItem
	for _, it := range s.st.saleItems {
		if it.SaleID == saleID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, nil
}

func (s *Store) ListSales(_ context.Context, arg db.ListSalesParams) ([]db.Sale, error) {
	if err := s.begin("ListSales"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.Sale
	for _, sale := range s.st.sales {
		if sale.IsDeleted {
			continue
		}
		if arg.From.Valid && sale.CreatedAt.Before(arg.From.Time) {
			continue
		}
		if arg.To.Valid && !sale.CreatedAt.Before(arg.To.Time) {
			continue
		}
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, arg.Limit, arg.Offset), nil
}

func (s *Store) ListSalesBetween(_ context.Context, from, to time.Time) ([]db.Sale, error) {
	if err := s.begin("ListSalesBetween"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.Sale
	for _, sale := range s.st.sales {
		if sale.IsDeleted || sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// ---- returns ----

func (s *Store) CreateSalesReturn(_ context.Context, arg db.CreateSalesReturnParams) (db.SalesReturn, error) {
	if err := s.begin("CreateSalesReturn"); err != nil {
		return db.SalesReturn{}, err
	}
	defer s.end()
	if _, ok := s.st.sales[arg.SaleID]; !ok {
		return db.SalesReturn{}, db.NewConstraintError(db.ErrReferenced, "sales_returns_sale_id_fkey")
	}
	r := db.SalesReturn{ID: uuid.New(), SaleID: arg.SaleID, ActorID: arg.ActorID, Reason: arg.Reason, RefundTotal: arg.RefundTotal, CreatedAt: s.now()}
	s.st.returns = append(s.st.returns, r)
	return r, nil
}

func (s *Store) CreateSalesReturnItem(_ context.Context, arg db.CreateSalesReturnItemParams) (db.SalesReturnItem, error) {
	if err := s.begin("CreateSalesReturnItem"); err != nil {
		return db.SalesReturnItem{}, err
	}
	defer s.end()
	found := false
	for _, r := range s.st.returns {
		if r.ID == arg.ReturnID {
			found = true
			break
		}
	}
	if !found {
		return db.SalesReturnItem{}, db.NewConstraintError(db.ErrReferenced, "sales_return_items_return_id_fkey")
	}
	it := db.SalesReturnItem{
		ID: uuid.New(), ReturnID: arg.ReturnID, SaleItemID: arg.SaleItemID, ProductID: arg.ProductID,
		Quantity: arg.Quantity, RefundAmount: arg.RefundAmount,
	}
	s.st.returnItems = append(s.st.returnItems, it)
	return it, nil
}

func (s *Store) ReturnedQuantitiesBySale(_ context.Context, saleID uuid.UUID) ([]db.ReturnedQuantityRow, error) {
	if err := s.begin("ReturnedQuantitiesBySale"); err != nil {
		return nil, err
	}
	defer s.end()
	returnIDs := map[uuid.UUID]bool{}
	for _, r := range s.st.returns {
		if r.SaleID == saleID {
			returnIDs[r.ID] = true
		}
	}
	sums := map[uuid.UUID]int64{}
	var order []uuid.UUID
	for _, it := range s.st.returnItems {
		if !returnIDs[it.ReturnID] {
			continue
		}
		if _, ok := sums[it.SaleItemID]; !ok {
			order = append(order, it.SaleItemID)
		}
		sums[it.SaleItemID] += int64(it.Quantity)
	}
	out := make([]db.ReturnedQuantityRow, 0, len(order))
	for _, id := range order {
		out = append(out, db.ReturnedQuantityRow{SaleItemID: id, Quantity: sums[id]})
	}
	return out, nil
}

func (s *Store) ListSalesReturns(_ context.Context, saleID uuid.UUID) ([]db.SalesReturn, error) {
	if err := s.begin("ListSalesReturns"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.SalesReturn
	for _, r := range s.st.returns {
		if r.SaleID == saleID {
			out = append(out, r)
		}
	}
	return out, nil
}
