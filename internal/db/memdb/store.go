// Package memdb is an in-memory implementation of db.Store used by tests and
// local tooling. It mirrors the constraints of the PostgreSQL schema that the
// services rely on: unique keys, restricted deletes, guarded stock updates and
// transaction rollback.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/db"
)

type state struct {
	categories  map[uuid.UUID]db.Category
	products    map[uuid.UUID]db.Product
	promotions  map[uuid.UUID]db.Promotion
	targets     []db.PromotionTarget
	coupons     map[uuid.UUID]db.Coupon
	customers   map[uuid.UUID]db.Customer
	suppliers   map[uuid.UUID]db.Supplier
	sales       map[uuid.UUID]db.Sale
	saleItems   []db.SaleItem
	payments    []db.Payment
	returns     []db.SalesReturn
	returnItems []db.SalesReturnItem
	movements   []db.StockMovement
	orders      map[uuid.UUID]db.PurchaseOrder
	orderItems  []db.PurchaseOrderItem
	costHistory []db.ProductCostHistory
	events      []db.DomainEvent
	audit       []db.AuditLog
}

func newState() state {
	return state{
		categories: map[uuid.UUID]db.Category{},
		products:   map[uuid.UUID]db.Product{},
		promotions: map[uuid.UUID]db.Promotion{},
		coupons:    map[uuid.UUID]db.Coupon{},
		customers:  map[uuid.UUID]db.Customer{},
		suppliers:  map[uuid.UUID]db.Supplier{},
		sales:      map[uuid.UUID]db.Sale{},
		orders:     map[uuid.UUID]db.PurchaseOrder{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s state) clone() state {
	return state{
		categories:  cloneMap(s.categories),
		products:    cloneMap(s.products),
		promotions:  cloneMap(s.promotions),
		targets:     append([]db.PromotionTarget(nil), s.targets...),
		coupons:     cloneMap(s.coupons),
		customers:   cloneMap(s.customers),
		suppliers:   cloneMap(s.suppliers),
		sales:       cloneMap(s.sales),
		saleItems:   append([]db.SaleItem(nil), s.saleItems...),
		payments:    append([]db.Payment(nil), s.payments...),
		returns:     append([]db.SalesReturn(nil), s.returns...),
		returnItems: append([]db.SalesReturnItem(nil), s.returnItems...),
		movements:   append([]db.StockMovement(nil), s.movements...),
		orders:      cloneMap(s.orders),
		orderItems:  append([]db.PurchaseOrderItem(nil), s.orderItems...),
		costHistory: append([]db.ProductCostHistory(nil), s.costHistory...),
		events:      append([]db.DomainEvent(nil), s.events...),
		audit:       append([]db.AuditLog(nil), s.audit...),
	}
}

// Store is a goroutine-safe in-memory db.Store. Transactions are serialized.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state

	// Now overrides the clock used for created_at columns.
	Now func() time.Time
	// Fail, when set, is consulted before every statement; a non-nil return
	// aborts the statement with that error.
	Fail func(op string) error
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

var _ db.Store = (*Store)(nil)

// ExecTx runs fn and restores the previous state when fn fails.
func (s *Store) ExecTx(ctx context.Context, fn func(db.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	err := fn(s)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
	}
	return err
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) begin(op string) error {
	if s.Fail != nil {
		if err := s.Fail(op); err != nil {
			return err
		}
	}
	s.mu.Lock()
	return nil
}

func (s *Store) end() { s.mu.Unlock() }

func page[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

// ---- catalog ----

func (s *Store) categoryNameTaken(name string, except uuid.UUID) bool {
	for _, c := range s.st.categories {
		if c.ID != except && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) CreateCategory(_ context.Context, arg db.CreateCategoryParams) (db.Category, error) {
	if err := s.begin("CreateCategory"); err != nil {
		return db.Category{}, err
	}
	defer s.end()
	if s.categoryNameTaken(arg.Name, uuid.Nil) {
		return db.Category{}, db.NewConstraintError(db.ErrConflict, "categories_name_key")
	}
	now := s.now()
	c := db.Category{ID: uuid.New(), Name: arg.Name, Description: arg.Description, CreatedAt: now, UpdatedAt: now}
	s.st.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, arg db.UpdateCategoryParams) (db.Category, error) {
	if err := s.begin("UpdateCategory"); err != nil {
		return db.Category{}, err
	}
	defer s.end()
	c, ok := s.st.categories[arg.ID]
	if !ok {
		return db.Category{}, db.ErrNotFound
	}
	if s.categoryNameTaken(arg.Name, arg.ID) {
		return db.Category{}, db.NewConstraintError(db.ErrConflict, "categories_name_key")
	}
	c.Name, c.Description, c.UpdatedAt = arg.Name, arg.Description, s.now()
	s.st.categories[c.ID] = c
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, id uuid.UUID) (db.Category, error) {
	if err := s.begin("GetCategory"); err != nil {
		return db.Category{}, err
	}
	defer s.end()
	c, ok := s.st.categories[id]
	if !ok {
		return db.Category{}, db.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context) ([]db.Category, error) {
	if err := s.begin("ListCategories"); err != nil {
		return nil, err
	}
	defer s.end()
	out := make([]db.Category, 0, len(s.st.categories))
	for _, c := range s.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) CountActiveProductsInCategory(_ context.Context, categoryID uuid.UUID) (int64, error) {
	if err := s.begin("CountActiveProductsInCategory"); err != nil {
		return 0, err
	}
	defer s.end()
	var n int64
	for _, p := range s.st.products {
		if p.CategoryID.Valid && uuid.UUID(p.CategoryID.Bytes) == categoryID && !p.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteCategory(_ context.Context, id uuid.UUID) error {
	if err := s.begin("DeleteCategory"); err != nil {
		return err
	}
	defer s.end()
	if _, ok := s.st.categories[id]; !ok {
		return db.ErrNotFound
	}
	for _, p := range s.st.products {
		if p.CategoryID.Valid && uuid.UUID(p.CategoryID.Bytes) == id {
			return db.NewConstraintError(db.ErrReferenced, "products_category_id_fkey")
		}
	}
	delete(s.st.categories, id)
	return nil
}

func (s *Store) productKeyConflict(sku string, barcode string, hasBarcode bool, except uuid.UUID) string {
	for _, p := range s.st.products {
		if p.ID == except {
			continue
		}
		if p.Sku == sku {
			return "products_sku_key"
		}
		if hasBarcode && p.Barcode.Valid && p.Barcode.String == barcode {
			return "products_barcode_key"
		}
	}
	return ""
}

func (s *Store) CreateProduct(_ context.Context, arg db.CreateProductParams) (db.Product, error) {
	if err := s.begin("CreateProduct"); err != nil {
		return db.Product{}, err
	}
	defer s.end()
	if c := s.productKeyConflict(arg.Sku, arg.Barcode.String, arg.Barcode.Valid, uuid.Nil); c != "" {
		return db.Product{}, db.NewConstraintError(db.ErrConflict, c)
	}
	if arg.CategoryID.Valid {
		if _, ok := s.st.categories[uuid.UUID(arg.CategoryID.Bytes)]; !ok {
			return db.Product{}, db.NewConstraintError(db.ErrReferenced, "products_category_id_fkey")
		}
	}
	now := s.now()
	p := db.Product{
		ID: uuid.New(), Name: arg.Name, Sku: arg.Sku, Barcode: arg.Barcode, CategoryID: arg.CategoryID,
		Price: arg.Price, CostPrice: arg.CostPrice, Stock: arg.Stock, MinStock: arg.MinStock,
		CreatedAt: now, UpdatedAt: now,
	}
	s.st.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, arg db.UpdateProductParams) (db.Product, error) {
	if err := s.begin("UpdateProduct"); err != nil {
		return db.Product{}, err
	}
	defer s.end()
	p, ok := s.st.products[arg.ID]
	if !ok || p.IsDeleted {
		return db.Product{}, db.ErrNotFound
	}
	if c := s.productKeyConflict(arg.Sku, arg.Barcode.String, arg.Barcode.Valid, arg.ID); c != "" {
		return db.Product{}, db.NewConstraintError(db.ErrConflict, c)
	}
	if arg.CategoryID.Valid {
		if _, ok := s.st.categories[uuid.UUID(arg.CategoryID.Bytes)]; !ok {
			return db.Product{}, db.NewConstraintError(db.ErrReferenced, "products_category_id_fkey")
		}
	}
	p.Name, p.Sku, p.Barcode, p.CategoryID = arg.Name, arg.Sku, arg.Barcode, arg.CategoryID
	p.Price, p.CostPrice, p.MinStock, p.UpdatedAt = arg.Price, arg.CostPrice, arg.MinStock, s.now()
	s.st.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (db.Product, error) {
	return s.getProduct("GetProduct", id)
}

// GetProductForUpdate behaves like GetProduct; ExecTx already serializes writers.
func (s *Store) GetProductForUpdate(_ context.Context, id uuid.UUID) (db.Product, error) {
	return s.getProduct("GetProductForUpdate", id)
}

func (s *Store) getProduct(op string, id uuid.UUID) (db.Product, error) {
	if err := s.begin(op); err != nil {
		return db.Product{}, err
	}
	defer s.end()
	p, ok := s.st.products[id]
	if !ok {
		return db.Product{}, db.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProductBySku(_ context.Context, sku string) (db.Product, error) {
	if err := s.begin("GetProductBySku"); err != nil {
		return db.Product{}, err
	}
	defer s.end()
	for _, p := range s.st.products {
		if p.Sku == sku {
			return p, nil
		}
	}
	return db.Product{}, db.ErrNotFound
}

func sortProducts(items []db.Product) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []uuid.UUID) ([]db.Product, error) {
	if err := s.begin("GetProductsByIDs"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.Product
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		if p, ok := s.st.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

func (s *Store) filterProducts(arg db.ListProductsParams) []db.Product {
	search := strings.ToLower(arg.Search)
	var out []db.Product
	for _, p := range s.st.products {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Sku), search) && !(p.Barcode.Valid && p.Barcode.String == arg.Search) {
			continue
		}
		if arg.CategoryID.Valid && (!p.CategoryID.Valid || p.CategoryID.Bytes != arg.CategoryID.Bytes) {
			continue
		}
		if arg.LowStockOnly && p.Stock > p.MinStock {
			continue
		}
		if !arg.IncludeDeleted && p.IsDeleted {
			continue
		}
		out = append(out, p)
	}
	sortProducts(out)
	return out
}

func (s *Store) ListProducts(_ context.Context, arg db.ListProductsParams) ([]db.Product, error) {
	if err := s.begin("ListProducts"); err != nil {
		return nil, err
	}
	defer s.end()
	return page(s.filterProducts(arg), arg.Limit, arg.Offset), nil
}

func (s *Store) CountProducts(_ context.Context, arg db.ListProductsParams) (int64, error) {
	if err := s.begin("CountProducts"); err != nil {
		return 0, err
	}
	defer s.end()
	return int64(len(s.filterProducts(arg))), nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, id uuid.UUID, at time.Time) error {
	if err := s.begin("SoftDeleteProduct"); err != nil {
		return err
	}
	defer s.end()
	p, ok := s.st.products[id]
	if !ok || p.IsDeleted {
		return db.ErrNotFound
	}
	p.IsDeleted = true
	p.DeletedAt.Time, p.DeletedAt.Valid = at, true
	p.UpdatedAt = at
	s.st.products[id] = p
	return nil
}

func (s *Store) RestoreProduct(_ context.Context, id uuid.UUID) (db.Product, error) {
	if err := s.begin("RestoreProduct"); err != nil {
		return db.Product{}, err
	}
	defer s.end()
	p, ok := s.st.products[id]
	if !ok || !p.IsDeleted {
		return db.Product{}, db.ErrNotFound
	}
	p.IsDeleted = false
	p.DeletedAt.Valid = false
	p.UpdatedAt = s.now()
	s.st.products[id] = p
	return p, nil
}

func (s *Store) HardDeleteProduct(_ context.Context, id uuid.UUID) error {
	if err := s.begin("HardDeleteProduct"); err != nil {
		return err
	}
	defer s.end()
	if _, ok := s.st.products[id]; !ok {
		return db.ErrNotFound
	}
	for _, it := range s.st.saleItems {
		if it.ProductID == id {
			return db.NewConstraintError(db.ErrReferenced, "sale_items_product_id_fkey")
		}
	}
	for _, it := range s.st.orderItems {
		if it.ProductID == id {
			return db.NewConstraintError(db.ErrReferenced, "purchase_order_items_product_id_fkey")
		}
	}
	delete(s.st.products, id)
	kept := s.st.movements[:0:0]
	for _, m := range s.st.movements {
		if m.ProductID != id {
			kept = append(kept, m)
		}
	}
	s.st.movements = kept
	return nil
}

func (s *Store) DecrementStock(_ context.Context, id uuid.UUID, qty int32) (int32, error) {
	if err := s.begin("DecrementStock"); err != nil {
		return 0, err
	}
	defer s.end()
	p, ok := s.st.products[id]
	if !ok || p.IsDeleted || p.Stock < qty {
		return 0, db.ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = s.now()
	s.st.products[id] = p
	return p.Stock, nil
}

func (s *Store) IncrementStock(_ context.Context, id uuid.UUID, qty int32) (int32, error) {
	if err := s.begin("IncrementStock"); err != nil {
		return 0, err
	}
	defer s.end()
	p, ok := s.st.products[id]
	if !ok {
		return 0, db.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = s.now()
	s.st.products[id] = p
	return p.Stock, nil
}

func (s *Store) SetProductCostPrice(_ context.Context, id uuid.UUID, cost decimal.Decimal) error {
	if err := s.begin("SetProductCostPrice"); err != nil {
		return err
	}
	defer s.end()
	p, ok := s.st.products[id]
	if !ok {
		return db.ErrNotFound
	}
	p.CostPrice = decimal.NewNullDecimal(cost)
	p.UpdatedAt = s.now()
	s.st.products[id] = p
	return nil
}
