package memdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/db"
)

// ---- stock ledger ----

func (s *Store) CreateStockMovement(_ context.Context, arg db.CreateStockMovementParams) (db.StockMovement, error) {
	if err := s.begin("CreateStockMovement"); err != nil {
		return db.StockMovement{}, err
	}
	defer s.end()
	if _, ok := s.st.products[arg.ProductID]; !ok {
		return db.StockMovement{}, db.NewConstraintError(db.ErrReferenced, "stock_movements_product_id_fkey")
	}
	m := db.StockMovement{
		ID: uuid.New(), ProductID: arg.ProductID, UserID: arg.UserID, Kind: arg.Kind, Quantity: arg.Quantity,
		Reason: arg.Reason, RefTable: arg.RefTable, RefID: arg.RefID, CreatedAt: s.now(),
	}
	s.st.movements = append(s.st.movements, m)
	return m, nil
}

// ListStockMovements returns the newest entries first; entries with the same
// timestamp keep reverse insertion order.
func (s *Store) ListStockMovements(_ context.Context, arg db.ListStockMovementsParams) ([]db.StockMovement, error) {
	if err := s.begin("ListStockMovements"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.StockMovement
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		m := s.st.movements[i]
		if arg.ProductID.Valid && uuid.UUID(arg.ProductID.Bytes) != m.ProductID {
			continue
		}
		if arg.Kind != "" && arg.Kind != m.Kind {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, arg.Limit, arg.Offset), nil
}

func (s *Store) StockLedgerDrift(_ context.Context) ([]db.StockDriftRow, error) {
	if err := s.begin("StockLedgerDrift"); err != nil {
		return nil, err
	}
	defer s.end()
	totals := map[uuid.UUID]int64{}
	for _, m := range s.st.movements {
		totals[m.ProductID] += int64(m.Quantity)
	}
	var out []db.StockDriftRow
	for _, p := range s.st.products {
		if int64(p.Stock) != totals[p.ID] {
			out = append(out, db.StockDriftRow{ProductID: p.ID, Name: p.Name, Sku: p.Sku, Stock: p.Stock, LedgerTotal: totals[p.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out, nil
}

// ---- purchasing ----

func (s *Store) CreatePurchaseOrder(_ context.Context, arg db.CreatePurchaseOrderParams) (db.PurchaseOrder, error) {
	if err := s.begin("CreatePurchaseOrder"); err != nil {
		return db.PurchaseOrder{}, err
	}
	defer s.end()
	if _, ok := s.st.suppliers[arg.SupplierID]; !ok {
		return db.PurchaseOrder{}, db.NewConstraintError(db.ErrReferenced, "purchase_orders_supplier_id_fkey")
	}
	po := db.PurchaseOrder{ID: uuid.New(), SupplierID: arg.SupplierID, Status: db.POStatusOpen, Notes: arg.Notes, CreatedBy: arg.CreatedBy, CreatedAt: s.now()}
	s.st.orders[po.ID] = po
	return po, nil
}

func (s *Store) CreatePurchaseOrderItem(_ context.Context, arg db.CreatePurchaseOrderItemParams) (db.PurchaseOrderItem, error) {
	if err := s.begin("CreatePurchaseOrderItem"); err != nil {
		return db.PurchaseOrderItem{}, err
	}
	defer s.end()
	if _, ok := s.st.orders[arg.PoID]; !ok {
		return db.PurchaseOrderItem{}, db.NewConstraintError(db.ErrReferenced, "purchase_order_items_po_id_fkey")
	}
	if _, ok := s.st.products[arg.ProductID]; !ok {
		return db.PurchaseOrderItem{}, db.NewConstraintError(db.ErrReferenced, "purchase_order_items_product_id_fkey")
	}
	it := db.PurchaseOrderItem{ID: uuid.New(), PoID: arg.PoID, ProductID: arg.ProductID, QuantityOrdered: arg.QuantityOrdered, UnitCost: arg.UnitCost}
	s.st.orderItems = append(s.st.orderItems, it)
	return it, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id uuid.UUID) (db.PurchaseOrder, error) {
	if err := s.begin("GetPurchaseOrder"); err != nil {
		return db.PurchaseOrder{}, err
	}
	defer s.end()
	po, ok := s.st.orders[id]
	if !ok {
		return db.PurchaseOrder{}, db.ErrNotFound
	}
	return po, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, arg db.ListPurchaseOrdersParams) ([]db.PurchaseOrder, error) {
	if err := s.begin("ListPurchaseOrders"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.PurchaseOrder
	for _, po := range s.st.orders {
		if arg.Status != "" && po.Status != arg.Status {
			continue
		}
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, arg.Limit, arg.Offset), nil
}

func (s *Store) ListPurchaseOrderItems(_ context.Context, poID uuid.UUID) ([]db.PurchaseOrderItem, error) {
	if err := s.begin("ListPurchaseOrderItems"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.PurchaseOrderItem
	for _, it := range s.st.orderItems {
		if it.PoID == poID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) GetPurchaseOrderItemForUpdate(_ context.Context, id uuid.UUID) (db.PurchaseOrderItem, error) {
	if err := s.begin("GetPurchaseOrderItemForUpdate"); err != nil {
		return db.PurchaseOrderItem{}, err
	}
	defer s.end()
	for _, it := range s.st.orderItems {
		if it.ID == id {
			return it, nil
		}
	}
	return db.PurchaseOrderItem{}, db.ErrNotFound
}

func (s *Store) AddPurchaseOrderItemReceived(_ context.Context, id uuid.UUID, qty int32) (db.PurchaseOrderItem, error) {
	if err := s.begin("AddPurchaseOrderItemReceived"); err != nil {
		return db.PurchaseOrderItem{}, err
	}
	defer s.end()
	for i, it := range s.st.orderItems {
		if it.ID != id {
			continue
		}
		if it.QuantityReceived+qty > it.QuantityOrdered {
			return db.PurchaseOrderItem{}, db.ErrNotFound
		}
		it.QuantityReceived += qty
		s.st.orderItems[i] = it
		return it, nil
	}
	return db.PurchaseOrderItem{}, db.ErrNotFound
}

func (s *Store) UpdatePurchaseOrderStatus(_ context.Context, id uuid.UUID, status string) error {
	if err := s.begin("UpdatePurchaseOrderStatus"); err != nil {
		return err
	}
	defer s.end()
	po, ok := s.st.orders[id]
	if !ok {
		return db.ErrNotFound
	}
	po.Status = status
	s.st.orders[id] = po
	return nil
}

func (s *Store) CreateProductCostHistory(_ context.Context, arg db.CreateProductCostHistoryParams) (db.ProductCostHistory, error) {
	if err := s.begin("CreateProductCostHistory"); err != nil {
		return db.ProductCostHistory{}, err
	}
	defer s.end()
	h := db.ProductCostHistory{ID: uuid.New(), ProductID: arg.ProductID, UnitCost: arg.UnitCost, SourceRef: arg.SourceRef, CreatedAt: s.now()}
	s.st.costHistory = append(s.st.costHistory, h)
	return h, nil
}

// CostHistory returns every recorded cost entry for a product. It has no SQL
// counterpart and exists for assertions in tests.
func (s *Store) CostHistory(productID uuid.UUID) []db.ProductCostHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.ProductCostHistory
	for _, h := range s.st.costHistory {
		if h.ProductID == productID {
			out = append(out, h)
		}
	}
	return out
}

// ---- parties ----

func partyMatches(search, name, phone, email string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(search)) || phone == search || email == search
}

func (s *Store) CreateCustomer(_ context.Context, arg db.CreatePartyParams) (db.Customer, error) {
	if err := s.begin("CreateCustomer"); err != nil {
		return db.Customer{}, err
	}
	defer s.end()
	c := db.Customer{ID: uuid.New(), Name: arg.Name, Phone: arg.Phone, Email: arg.Email, CreatedAt: s.now()}
	s.st.customers[c.ID] = c
	return c, nil
}

func (s *Store) GetCustomer(_ context.Context, id uuid.UUID) (db.Customer, error) {
	if err := s.begin("GetCustomer"); err != nil {
		return db.Customer{}, err
	}
	defer s.end()
	c, ok := s.st.customers[id]
	if !ok {
		return db.Customer{}, db.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCustomers(_ context.Context, arg db.ListPartiesParams) ([]db.Customer, error) {
	if err := s.begin("ListCustomers"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.Customer
	for _, c := range s.st.customers {
		if partyMatches(arg.Search, c.Name, c.Phone.String, c.Email.String) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, arg.Limit, arg.Offset), nil
}

func (s *Store) CreateSupplier(_ context.Context, arg db.CreatePartyParams) (db.Supplier, error) {
	if err := s.begin("CreateSupplier"); err != nil {
		return db.Supplier{}, err
	}
	defer s.end()
	sup := db.Supplier{ID: uuid.New(), Name: arg.Name, Phone: arg.Phone, Email: arg.Email, CreatedAt: s.now()}
	s.st.suppliers[sup.ID] = sup
	return sup, nil
}

func (s *Store) GetSupplier(_ context.Context, id uuid.UUID) (db.Supplier, error) {
	if err := s.begin("GetSupplier"); err != nil {
		return db.Supplier{}, err
	}
	defer s.end()
	sup, ok := s.st.suppliers[id]
	if !ok {
		return db.Supplier{}, db.ErrNotFound
	}
	return sup, nil
}

func (s *Store) ListSuppliers(_ context.Context, arg db.ListPartiesParams) ([]db.Supplier, error) {
	if err := s.begin("ListSuppliers"); err != nil {
		return nil, err
	}
	defer s.end()
	var out []db.Supplier
	for _, sup := range s.st.suppliers {
		if partyMatches(arg.Search, sup.Name, sup.Phone.String, sup.Email.String) {
			out = append(out, sup)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, arg.Limit, arg.Offset), nil
}

// ---- events and audit ----

func (s *Store) InsertDomainEvent(_ context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error) {
	if err := s.begin("InsertDomainEvent"); err != nil {
		return db.DomainEvent{}, err
	}
	defer s.end()
	e := db.DomainEvent{ID: uuid.New(), Topic: arg.Topic, AggregateID: arg.AggregateID, Payload: append([]byte(nil), arg.Payload...), OccurredAt: s.now()}
	s.st.events = append(s.st.events, e)
	return e, nil
}

// Events returns the recorded domain events for a topic, oldest first. An
// empty topic returns all of them.
func (s *Store) Events(topic string) []db.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.DomainEvent
	for _, e := range s.st.events {
		if topic == "" || e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) InsertAuditLog(_ context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error) {
	if err := s.begin("InsertAuditLog"); err != nil {
		return db.AuditLog{}, err
	}
	defer s.end()
	l := db.AuditLog{
		ID: uuid.New(), ActorKind: arg.ActorKind, ActorUserID: arg.ActorUserID, Action: arg.Action,
		ResourceType: arg.ResourceType, ResourceID: arg.ResourceID, Method: arg.Method, Path: arg.Path,
		Route: arg.Route, Status: arg.Status, Ip: arg.Ip, UserAgent: arg.UserAgent, RequestID: arg.RequestID,
		Metadata: append([]byte(nil), arg.Metadata...), OccurredAt: s.now(),
	}
	s.st.audit = append(s.st.audit, l)
	return l, nil
}

func (s *Store) ListAuditLogs(_ context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error) {
	if err := s.begin("ListAuditLogs"); err != nil {
		return nil, err
	}
	defer s.end()
	out := make([]db.AuditLog, 0, len(s.st.audit))
	for i := len(s.st.audit) - 1; i >= 0; i-- {
		out = append(out, s.st.audit[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return page(out, arg.Limit, arg.Offset), nil
}
