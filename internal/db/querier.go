package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Querier lists every statement the application issues.
type Querier interface {
	// catalog
	CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error)
	UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CountActiveProductsInCategory(ctx context.Context, categoryID uuid.UUID) (int64, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error)
	UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error)
	GetProductBySku(ctx context.Context, sku string) (Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error)
	CountProducts(ctx context.Context, arg ListProductsParams) (int64, error)
	SoftDeleteProduct(ctx context.Context, id uuid.UUID, at time.Time) error
	RestoreProduct(ctx context.Context, id uuid.UUID) (Product, error)
	HardDeleteProduct(ctx context.Context, id uuid.UUID) error
	DecrementStock(ctx context.Context, id uuid.UUID, qty int32) (int32, error)
	IncrementStock(ctx context.Context, id uuid.UUID, qty int32) (int32, error)
	SetProductCostPrice(ctx context.Context, id uuid.UUID, cost decimal.Decimal) error

	// promotions and coupons
	CreatePromotion(ctx context.Context, arg CreatePromotionParams) (Promotion, error)
	SetPromotionActive(ctx context.Context, id uuid.UUID, active bool) (Promotion, error)
	ListPromotions(ctx context.Context, activeOnly bool) ([]Promotion, error)
	DeletePromotion(ctx context.Context, id uuid.UUID) error
	CreatePromotionTarget(ctx context.Context, arg CreatePromotionTargetParams) (PromotionTarget, error)
	ListPromotionTargets(ctx context.Context) ([]PromotionTarget, error)

	CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error)
	ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error)
	SetCouponActive(ctx context.Context, id uuid.UUID, active bool) (Coupon, error)

	// sales
	CreateSale(ctx context.Context, arg CreateSaleParams) (Sale, error)
	CreateSaleItem(ctx context.Context, arg CreateSaleItemParams) (SaleItem, error)
	CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error)
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error)
	GetSaleByInvoice(ctx context.Context, invoiceNo string) (Sale, error)
	GetSaleByIdempotencyKey(ctx context.Context, cashierID uuid.UUID, key string) (Sale, error)
	ListSaleItems(ctx context.Context, saleID uuid.UUID) ([]SaleItem, error)
	ListSales(ctx context.Context, arg ListSalesParams) ([]Sale, error)
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]Sale, error)

	// returns
	CreateSalesReturn(ctx context.Context, arg CreateSalesReturnParams) (SalesReturn, error)
	CreateSalesReturnItem(ctx context.Context, arg CreateSalesReturnItemParams) (SalesReturnItem, error)
	ReturnedQuantitiesBySale(ctx context.Context, saleID uuid.UUID) ([]ReturnedQuantityRow, error)
	ListSalesReturns(ctx context.Context, saleID uuid.UUID) ([]SalesReturn, error)

	// stock ledger
	CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error)
	ListStockMovements(ctx context.Context, arg ListStockMovementsParams) ([]StockMovement, error)
	StockLedgerDrift(ctx context.Context) ([]StockDriftRow, error)

	// purchasing
	CreatePurchaseOrder(ctx context.Context, arg CreatePurchaseOrderParams) (PurchaseOrder, error)
	CreatePurchaseOrderItem(ctx context.Context, arg CreatePurchaseOrderItemParams) (PurchaseOrderItem, error)
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, arg ListPurchaseOrdersParams) ([]PurchaseOrder, error)
	ListPurchaseOrderItems(ctx context.Context, poID uuid.UUID) ([]PurchaseOrderItem, error)
	GetPurchaseOrderItemForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrderItem, error)
	AddPurchaseOrderItemReceived(ctx context.Context, id uuid.UUID, qty int32) (PurchaseOrderItem, error)
	UpdatePurchaseOrderStatus(ctx context.Context, id uuid.UUID, status string) error
	CreateProductCostHistory(ctx context.Context, arg CreateProductCostHistoryParams) (ProductCostHistory, error)

	// parties
	CreateCustomer(ctx context.Context, arg CreatePartyParams) (Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error)
	ListCustomers(ctx context.Context, arg ListPartiesParams) ([]Customer, error)
	CreateSupplier(ctx context.Context, arg CreatePartyParams) (Supplier, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error)
	ListSuppliers(ctx context.Context, arg ListPartiesParams) ([]Supplier, error)

	// events and audit
	InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error)
	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error)
	ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error)
}

var _ Querier = (*Queries)(nil)
