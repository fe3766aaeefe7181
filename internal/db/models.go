package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Stock movement kinds recorded in the ledger.
const (
	MovementPOReceipt    = "po_receipt"
	MovementSaleOut      = "sale_out"
	MovementReturnIn     = "return_in"
	MovementDamageOut    = "damage_out"
	MovementManualAdjust = "manual_adjust"
)

// Promotion kinds and target types.
const (
	PromotionPercent = "percent"
	PromotionFixed   = "fixed"

	TargetProduct  = "product"
	TargetCategory = "category"
)

// Purchase order statuses.
const (
	POStatusOpen     = "open"
	POStatusPartial  = "partial"
	POStatusReceived = "received"
)

type Category struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description pgtype.Text `json:"description"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Product struct {
	ID         uuid.UUID           `json:"id"`
	Name       string              `json:"name"`
	Sku        string              `json:"sku"`
	Barcode    pgtype.Text         `json:"barcode"`
	CategoryID pgtype.UUID         `json:"category_id"`
	Price      decimal.Decimal     `json:"price"`
	CostPrice  decimal.NullDecimal `json:"cost_price"`
	Stock      int32               `json:"stock"`
	MinStock   int32               `json:"min_stock"`
	IsDeleted  bool                `json:"is_deleted"`
	DeletedAt  pgtype.Timestamptz  `json:"deleted_at"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

type Promotion struct {
	ID        uuid.UUID          `json:"id"`
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	Value     decimal.Decimal    `json:"value"`
	StartsAt  pgtype.Timestamptz `json:"starts_at"`
	EndsAt    pgtype.Timestamptz `json:"ends_at"`
	Active    bool               `json:"active"`
	CreatedAt time.Time          `json:"created_at"`
}

type PromotionTarget struct {
	ID          uuid.UUID `json:"id"`
	PromotionID uuid.UUID `json:"promotion_id"`
	TargetType  string    `json:"target_type"`
	TargetID    uuid.UUID `json:"target_id"`
}

type Coupon struct {
	ID         uuid.UUID       `json:"id"`
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     bool            `json:"active"`
	CreatedBy  pgtype.UUID     `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Customer struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Phone     pgtype.Text `json:"phone"`
	Email     pgtype.Text `json:"email"`
	CreatedAt time.Time   `json:"created_at"`
}

type Supplier struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Phone     pgtype.Text `json:"phone"`
	Email     pgtype.Text `json:"email"`
	CreatedAt time.Time   `json:"created_at"`
}

// Sale is the persisted sale header. Items holds the JSON snapshot of the
// line items as sold; the normalized rows live in sale_items.
type Sale struct {
	ID               uuid.UUID           `json:"id"`
	InvoiceNo        string              `json:"invoice_no"`
	CashierID        uuid.UUID           `json:"cashier_id"`
	CustomerID       pgtype.UUID         `json:"customer_id"`
	Subtotal         decimal.Decimal     `json:"subtotal"`
	Discount         decimal.Decimal     `json:"discount"`
	DiscountRate     decimal.NullDecimal `json:"discount_rate"`
	Tax              decimal.Decimal     `json:"tax"`
	Total            decimal.Decimal     `json:"total"`
	PaymentMethod    string              `json:"payment_method"`
	PaymentConfirmed bool                `json:"payment_confirmed"`
	CouponCode       pgtype.Text         `json:"coupon_code"`
	Items            json.RawMessage     `json:"items"`
	IdempotencyKey   pgtype.Text         `json:"-"`
	IsDeleted        bool                `json:"is_deleted"`
	CreatedAt        time.Time           `json:"created_at"`
}

type SaleItem struct {
	ID           uuid.UUID       `json:"id"`
	SaleID       uuid.UUID       `json:"sale_id"`
	LineNo       int32           `json:"line_no"`
	ProductID    uuid.UUID       `json:"product_id"`
	Quantity     int32           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	BasePrice    decimal.Decimal `json:"base_price"`
	NameSnapshot string          `json:"name"`
	SkuSnapshot  string          `json:"sku"`
}

type Payment struct {
	ID        uuid.UUID       `json:"id"`
	SaleID    uuid.UUID       `json:"sale_id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Confirmed bool            `json:"confirmed"`
	CreatedAt time.Time       `json:"created_at"`
}

type SalesReturn struct {
	ID          uuid.UUID       `json:"id"`
	SaleID      uuid.UUID       `json:"sale_id"`
	ActorID     uuid.UUID       `json:"actor_id"`
	Reason      pgtype.Text     `json:"reason"`
	RefundTotal decimal.Decimal `json:"refund_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

type SalesReturnItem struct {
	ID           uuid.UUID       `json:"id"`
	ReturnID     uuid.UUID       `json:"return_id"`
	SaleItemID   uuid.UUID       `json:"sale_item_id"`
	ProductID    uuid.UUID       `json:"product_id"`
	Quantity     int32           `json:"quantity"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

type StockMovement struct {
	ID        uuid.UUID   `json:"id"`
	ProductID uuid.UUID   `json:"product_id"`
	UserID    pgtype.UUID `json:"user_id"`
	Kind      string      `json:"kind"`
	Quantity  int32       `json:"quantity"`
	Reason    string      `json:"reason"`
	RefTable  pgtype.Text `json:"ref_table"`
	RefID     pgtype.UUID `json:"ref_id"`
	CreatedAt time.Time   `json:"created_at"`
}

type PurchaseOrder struct {
	ID         uuid.UUID   `json:"id"`
	SupplierID uuid.UUID   `json:"supplier_id"`
	Status     string      `json:"status"`
	Notes      pgtype.Text `json:"notes"`
	CreatedBy  uuid.UUID   `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"`
}

type PurchaseOrderItem struct {
	ID               uuid.UUID       `json:"id"`
	PoID             uuid.UUID       `json:"po_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	QuantityOrdered  int32           `json:"quantity_ordered"`
	QuantityReceived int32           `json:"quantity_received"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
}

type ProductCostHistory struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	SourceRef string          `json:"source_ref"`
	CreatedAt time.Time       `json:"created_at"`
}

type DomainEvent struct {
	ID          uuid.UUID `json:"id"`
	Topic       string    `json:"topic"`
	AggregateID uuid.UUID `json:"aggregate_id"`
	Payload     []byte    `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorKind    string      `json:"actor_kind"`
	ActorUserID  pgtype.UUID `json:"actor_user_id"`
	Action       string      `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   pgtype.Text `json:"resource_id"`
	Method       string      `json:"method"`
	Path         string      `json:"path"`
	Route        pgtype.Text `json:"route"`
	Status       int32       `json:"status"`
	Ip           pgtype.Text `json:"ip"`
	UserAgent    pgtype.Text `json:"user_agent"`
	RequestID    pgtype.Text `json:"request_id"`
	Metadata     []byte      `json:"metadata"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// SaleItemSnapshot is one element of the sales.items JSON snapshot.
type SaleItemSnapshot struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Sku       string          `json:"sku"`
	Quantity  int32           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	BasePrice decimal.Decimal `json:"basePrice"`
}
