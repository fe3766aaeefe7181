package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/stock"
)

// Invalidator drops derived caches that depend on catalog data.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service orchestrates catalog writes, listing and caching.
type Service struct {
	store        db.Store
	cache        *Cache
	reports      Invalidator
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        db.Store
	Cache        *Cache
	Reports      Invalidator
	DefaultLimit int
	MaxLimit     int
	Now          func() time.Time
}

// CategoryInput is the payload for creating or renaming a category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

// ProductInput is the payload for creating a product. Stock is the opening
// quantity and is recorded in the ledger; later changes go through stock
// adjustments, sales, returns and receipts.
type ProductInput struct {
	Name       string           `json:"name" validate:"required,max=200"`
	Sku        string           `json:"sku" validate:"required,max=64"`
	Barcode    string           `json:"barcode" validate:"max=64"`
	CategoryID string           `json:"categoryId" validate:"omitempty,uuid"`
	Price      decimal.Decimal  `json:"price"`
	CostPrice  *decimal.Decimal `json:"costPrice"`
	Stock      int32            `json:"stock" validate:"gte=0"`
	MinStock   int32            `json:"minStock" validate:"gte=0"`
}

// ProductUpdate is the payload for editing product attributes.
type ProductUpdate struct {
	Name       string           `json:"name" validate:"required,max=200"`
	Sku        string           `json:"sku" validate:"required,max=64"`
	Barcode    string           `json:"barcode" validate:"max=64"`
	CategoryID string           `json:"categoryId" validate:"omitempty,uuid"`
	Price      decimal.Decimal  `json:"price"`
	CostPrice  *decimal.Decimal `json:"costPrice"`
	MinStock   int32            `json:"minStock" validate:"gte=0"`
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query          string    `json:"q,omitempty"`
	CategoryID     uuid.UUID `json:"category,omitempty"`
	LowStock       bool      `json:"lowStock,omitempty"`
	IncludeDeleted bool      `json:"includeDeleted,omitempty"`
	Page           int       `json:"page"`
	Limit          int       `json:"limit"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []db.Product `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"-"`
	Limit int          `json:"-"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 200
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		reports:      cfg.Reports,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          now,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = min(l, s.maxLimit)
	}
	if v := strings.TrimSpace(values.Get("categoryId")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return params, badRequest("categoryId", "categoryId must be a uuid", err)
		}
		params.CategoryID = id
	}
	for _, flag := range []struct {
		name string
		dst  *bool
	}{{"lowStock", &params.LowStock}, {"includeDeleted", &params.IncludeDeleted}} {
		v := strings.TrimSpace(values.Get(flag.name))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return params, badRequest(flag.name, flag.name+" must be true or false", err)
		}
		*flag.dst = b
	}
	return params, nil
}

// ListCategories returns every category sorted by name.
func (s *Service) ListCategories(ctx context.Context) ([]db.Category, error) {
	rows, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return rows, nil
}

// GetCategory loads one category.
func (s *Service) GetCategory(ctx context.Context, id uuid.UUID) (db.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return db.Category{}, mapErr(err, "category not found")
	}
	return c, nil
}

// CreateCategory adds a category. Names are unique case-insensitively.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (db.Category, error) {
	if err := common.ValidateStruct(in); err != nil {
		return db.Category{}, err
	}
	c, err := s.store.CreateCategory(ctx, db.CreateCategoryParams{
		Name:        strings.TrimSpace(in.Name),
		Description: db.Text(strings.TrimSpace(in.Description)),
	})
	if err != nil {
		return db.Category{}, mapErr(err, "category not found")
	}
	s.invalidate(ctx)
	return c, nil
}

// UpdateCategory renames or re-describes a category.
func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (db.Category, error) {
	if err := common.ValidateStruct(in); err != nil {
		return db.Category{}, err
	}
	c, err := s.store.UpdateCategory(ctx, db.UpdateCategoryParams{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Description: db.Text(strings.TrimSpace(in.Description)),
	})
	if err != nil {
		return db.Category{}, mapErr(err, "category not found")
	}
	s.invalidate(ctx)
	return c, nil
}

// DeleteCategory removes a category that no product references.
func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	err := s.store.ExecTx(ctx, func(q db.Querier) error {
		n, err := q.CountActiveProductsInCategory(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return common.ErrConflict(fmt.Sprintf("category still has %d products", n)).WithDetails(map[string]any{"products": n})
		}
		return q.DeleteCategory(ctx, id)
	})
	if err != nil {
		return mapErr(err, "category not found")
	}
	s.invalidate(ctx)
	return nil
}

// ListProducts returns a filtered page of products. Results are cached per
// parameter set until the next catalog write.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key := s.cache.Key(ctx, "list", params)
	var cached ProductListResult
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		cached.Page, cached.Limit = params.Page, params.Limit
		return cached, nil
	}

	filter := db.ListProductsParams{
		Search:         params.Query,
		LowStockOnly:   params.LowStock,
		IncludeDeleted: params.IncludeDeleted,
	}
	if params.CategoryID != uuid.Nil {
		filter.CategoryID = pgtype.UUID{Bytes: params.CategoryID, Valid: true}
	}
	total, err := s.store.CountProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("count products: %w", err)
	}
	filter.Limit, filter.Offset = common.Window(params.Page, params.Limit)
	rows, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("list products: %w", err)
	}
	if rows == nil {
		rows = []db.Product{}
	}
	result := ProductListResult{Items: rows, Total: total, Page: params.Page, Limit: params.Limit}
	if err := s.cache.SetJSON(ctx, key, result); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("catalog cache write failed")
	}
	return result, nil
}

// GetProduct loads one product, including soft-deleted ones.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (db.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return db.Product{}, mapErr(err, "product not found")
	}
	return p, nil
}

// GetProductBySku resolves a scanned or typed SKU to an active product.
func (s *Service) GetProductBySku(ctx context.Context, sku string) (db.Product, error) {
	p, err := s.store.GetProductBySku(ctx, strings.TrimSpace(sku))
	if err != nil {
		return db.Product{}, mapErr(err, "product not found")
	}
	if p.IsDeleted {
		return db.Product{}, common.ErrNotFound("product not found")
	}
	return p, nil
}

// CreateProduct inserts a product and its opening ledger entry in one
// transaction.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput, actorID uuid.UUID) (db.Product, error) {
	if err := common.ValidateStruct(in); err != nil {
		return db.Product{}, err
	}
	if err := validateMoney(in.Price, in.CostPrice); err != nil {
		return db.Product{}, err
	}
	var p db.Product
	err := s.store.ExecTx(ctx, func(q db.Querier) error {
		var err error
		p, err = q.CreateProduct(ctx, db.CreateProductParams{
			Name:       strings.TrimSpace(in.Name),
			Sku:        strings.TrimSpace(in.Sku),
			Barcode:    db.Text(strings.TrimSpace(in.Barcode)),
			CategoryID: categoryRef(in.CategoryID),
			Price:      in.Price.Round(2),
			CostPrice:  nullMoney(in.CostPrice),
			Stock:      in.Stock,
			MinStock:   in.MinStock,
		})
		if err != nil {
			return err
		}
		if in.CostPrice != nil {
			if _, err := q.CreateProductCostHistory(ctx, db.CreateProductCostHistoryParams{
				ProductID: p.ID,
				UnitCost:  in.CostPrice.Round(2),
				SourceRef: "catalog:create",
			}); err != nil {
				return err
			}
		}
		actor := actorID
		return stock.RecordInitial(ctx, q, p.ID, in.Stock, &actor)
	})
	if err != nil {
		return db.Product{}, productErr(err)
	}
	s.invalidate(ctx)
	return p, nil
}

// UpdateProduct edits product attributes. Stock is not writable here.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductUpdate) (db.Product, error) {
	if err := common.ValidateStruct(in); err != nil {
		return db.Product{}, err
	}
	if err := validateMoney(in.Price, in.CostPrice); err != nil {
		return db.Product{}, err
	}
	var p db.Product
	err := s.store.ExecTx(ctx, func(q db.Querier) error {
		before, err := q.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		p, err = q.UpdateProduct(ctx, db.UpdateProductParams{
			ID:         id,
			Name:       strings.TrimSpace(in.Name),
			Sku:        strings.TrimSpace(in.Sku),
			Barcode:    db.Text(strings.TrimSpace(in.Barcode)),
			CategoryID: categoryRef(in.CategoryID),
			Price:      in.Price.Round(2),
			CostPrice:  nullMoney(in.CostPrice),
			MinStock:   in.MinStock,
		})
		if err != nil {
			return err
		}
		if in.CostPrice != nil && (!before.CostPrice.Valid || !before.CostPrice.Decimal.Equal(in.CostPrice.Round(2))) {
			_, err = q.CreateProductCostHistory(ctx, db.CreateProductCostHistoryParams{
				ProductID: id,
				UnitCost:  in.CostPrice.Round(2),
				SourceRef: "catalog:update",
			})
		}
		return err
	})
	if err != nil {
		return db.Product{}, productErr(err)
	}
	s.invalidate(ctx)
	return p, nil
}

// DeleteProduct soft-deletes a product. Its history stays intact and it can
// be restored.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDeleteProduct(ctx, id, s.now().UTC()); err != nil {
		return mapErr(err, "product not found")
	}
	s.invalidate(ctx)
	return nil
}

// RestoreProduct undoes a soft delete.
func (s *Service) RestoreProduct(ctx context.Context, id uuid.UUID) (db.Product, error) {
	p, err := s.store.RestoreProduct(ctx, id)
	if err != nil {
		return db.Product{}, mapErr(err, "deleted product not found")
	}
	s.invalidate(ctx)
	return p, nil
}

// PurgeProduct permanently removes a product that was never sold or ordered.
func (s *Service) PurgeProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.store.HardDeleteProduct(ctx, id); err != nil {
		return mapErr(err, "product not found")
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	log := zerolog.Ctx(ctx)
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
	if s.reports != nil {
		if err := s.reports.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("report cache invalidation failed")
		}
	}
}

func validateMoney(price decimal.Decimal, cost *decimal.Decimal) error {
	var fields []map[string]string
	if price.IsNegative() {
		fields = append(fields, map[string]string{"field": "price", "rule": "gte"})
	}
	if cost != nil && cost.IsNegative() {
		fields = append(fields, map[string]string{"field": "costPrice", "rule": "gte"})
	}
	if len(fields) == 0 {
		return nil
	}
	return common.NewAppError("VALIDATION_FAILED", "validation failed", http.StatusUnprocessableEntity, nil).WithDetails(fields)
}

func categoryRef(raw string) pgtype.UUID {
	if raw == "" {
		return pgtype.UUID{}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

func nullMoney(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d.Round(2), Valid: true}
}

// productErr maps product write errors. A category foreign key failure on a
// product write means the referenced category does not exist.
func productErr(err error) error {
	if db.ConstraintName(err) == "products_category_id_fkey" {
		return common.ErrNotFound("category not found").WithDetails(map[string]string{"field": "categoryId"})
	}
	return mapErr(err, "product not found")
}

func mapErr(err error, notFound string) error {
	if err == nil || common.IsAppError(err) {
		return err
	}
	switch db.ConstraintName(err) {
	case "products_sku_key":
		return common.ErrConflict("sku already exists").WithDetails(map[string]string{"field": "sku"})
	case "products_barcode_key":
		return common.ErrConflict("barcode already exists").WithDetails(map[string]string{"field": "barcode"})
	case "categories_name_key":
		return common.ErrConflict("category name already exists").WithDetails(map[string]string{"field": "name"})
	case "products_category_id_fkey":
		return common.ErrConflict("category is still referenced by products")
	case "sale_items_product_id_fkey", "purchase_order_items_product_id_fkey", "sales_return_items_product_id_fkey":
		return common.ErrConflict("product has sales or purchase history; soft delete it instead")
	}
	if errors.Is(err, db.ErrNotFound) {
		return common.ErrNotFound(notFound)
	}
	return err
}

func badRequest(field, message string, err error) *common.AppError {
	return common.NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err).WithDetails(map[string]string{"field": field})
}
