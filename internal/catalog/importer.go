package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
)

var headerAliases = map[string]string{
	"name":         "name",
	"product":      "name",
	"product name": "name",
	"sku":          "sku",
	"code":         "sku",
	"barcode":      "barcode",
	"ean":          "barcode",
	"category":     "category",
	"price":        "price",
	"sell price":   "price",
	"sale price":   "price",
	"cost":         "cost",
	"cost price":   "cost",
	"buy price":    "cost",
	"stock":        "stock",
	"qty":          "stock",
	"quantity":     "stock",
	"min stock":    "min_stock",
	"reorder":      "min_stock",
	"alarm":        "min_stock",
}

// ImportRow is one product line read from a spreadsheet.
type ImportRow struct {
	Line     int
	Name     string
	Sku      string
	Barcode  string
	Category string
	Price    decimal.Decimal
	Cost     *decimal.Decimal
	Stock    int32
	MinStock int32
}

// RowError reports a spreadsheet line that could not be applied.
type RowError struct {
	Line    int    `json:"line"`
	Sku     string `json:"sku,omitempty"`
	Message string `json:"message"`
}

// ImportResult summarises an import run.
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

// ParseXLSX reads products from the first sheet. The header row names the
// columns; name, sku and price are required.
func ParseXLSX(reader io.Reader) ([]ImportRow, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("excel file is empty")
	}

	cols := mapColumns(rows[0])
	for _, required := range []string{"name", "sku", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column: %s", required)
		}
	}

	out := make([]ImportRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		cells := rows[i]
		line := i + 1
		row := ImportRow{
			Line:     line,
			Name:     strings.TrimSpace(readCell(cells, cols, "name")),
			Sku:      strings.TrimSpace(readCell(cells, cols, "sku")),
			Barcode:  strings.TrimSpace(readCell(cells, cols, "barcode")),
			Category: strings.TrimSpace(readCell(cells, cols, "category")),
		}
		if row.Name == "" && row.Sku == "" {
			continue
		}
		if row.Sku == "" {
			return nil, fmt.Errorf("row %d: sku is required", line)
		}
		if row.Price, err = parseMoney(readCell(cells, cols, "price")); err != nil {
			return nil, fmt.Errorf("row %d invalid price: %w", line, err)
		}
		if raw := strings.TrimSpace(readCell(cells, cols, "cost")); raw != "" {
			cost, err := parseMoney(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d invalid cost: %w", line, err)
			}
			row.Cost = &cost
		}
		if row.Stock, err = parseCount(readCell(cells, cols, "stock")); err != nil {
			return nil, fmt.Errorf("row %d invalid stock: %w", line, err)
		}
		if row.MinStock, err = parseCount(readCell(cells, cols, "min_stock")); err != nil {
			return nil, fmt.Errorf("row %d invalid min stock: %w", line, err)
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, errors.New("excel file has no valid data rows")
	}
	return out, nil
}

func mapColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		canonical, ok := headerAliases[normalizeHeader(col)]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	return strings.Join(strings.Fields(value), " ")
}

func readCell(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseMoney(raw string) (decimal.Decimal, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if value == "" {
		return decimal.Zero, errors.New("value is empty")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.New("not a number")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("must not be negative")
	}
	return d.Round(2), nil
}

func parseCount(raw string) (int32, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if math.Mod(f, 1) != 0 || f < 0 || f > math.MaxInt32 {
		return 0, errors.New("must be a whole non-negative number")
	}
	return int32(f), nil
}

// Import upserts rows by SKU. New products get their opening stock in the
// ledger; for existing products a stock difference is booked as a
// manual_adjust movement. Each row commits on its own, failures are reported
// per line and do not stop the run.
func (s *Service) Import(ctx context.Context, rows []ImportRow, actorID uuid.UUID) (ImportResult, error) {
	result := ImportResult{Errors: []RowError{}}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return result, fmt.Errorf("list categories: %w", err)
	}
	byName := make(map[string]uuid.UUID, len(categories))
	for _, c := range categories {
		byName[strings.ToLower(c.Name)] = c.ID
	}

	for _, row := range rows {
		categoryID := ""
		if row.Category != "" {
			id, ok := byName[strings.ToLower(row.Category)]
			if !ok {
				c, err := s.CreateCategory(ctx, CategoryInput{Name: row.Category})
				if err != nil {
					result.Errors = append(result.Errors, rowError(row, err))
					continue
				}
				id = c.ID
				byName[strings.ToLower(c.Name)] = id
			}
			categoryID = id.String()
		}

		existing, err := s.store.GetProductBySku(ctx, row.Sku)
		switch {
		case errors.Is(err, db.ErrNotFound):
			_, err = s.CreateProduct(ctx, ProductInput{
				Name: row.Name, Sku: row.Sku, Barcode: row.Barcode, CategoryID: categoryID,
				Price: row.Price, CostPrice: row.Cost, Stock: row.Stock, MinStock: row.MinStock,
			}, actorID)
			if err == nil {
				result.Created++
			}
		case err == nil:
			err = s.updateFromImport(ctx, existing, row, categoryID, actorID)
			if err == nil {
				result.Updated++
			}
		}
		if err != nil {
			result.Errors = append(result.Errors, rowError(row, err))
		}
	}
	return result, nil
}

func (s *Service) updateFromImport(ctx context.Context, existing db.Product, row ImportRow, categoryID string, actorID uuid.UUID) error {
	if _, err := s.UpdateProduct(ctx, existing.ID, ProductUpdate{
		Name: row.Name, Sku: row.Sku, Barcode: row.Barcode, CategoryID: categoryID,
		Price: row.Price, CostPrice: row.Cost, MinStock: row.MinStock,
	}); err != nil {
		return err
	}
	return s.store.ExecTx(ctx, func(q db.Querier) error {
		// locked so a concurrent sale cannot move stock between read and write
		p, err := q.GetProductForUpdate(ctx, existing.ID)
		if err != nil {
			return err
		}
		delta := row.Stock - p.Stock
		if delta == 0 {
			return nil
		}
		if delta > 0 {
			_, err = q.IncrementStock(ctx, p.ID, delta)
		} else {
			_, err = q.DecrementStock(ctx, p.ID, -delta)
		}
		if err != nil {
			return err
		}
		_, err = q.CreateStockMovement(ctx, db.CreateStockMovementParams{
			ProductID: p.ID,
			UserID:    pgtype.UUID{Bytes: actorID, Valid: actorID != uuid.Nil},
			Kind:      db.MovementManualAdjust,
			Quantity:  delta,
			Reason:    "catalog import",
			RefTable:  db.Text("products"),
			RefID:     pgtype.UUID{Bytes: p.ID, Valid: true},
		})
		return err
	})
}

func rowError(row ImportRow, err error) RowError {
	msg := err.Error()
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	return RowError{Line: row.Line, Sku: row.Sku, Message: msg}
}
