package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/db"
)

// Item is a sold line recovered from a sale's items snapshot.
type Item struct {
	ProductID string
	Name      string
	Sku       string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
}

// DecodeItems parses the stored items snapshot. It accepts a JSON array, a
// single JSON object, or a JSON string holding either of those. Anything
// else, including malformed JSON, yields an empty list. Elements without a
// product id or with a non-positive quantity are skipped.
func DecodeItems(raw []byte) []Item {
	return decodeItems(raw, 0)
}

func decodeItems(raw []byte, depth int) []Item {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || depth > 2 {
		return nil
	}
	switch raw[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil
		}
		return decodeItems([]byte(inner), depth+1)
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
		out := make([]Item, 0, len(elems))
		for _, e := range elems {
			if it, ok := decodeItem(e); ok {
				out = append(out, it)
			}
		}
		return out
	case '{':
		if it, ok := decodeItem(raw); ok {
			return []Item{it}
		}
	}
	return nil
}

func decodeItem(raw json.RawMessage) (Item, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Item{}, false
	}
	it := Item{
		ProductID: textField(fields, "productId", "product_id", "product", "id"),
		Name:      textField(fields, "name", "productName", "name_snapshot"),
		Sku:       textField(fields, "sku", "sku_snapshot"),
		Quantity:  numberField(fields, "quantity", "qty"),
		Price:     numberField(fields, "price", "unitPrice", "unit_price"),
	}
	if it.ProductID == "" || !it.Quantity.IsPositive() {
		return Item{}, false
	}
	return it, true
}

func textField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func numberField(fields map[string]json.RawMessage, keys ...string) decimal.Decimal {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
				return d
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if d, err := decimal.NewFromString(n.String()); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

// Window bounds a report. From is inclusive, To exclusive; zero values are
// unbounded. NotSellingDays is measured back from Now.
type Window struct {
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	Now            time.Time      `json:"now"`
	TopN           int            `json:"topN"`
	NotSellingDays int            `json:"notSellingDays"`
	Location       *time.Location `json:"-"`
}

func (w Window) contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Summary totals the sales inside the window.
type Summary struct {
	Sales    int             `json:"sales"`
	Units    decimal.Decimal `json:"units"`
	Gross    decimal.Decimal `json:"gross"`
	Discount decimal.Decimal `json:"discount"`
	Net      decimal.Decimal `json:"net"`
	Cost     decimal.Decimal `json:"cost"`
	Profit   decimal.Decimal `json:"profit"`
}

// TrendBucket is one day or ISO week of sales.
type TrendBucket struct {
	Period string          `json:"period"`
	Sales  int             `json:"sales"`
	Units  decimal.Decimal `json:"units"`
	Gross  decimal.Decimal `json:"gross"`
	Net    decimal.Decimal `json:"net"`
}

// CategoryShare is a category's part of net revenue. Share is in [0,1].
type CategoryShare struct {
	CategoryID string          `json:"categoryId"`
	Name       string          `json:"name"`
	Units      decimal.Decimal `json:"units"`
	Revenue    decimal.Decimal `json:"revenue"`
	Share      decimal.Decimal `json:"share"`
}

// ProductRevenue ranks a product by net revenue.
type ProductRevenue struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Sku       string          `json:"sku"`
	Units     decimal.Decimal `json:"units"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// ProfitBucket is one calendar month of revenue against cost of goods.
type ProfitBucket struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
}

// IdleProduct is a product with no sales in the lookback window.
type IdleProduct struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Sku       string `json:"sku"`
	Stock     int32  `json:"stock"`
}

// Report is the output of Aggregate.
type Report struct {
	Window         Window           `json:"window"`
	Summary        Summary          `json:"summary"`
	Daily          []TrendBucket    `json:"daily"`
	Weekly         []TrendBucket    `json:"weekly"`
	Categories     []CategoryShare  `json:"categories"`
	TopProducts    []ProductRevenue `json:"topProducts"`
	MonthlyProfit  []ProfitBucket   `json:"monthlyProfit"`
	NotSelling     []IdleProduct    `json:"notSelling"`
	MalformedSales int              `json:"malformedSales"`
}

const uncategorized = "uncategorized"

var one = decimal.NewFromInt(1)

// DiscountRate returns the fraction of subtotal removed by the coupon,
// clamped to [0,1]. The stored exact rate wins when present; otherwise it is
// back-calculated from the stored amount.
func DiscountRate(sale db.Sale, subtotal decimal.Decimal) decimal.Decimal {
	var rate decimal.Decimal
	switch {
	case sale.DiscountRate.Valid:
		rate = sale.DiscountRate.Decimal
	case subtotal.IsPositive():
		rate = sale.Discount.Div(subtotal)
	default:
		return decimal.Zero
	}
	if rate.IsNegative() {
		return decimal.Zero
	}
	if rate.GreaterThan(one) {
		return one
	}
	return rate
}

func isoWeek(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

type trendAcc struct {
	sales map[uuid.UUID]struct{}
	TrendBucket
}

func addTrend(m map[string]*trendAcc, key string, saleID uuid.UUID, units, gross, net decimal.Decimal) {
	acc, ok := m[key]
	if !ok {
		acc = &trendAcc{sales: map[uuid.UUID]struct{}{}, TrendBucket: TrendBucket{Period: key}}
		m[key] = acc
	}
	acc.sales[saleID] = struct{}{}
	acc.Units = acc.Units.Add(units)
	acc.Gross = acc.Gross.Add(gross)
	acc.Net = acc.Net.Add(net)
}

func flattenTrend(m map[string]*trendAcc) []TrendBucket {
	out := make([]TrendBucket, 0, len(m))
	for _, acc := range m {
		b := acc.TrendBucket
		b.Sales = len(acc.sales)
		b.Gross = b.Gross.Round(2)
		b.Net = b.Net.Round(2)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// Aggregate builds the report for the sales inside w. It reads only its
// arguments, so equal inputs always produce equal reports. Sales whose items
// cannot be decoded contribute nothing and are counted in MalformedSales.
func Aggregate(sales []db.Sale, products []db.Product, categories []db.Category, w Window) Report {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	topN := w.TopN
	if topN <= 0 {
		topN = 10
	}

	productByID := make(map[string]db.Product, len(products))
	for _, p := range products {
		productByID[p.ID.String()] = p
	}
	categoryName := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryName[c.ID.String()] = c.Name
	}

	var (
		summary  = Summary{}
		daily    = map[string]*trendAcc{}
		weekly   = map[string]*trendAcc{}
		byCat    = map[string]*CategoryShare{}
		byProd   = map[string]*ProductRevenue{}
		monthly  = map[string]*ProfitBucket{}
		recent   = map[string]bool{}
		malforms int
	)
	idleSince := time.Time{}
	if w.NotSellingDays > 0 && !w.Now.IsZero() {
		idleSince = w.Now.AddDate(0, 0, -w.NotSellingDays)
	}

	for _, sale := range sales {
		if sale.IsDeleted {
			continue
		}
		items := DecodeItems(sale.Items)
		if len(items) == 0 {
			switch string(bytes.TrimSpace(sale.Items)) {
			case "", "[]", "null":
			default:
				malforms++
			}
			continue
		}
		if !idleSince.IsZero() && !sale.CreatedAt.Before(idleSince) && !sale.CreatedAt.After(w.Now) {
			for _, it := range items {
				recent[it.ProductID] = true
			}
		}
		if !w.contains(sale.CreatedAt) {
			continue
		}

		subtotal := decimal.Zero
		for _, it := range items {
			subtotal = subtotal.Add(it.Quantity.Mul(it.Price))
		}
		keep := one.Sub(DiscountRate(sale, subtotal))

		at := sale.CreatedAt.In(loc)
		dayKey, weekKey, monthKey := at.Format(time.DateOnly), isoWeek(at), at.Format("2006-01")
		summary.Sales++

		for _, it := range items {
			gross := it.Quantity.Mul(it.Price)
			net := gross.Mul(keep)
			cost := decimal.Zero
			p, known := productByID[it.ProductID]
			if known && p.CostPrice.Valid {
				cost = it.Quantity.Mul(p.CostPrice.Decimal)
			}

			summary.Units = summary.Units.Add(it.Quantity)
			summary.Gross = summary.Gross.Add(gross)
			summary.Net = summary.Net.Add(net)
			summary.Cost = summary.Cost.Add(cost)

			addTrend(daily, dayKey, sale.ID, it.Quantity, gross, net)
			addTrend(weekly, weekKey, sale.ID, it.Quantity, gross, net)

			catID, catLabel := uncategorized, "Uncategorized"
			if known && p.CategoryID.Valid {
				id := uuid.UUID(p.CategoryID.Bytes).String()
				if name, ok := categoryName[id]; ok {
					catID, catLabel = id, name
				}
			}
			cs, ok := byCat[catID]
			if !ok {
				cs = &CategoryShare{CategoryID: catID, Name: catLabel}
				byCat[catID] = cs
			}
			cs.Units = cs.Units.Add(it.Quantity)
			cs.Revenue = cs.Revenue.Add(net)

			pr, ok := byProd[it.ProductID]
			if !ok {
				pr = &ProductRevenue{ProductID: it.ProductID, Name: it.Name, Sku: it.Sku}
				if known {
					pr.Name, pr.Sku = p.Name, p.Sku
				}
				byProd[it.ProductID] = pr
			}
			pr.Units = pr.Units.Add(it.Quantity)
			pr.Revenue = pr.Revenue.Add(net)

			mb, ok := monthly[monthKey]
			if !ok {
				mb = &ProfitBucket{Month: monthKey}
				monthly[monthKey] = mb
			}
			mb.Revenue = mb.Revenue.Add(net)
			mb.Cost = mb.Cost.Add(cost)
		}
	}

	summary.Discount = summary.Gross.Sub(summary.Net).Round(2)
	summary.Profit = summary.Net.Sub(summary.Cost).Round(2)
	summary.Gross = summary.Gross.Round(2)
	summary.Net = summary.Net.Round(2)
	summary.Cost = summary.Cost.Round(2)

	report := Report{
		Window:         w,
		Summary:        summary,
		Daily:          flattenTrend(daily),
		Weekly:         flattenTrend(weekly),
		MalformedSales: malforms,
	}

	totalNet := decimal.Zero
	for _, cs := range byCat {
		totalNet = totalNet.Add(cs.Revenue)
	}
	report.Categories = make([]CategoryShare, 0, len(byCat))
	for _, cs := range byCat {
		c := *cs
		if totalNet.IsPositive() {
			c.Share = c.Revenue.Div(totalNet).Round(4)
		}
		c.Revenue = c.Revenue.Round(2)
		report.Categories = append(report.Categories, c)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		a, b := report.Categories[i], report.Categories[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.CategoryID < b.CategoryID
	})

	report.TopProducts = make([]ProductRevenue, 0, len(byProd))
	for _, pr := range byProd {
		p := *pr
		p.Revenue = p.Revenue.Round(2)
		report.TopProducts = append(report.TopProducts, p)
	}
	sort.Slice(report.TopProducts, func(i, j int) bool {
		a, b := report.TopProducts[i], report.TopProducts[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.ProductID < b.ProductID
	})
	if len(report.TopProducts) > topN {
		report.TopProducts = report.TopProducts[:topN]
	}

	report.MonthlyProfit = make([]ProfitBucket, 0, len(monthly))
	for _, mb := range monthly {
		b := ProfitBucket{
			Month:   mb.Month,
			Revenue: mb.Revenue.Round(2),
			Cost:    mb.Cost.Round(2),
			Profit:  mb.Revenue.Sub(mb.Cost).Round(2),
		}
		report.MonthlyProfit = append(report.MonthlyProfit, b)
	}
	sort.Slice(report.MonthlyProfit, func(i, j int) bool { return report.MonthlyProfit[i].Month < report.MonthlyProfit[j].Month })

	report.NotSelling = []IdleProduct{}
	if !idleSince.IsZero() {
		for _, p := range products {
			if p.IsDeleted || recent[p.ID.String()] {
				continue
			}
			report.NotSelling = append(report.NotSelling, IdleProduct{ProductID: p.ID.String(), Name: p.Name, Sku: p.Sku, Stock: p.Stock})
		}
		sort.Slice(report.NotSelling, func(i, j int) bool {
			a, b := report.NotSelling[i], report.NotSelling[j]
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ProductID < b.ProductID
		})
	}
	return report
}

// ParseDays converts a query value to a positive day count.
func ParseDays(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
