package analytics_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/analytics"
	"github.com/noah-isme/backend-pos/internal/db"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

type fixture struct {
	tea, soap, salt, gone db.Product
	drinks, home          db.Category
	sales                 []db.Sale
	window                analytics.Window
}

func newFixture() fixture {
	var f fixture
	f.drinks = db.Category{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Name: "Drinks"}
	f.home = db.Category{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Name: "Home"}
	f.tea = db.Product{
		ID: uuid.MustParse("10000000-0000-0000-0000-000000000001"), Name: "Tea", Sku: "TEA",
		CategoryID: pgtype.UUID{Bytes: f.drinks.ID, Valid: true},
		CostPrice:  decimal.NullDecimal{Decimal: dec("6"), Valid: true}, Stock: 20,
	}
	f.soap = db.Product{
		ID: uuid.MustParse("10000000-0000-0000-0000-000000000002"), Name: "Soap", Sku: "SOAP",
		CategoryID: pgtype.UUID{Bytes: f.home.ID, Valid: true},
		CostPrice:  decimal.NullDecimal{Decimal: dec("2"), Valid: true}, Stock: 7,
	}
	f.salt = db.Product{ID: uuid.MustParse("10000000-0000-0000-0000-000000000003"), Name: "Salt", Sku: "SALT", Stock: 3}
	f.gone = db.Product{ID: uuid.MustParse("10000000-0000-0000-0000-000000000004"), Name: "Old", Sku: "OLD", IsDeleted: true}

	day := func(d int) time.Time { return time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC) }
	f.sales = []db.Sale{
		{
			ID:           uuid.MustParse("20000000-0000-0000-0000-000000000001"),
			CreatedAt:    day(4),
			Subtotal:     dec("25"),
			Discount:     dec("5"),
			DiscountRate: decimal.NullDecimal{Decimal: dec("0.2"), Valid: true},
			Items: []byte(`[{"productId":"` + f.tea.ID.String() + `","quantity":2,"price":"10"},` +
				`{"productId":"` + f.soap.ID.String() + `","quantity":1,"price":5}]`),
		},
		{
			ID:        uuid.MustParse("20000000-0000-0000-0000-000000000002"),
			CreatedAt: day(5),
			Subtotal:  dec("10"),
			Items:     []byte(`"[{\"product_id\":\"` + f.tea.ID.String() + `\",\"qty\":\"1\",\"unit_price\":10}]"`),
		},
		{ID: uuid.MustParse("20000000-0000-0000-0000-000000000003"), CreatedAt: day(6), Items: []byte(`{not json`)},
		{ID: uuid.MustParse("20000000-0000-0000-0000-000000000004"), CreatedAt: day(6), Items: []byte(`[]`)},
		{
			ID:        uuid.MustParse("20000000-0000-0000-0000-000000000005"),
			CreatedAt: day(7),
			IsDeleted: true,
			Items:     []byte(`[{"productId":"` + f.salt.ID.String() + `","quantity":9,"price":1}]`),
		},
	}
	f.window = analytics.Window{
		From:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:             time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Now:            time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		NotSellingDays: 30,
	}
	return f
}

func (f fixture) products() []db.Product { return []db.Product{f.tea, f.soap, f.salt, f.gone} }

func TestAggregateSummaryAndBreakdowns(t *testing.T) {
	f := newFixture()
	r := analytics.Aggregate(f.sales, f.products(), []db.Category{f.drinks, f.home}, f.window)

	require.Equal(t, 2, r.Summary.Sales)
	requireDec(t, "4", r.Summary.Units)
	requireDec(t, "35", r.Summary.Gross)
	requireDec(t, "5", r.Summary.Discount)
	requireDec(t, "30", r.Summary.Net)
	requireDec(t, "20", r.Summary.Cost)
	requireDec(t, "10", r.Summary.Profit)
	require.Equal(t, 1, r.MalformedSales)

	require.Len(t, r.Daily, 2)
	require.Equal(t, "2024-03-04", r.Daily[0].Period)
	require.Equal(t, 1, r.Daily[0].Sales)
	requireDec(t, "20", r.Daily[0].Net)
	require.Equal(t, "2024-03-05", r.Daily[1].Period)

	require.Len(t, r.Weekly, 1)
	require.Equal(t, "2024-W10", r.Weekly[0].Period)
	require.Equal(t, 2, r.Weekly[0].Sales)

	require.Len(t, r.Categories, 2)
	require.Equal(t, "Drinks", r.Categories[0].Name)
	requireDec(t, "26", r.Categories[0].Revenue)
	requireDec(t, "0.8667", r.Categories[0].Share)
	requireDec(t, "0.1333", r.Categories[1].Share)

	require.Len(t, r.TopProducts, 2)
	require.Equal(t, "TEA", r.TopProducts[0].Sku)
	requireDec(t, "3", r.TopProducts[0].Units)

	require.Len(t, r.MonthlyProfit, 1)
	require.Equal(t, "2024-03", r.MonthlyProfit[0].Month)
	requireDec(t, "10", r.MonthlyProfit[0].Profit)

	require.Len(t, r.NotSelling, 1)
	require.Equal(t, "SALT", r.NotSelling[0].Sku)
}

func TestAggregateIsDeterministic(t *testing.T) {
	f := newFixture()
	first := analytics.Aggregate(f.sales, f.products(), []db.Category{f.drinks, f.home}, f.window)

	reversed := make([]db.Sale, len(f.sales))
	for i, s := range f.sales {
		reversed[len(f.sales)-1-i] = s
	}
	second := analytics.Aggregate(reversed, []db.Product{f.gone, f.salt, f.soap, f.tea}, []db.Category{f.home, f.drinks}, f.window)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.JSONEq(t, string(a), string(b))
}

func TestAggregateUnknownCategoryAndTopN(t *testing.T) {
	f := newFixture()
	f.window.TopN = 1
	r := analytics.Aggregate(f.sales, f.products(), nil, f.window)
	require.Len(t, r.Categories, 1)
	require.Equal(t, "uncategorized", r.Categories[0].CategoryID)
	requireDec(t, "1", r.Categories[0].Share)
	require.Len(t, r.TopProducts, 1)
}

func TestAggregateEmptyInput(t *testing.T) {
	r := analytics.Aggregate(nil, nil, nil, analytics.Window{})
	require.Zero(t, r.Summary.Sales)
	require.Empty(t, r.Daily)
	require.Empty(t, r.Categories)
	require.NotNil(t, r.NotSelling)
}

func TestDiscountRateClamped(t *testing.T) {
	cases := []struct {
		name string
		sale db.Sale
		sub  string
		want string
	}{
		{"stored rate wins", db.Sale{Discount: dec("1"), DiscountRate: decimal.NullDecimal{Decimal: dec("0.15"), Valid: true}}, "100", "0.15"},
		{"back calculated", db.Sale{Discount: dec("25")}, "100", "0.25"},
		{"above subtotal", db.Sale{Discount: dec("150")}, "100", "1"},
		{"negative", db.Sale{Discount: dec("-3")}, "100", "0"},
		{"zero subtotal", db.Sale{Discount: dec("3")}, "0", "0"},
		{"stored out of range", db.Sale{DiscountRate: decimal.NullDecimal{Decimal: dec("1.4"), Valid: true}}, "10", "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requireDec(t, tc.want, analytics.DiscountRate(tc.sale, dec(tc.sub)))
		})
	}
}

func TestDecodeItemsFormats(t *testing.T) {
	id := uuid.NewString()
	cases := map[string]struct {
		raw  string
		want int
	}{
		"array":         {`[{"productId":"` + id + `","quantity":1,"price":2}]`, 1},
		"single object": {`{"id":"` + id + `","qty":3,"unitPrice":"2.5"}`, 1},
		"string array":  {`"[{\"product\":\"` + id + `\",\"quantity\":\"2\"}]"`, 1},
		"missing id":    {`[{"quantity":1,"price":2}]`, 0},
		"zero quantity": {`[{"productId":"` + id + `","quantity":0}]`, 0},
		"malformed":     {`[{"productId":`, 0},
		"number":        {`42`, 0},
		"null":          {`null`, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Len(t, analytics.DecodeItems([]byte(tc.raw)), tc.want)
		})
	}

	items := analytics.DecodeItems([]byte(`{"product_id":"` + id + `","name_snapshot":"Tea","sku_snapshot":"T1","qty":"3","unit_price":"2.5"}`))
	require.Len(t, items, 1)
	require.Equal(t, "Tea", items[0].Name)
	require.Equal(t, "T1", items[0].Sku)
	requireDec(t, "3", items[0].Quantity)
	requireDec(t, "2.5", items[0].Price)
}

func TestWriteXLSX(t *testing.T) {
	f := newFixture()
	r := analytics.Aggregate(f.sales, f.products(), []db.Category{f.drinks, f.home}, f.window)
	data, err := analytics.WriteXLSX(r)
	require.NoError(t, err)
	require.Greater(t, len(data), 4)
	require.Equal(t, "PK", string(data[:2]))
}

func TestParseDays(t *testing.T) {
	require.Equal(t, 7, analytics.ParseDays("7", 30))
	require.Equal(t, 30, analytics.ParseDays("", 30))
	require.Equal(t, 30, analytics.ParseDays("-2", 30))
	require.Equal(t, 30, analytics.ParseDays("abc", 30))
}
