package analytics

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type sheet struct {
	name    string
	headers []string
	rows    [][]any
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func trendRows(buckets []TrendBucket) [][]any {
	rows := make([][]any, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []any{b.Period, b.Sales, b.Units.IntPart(), money(b.Gross), money(b.Net)})
	}
	return rows
}

func (r Report) sheets() []sheet {
	s := r.Summary
	summary := sheet{
		name:    "Summary",
		headers: []string{"Metric", "Value"},
		rows: [][]any{
			{"From", r.Window.From.Format("2006-01-02 15:04")},
			{"To", r.Window.To.Format("2006-01-02 15:04")},
			{"Sales", s.Sales},
			{"Units", s.Units.IntPart()},
			{"Gross", money(s.Gross)},
			{"Discount", money(s.Discount)},
			{"Net", money(s.Net)},
			{"Cost", money(s.Cost)},
			{"Profit", money(s.Profit)},
			{"Malformed sales", r.MalformedSales},
		},
	}

	categories := sheet{name: "Categories", headers: []string{"Category", "Units", "Revenue", "Share"}}
	for _, c := range r.Categories {
		share, _ := c.Share.Float64()
		categories.rows = append(categories.rows, []any{c.Name, c.Units.IntPart(), money(c.Revenue), share})
	}

	top := sheet{name: "Top products", headers: []string{"SKU", "Product", "Units", "Revenue"}}
	for _, p := range r.TopProducts {
		top.rows = append(top.rows, []any{p.Sku, p.Name, p.Units.IntPart(), money(p.Revenue)})
	}

	profit := sheet{name: "Monthly profit", headers: []string{"Month", "Revenue", "Cost", "Profit"}}
	for _, m := range r.MonthlyProfit {
		profit.rows = append(profit.rows, []any{m.Month, money(m.Revenue), money(m.Cost), money(m.Profit)})
	}

	idle := sheet{name: "Not selling", headers: []string{"SKU", "Product", "Stock"}}
	for _, p := range r.NotSelling {
		idle.rows = append(idle.rows, []any{p.Sku, p.Name, p.Stock})
	}

	trendHeaders := []string{"Period", "Sales", "Units", "Gross", "Net"}
	return []sheet{
		summary,
		{name: "Daily", headers: trendHeaders, rows: trendRows(r.Daily)},
		{name: "Weekly", headers: trendHeaders, rows: trendRows(r.Weekly)},
		categories,
		top,
		profit,
		idle,
	}
}

// WriteXLSX renders the report as a workbook with one sheet per section.
func WriteXLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, sh := range r.sheets() {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, err
		}
		if err := writeSheet(f, sh, bold); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sh.name, err)
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sh sheet, headerStyle int) error {
	if err := f.SetSheetRow(sh.name, "A1", &sh.headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(sh.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sh.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, row := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
