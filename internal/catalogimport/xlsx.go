// Package catalogimport reads product catalogs from spreadsheets.
package catalogimport

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"shelf/internal/domain"
)

// productNamespace seeds deterministic ids for rows without an ID column, so
// re-importing the same sheet updates products instead of duplicating them.
var productNamespace = uuid.MustParse("6f1c2b7e-3d0a-4c55-9a8e-51b0f4c2d9a1")

// RowError describes a spreadsheet row that was skipped.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

// Result holds the products read from a sheet plus the rows that were skipped.
type Result struct {
	Products []domain.Product
	Skipped  []RowError
}

// column indexes resolved from the header row; -1 means absent.
type columns struct {
	id, title, productType, vendor, tags, variantTitle int
	price, compareAtPrice, weight, inventory, createdAt int
}

var headerAliases = map[string]func(c *columns, i int){
	"id":               func(c *columns, i int) { c.id = i },
	"product id":       func(c *columns, i int) { c.id = i },
	"title":            func(c *columns, i int) { c.title = i },
	"type":             func(c *columns, i int) { c.productType = i },
	"product type":     func(c *columns, i int) { c.productType = i },
	"vendor":           func(c *columns, i int) { c.vendor = i },
	"tags":             func(c *columns, i int) { c.tags = i },
	"variant title":    func(c *columns, i int) { c.variantTitle = i },
	"price":            func(c *columns, i int) { c.price = i },
	"compare at price": func(c *columns, i int) { c.compareAtPrice = i },
	"weight":           func(c *columns, i int) { c.weight = i },
	"inventory":        func(c *columns, i int) { c.inventory = i },
	"created at":       func(c *columns, i int) { c.createdAt = i },
}

// ReadXLSX reads products from the named sheet of an XLSX workbook, or from
// the first sheet when sheet is empty. The first row must be a header; only
// Title is required. Rows without an ID get one derived from title, vendor
// and variant title. Rows without Created At are stamped base plus their row
// offset so catalog order follows the sheet.
func ReadXLSX(r io.Reader, sheet string, base time.Time) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("catalogimport.ReadXLSX: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("catalogimport.ReadXLSX: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("catalogimport.ReadXLSX: sheet %q is empty", sheet)
	}

	cols := columns{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	for i, h := range rows[0] {
		if set, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			set(&cols, i)
		}
	}
	if cols.title < 0 {
		return nil, fmt.Errorf("catalogimport.ReadXLSX: sheet %q has no Title column", sheet)
	}

	res := &Result{}
	seen := make(map[uuid.UUID]int)
	for i := 1; i < len(rows); i++ {
		rowNum := i + 1
		p, err := cols.product(rows[i], base.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{Row: rowNum, Err: err})
			continue
		}
		if p == nil {
			continue
		}
		if prev, dup := seen[p.ID]; dup {
			res.Skipped = append(res.Skipped, RowError{Row: rowNum, Err: fmt.Errorf("duplicate of row %d", prev)})
			continue
		}
		seen[p.ID] = rowNum
		res.Products = append(res.Products, *p)
	}
	return res, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// product converts one row. A fully blank row yields nil.
func (c *columns) product(row []string, created time.Time) (*domain.Product, error) {
	if strings.TrimSpace(strings.Join(row, "")) == "" {
		return nil, nil
	}
	p := &domain.Product{
		Title:        cell(row, c.title),
		ProductType:  cell(row, c.productType),
		Vendor:       cell(row, c.vendor),
		VariantTitle: cell(row, c.variantTitle),
		CreatedAt:    created,
	}
	if p.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	if raw := cell(row, c.id); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", raw)
		}
		p.ID = id
	} else {
		p.ID = uuid.NewSHA1(productNamespace, []byte(p.Title+"\x00"+p.Vendor+"\x00"+p.VariantTitle))
	}

	if raw := cell(row, c.tags); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				p.Tags = append(p.Tags, t)
			}
		}
	}

	var err error
	if p.Price, err = number(cell(row, c.price), "price"); err != nil {
		return nil, err
	}
	if p.CompareAtPrice, err = number(cell(row, c.compareAtPrice), "compare at price"); err != nil {
		return nil, err
	}
	if p.Weight, err = number(cell(row, c.weight), "weight"); err != nil {
		return nil, err
	}
	if raw := cell(row, c.inventory); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid inventory %q", raw)
		}
		p.Inventory = &n
	}
	if raw := cell(row, c.createdAt); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid created at %q", raw)
		}
		p.CreatedAt = t
	}
	return p, nil
}

// number parses an optional decimal cell. Currency symbols and thousands
// separators are ignored; an empty cell is a typed null.
func number(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	clean := strings.TrimLeft(strings.ReplaceAll(raw, ",", ""), "$€£₹ ")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01-02-06"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time layout")
}
