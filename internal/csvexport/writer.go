package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"shelf/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the CSV header row.
var columns = []string{
	"Position",
	"Product ID",
	"Title",
	"Type",
	"Vendor",
	"Tags",
	"Variant Title",
	"Price",
	"Compare At Price",
	"Weight",
	"Inventory",
	"Created At",
}

// Row is one exported member. Product is nil when the member no longer
// exists in the catalog; only its position and id are written then.
type Row struct {
	Position int
	ID       uuid.UUID
	Product  *domain.Product
}

// Writer wraps csv.Writer for exporting collection members as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteRows converts a batch of members to CSV rows and writes them.
func (w *Writer) WriteRows(rows []Row) error {
	for i := range rows {
		if err := w.csv.Write(memberToRow(&rows[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

func memberToRow(r *Row) []string {
	row := make([]string, len(columns))
	row[0] = strconv.Itoa(r.Position + 1)
	row[1] = r.ID.String()

	p := r.Product
	if p == nil {
		return row
	}
	row[2] = safeCell(p.Title)
	row[3] = safeCell(p.ProductType)
	row[4] = safeCell(p.Vendor)
	row[5] = safeCell(strings.Join(p.Tags, ", "))
	row[6] = safeCell(p.VariantTitle)
	row[7] = formatMoney(p.Price)
	row[8] = formatMoney(p.CompareAtPrice)
	row[9] = formatFloat(p.Weight)
	if p.Inventory != nil {
		row[10] = strconv.FormatInt(*p.Inventory, 10)
	}
	row[11] = p.CreatedAt.Format(time.RFC3339)
	return row
}

// safeCell neutralizes values a spreadsheet would evaluate as a formula.
func safeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

func formatMoney(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a collection title for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized filename for Content-Disposition header.
// Format: {sanitized_collection_title}_{YYYY-MM-DD}.csv
func BuildFilename(collectionTitle string) string {
	sanitized := SanitizeFilename(collectionTitle)
	if sanitized == "" {
		sanitized = "collection"
	}
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.csv", sanitized, date)
}
