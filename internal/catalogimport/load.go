package catalogimport

import (
	"context"
	"fmt"
	"os"
	"time"

	"shelf/internal/domain"
	"shelf/internal/port"
)

// DefaultBatchSize is the number of products written per UpsertProducts call.
const DefaultBatchSize = 500

// Load writes products to w in batches.
func Load(ctx context.Context, w port.ProductWriter, products []domain.Product, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for i := 0; i < len(products); i += batchSize {
		end := min(i+batchSize, len(products))
		if err := w.UpsertProducts(ctx, products[i:end]); err != nil {
			return fmt.Errorf("catalogimport.Load: batch at offset %d: %w", i, err)
		}
	}
	return nil
}

// ImportFile reads the workbook at path and loads its products into w. The
// returned Result lists the rows that were skipped.
func ImportFile(ctx context.Context, w port.ProductWriter, path, sheet string, batchSize int) (*Result, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalogimport.ImportFile: %w", err)
	}
	defer func() { _ = in.Close() }()

	res, err := ReadXLSX(in, sheet, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := Load(ctx, w, res.Products, batchSize); err != nil {
		return nil, err
	}
	return res, nil
}
