// Command seedcatalog imports products from an XLSX workbook into the catalog.
// Usage: go run ./cmd/seedcatalog -file products.xlsx [-sheet Products] [-batch 500]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"shelf/internal/catalogimport"
	"shelf/internal/config"
	"shelf/internal/domain"
	"shelf/internal/logging"
	"shelf/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	path := flag.String("file", "", "path to the XLSX workbook")
	sheet := flag.String("sheet", "", "sheet name (default: first sheet)")
	batchSize := flag.Int("batch", catalogimport.DefaultBatchSize, "products per upsert batch")
	flag.Parse()
	if *path == "" {
		flag.Usage()
		return errors.New("-file is required")
	}
	if *batchSize <= 0 {
		return errors.New("-batch must be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log, cfg.Server.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	repo := postgres.NewProductRepo(db, domain.CatalogOrder(cfg.Catalog.Order))

	res, err := catalogimport.ImportFile(context.Background(), repo, *path, *sheet, *batchSize)
	if err != nil {
		return err
	}
	for _, skipped := range res.Skipped {
		logger.Warn("seedcatalog: row skipped", zap.Int("row", skipped.Row), zap.Error(skipped.Err))
	}

	logger.Info("seedcatalog: import complete",
		zap.String("file", *path),
		zap.Int("products", len(res.Products)),
		zap.Int("skipped", len(res.Skipped)))
	return nil
}
