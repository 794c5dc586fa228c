package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shelf/internal/cache/redis"
	"shelf/internal/catalog"
	"shelf/internal/catalogimport"
	"shelf/internal/config"
	"shelf/internal/connection"
	"shelf/internal/domain"
	"shelf/internal/events/kafka"
	"shelf/internal/events/noop"
	"shelf/internal/handler"
	"shelf/internal/logging"
	"shelf/internal/membership"
	"shelf/internal/port"
	"shelf/internal/repository/memory"
	"shelf/internal/repository/postgres"
	"shelf/internal/router"
	"shelf/internal/rules"
	"shelf/internal/service"
	s3storage "shelf/internal/storage/s3"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log, cfg.Server.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	checks := map[string]handler.ReadinessCheck{}

	// Initialize stores
	var (
		collections port.CollectionRepository
		products    port.CatalogStore
	)
	order := domain.CatalogOrder(cfg.Catalog.Order)
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewCatalogStore(order)
		if cfg.Catalog.SeedFile != "" {
			res, err := catalogimport.ImportFile(context.Background(), store, cfg.Catalog.SeedFile, cfg.Catalog.SeedSheet, 0)
			if err != nil {
				return fmt.Errorf("failed to seed catalog: %w", err)
			}
			logger.Info("catalog seeded",
				zap.String("file", cfg.Catalog.SeedFile),
				zap.Int("products", len(res.Products)),
				zap.Int("skipped", len(res.Skipped)))
		}
		collections = memory.NewCollectionStore()
		products = store
		logger.Warn("using in-memory storage; data is lost on restart")
	default:
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		collections = postgres.NewCollectionRepo(db)
		products = postgres.NewProductRepo(db, order)
		checks["database"] = db.PingContext
	}
	gateway := catalog.NewGateway(products, cfg.Catalog, logger)

	// Resolution cache
	var cache port.ResolutionCache
	if cfg.Redis.Addr != "" {
		rc := redis.NewResolutionCache(cfg.Redis)
		defer rc.Close()
		cache = rc
		checks["cache"] = rc.Ping
		logger.Info("resolution cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Change events
	var events port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		events = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("publishing change events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		events = noop.NewNoopPublisher(logger)
	}
	defer events.Close()

	// Image storage
	var images port.ImageStore
	if cfg.S3.Bucket != "" {
		images, err = s3storage.NewImageStore(&cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 image store: %w", err)
		}
	}

	// Initialize services
	policy := rules.CaseInsensitive
	if cfg.Rules.CaseSensitive {
		policy = rules.CaseSensitive
	}
	evaluator := rules.NewEvaluator(policy)
	resolver := membership.NewResolver(gateway, evaluator, cache, logger)
	codec := connection.NewCursorCodec(cfg.Pagination.CursorSecret, "shelf", cfg.Pagination.CursorTTL)
	paginator := connection.NewPaginator(codec, cfg.Pagination.DefaultPageSize, cfg.Pagination.MaxPageSize)

	collectionSvc := service.NewCollectionService(collections, gateway, resolver, paginator, evaluator, images, events,
		service.CollectionServiceConfig{
			MaxRetries:        cfg.Catalog.MaxRetries,
			RetryInitialDelay: cfg.Catalog.RetryInitialDelay,
			ImageBucket:       cfg.S3.Bucket,
			MaxImageBytes:     cfg.S3.MaxImageSizeMB << 20,
			PresignExpiry:     time.Duration(cfg.S3.PresignExpiry) * time.Second,
			PublishTimeout:    cfg.Kafka.PublishTimeout,
		}, logger)

	// Initialize handlers
	collectionH := handler.NewCollectionHandler(collectionSvc)
	healthH := handler.NewHealthHandler(checks)

	// Setup router
	r := router.Setup(logger, cfg.CORS.AllowedOrigins, collectionH, healthH)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
