package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shelf/internal/connection"
	"shelf/internal/csvexport"
	"shelf/internal/domain"
	"shelf/internal/membership"
	"shelf/internal/metrics"
	"shelf/internal/port"
	"shelf/internal/rules"
)

// CreateCollectionInput is the DTO for creating a collection. A non-nil
// RuleSet makes the collection automatic; ProductIDs make it manual.
type CreateCollectionInput struct {
	Title       string
	Description string
	RuleSet     *domain.RuleSet
	ProductIDs  []uuid.UUID
}

// UpdateCollectionInput is the DTO for updating collection details.
type UpdateCollectionInput struct {
	CollectionID uuid.UUID
	Title        string
	Description  string
}

// SetImageInput carries an uploaded collection image.
type SetImageInput struct {
	CollectionID uuid.UUID
	Filename     string
	Size         int64
	Body         io.Reader
}

// ProductEdge is one page entry. Product is nil when the member is no longer
// in the catalog.
type ProductEdge struct {
	Cursor  string          `json:"cursor"`
	ID      uuid.UUID       `json:"id"`
	Product *domain.Product `json:"product,omitempty"`
}

// ProductConnection is a page of collection members with its paging metadata.
type ProductConnection struct {
	Edges      []ProductEdge       `json:"edges"`
	PageInfo   connection.PageInfo `json:"page_info"`
	TotalCount int                 `json:"total_count"`
	Generation int64               `json:"generation"`
}

// CollectionServiceConfig holds the tunables of CollectionService.
type CollectionServiceConfig struct {
	MaxRetries        int
	RetryInitialDelay time.Duration
	ImageBucket       string
	MaxImageBytes     int64
	PresignExpiry     time.Duration
	// PublishTimeout bounds each change event publish. Zero means
	// defaultPublishTimeout.
	PublishTimeout time.Duration
}

const defaultPublishTimeout = 2 * time.Second

// CollectionService defines the collection management and query contract.
type CollectionService interface {
	GetCollectionProducts(ctx context.Context, collectionID uuid.UUID, args connection.Args) (*ProductConnection, error)
	Create(ctx context.Context, input *CreateCollectionInput) (*domain.Collection, error)
	GetByID(ctx context.Context, collectionID uuid.UUID) (*domain.Collection, error)
	List(ctx context.Context, offset, limit int) ([]domain.Collection, int, error)
	Update(ctx context.Context, input *UpdateCollectionInput) (*domain.Collection, error)
	Delete(ctx context.Context, collectionID uuid.UUID) error
	SetRuleSet(ctx context.Context, collectionID uuid.UUID, rs *domain.RuleSet) (*domain.Collection, error)
	AddProducts(ctx context.Context, collectionID uuid.UUID, productIDs []uuid.UUID) (*domain.Collection, error)
	RemoveProducts(ctx context.Context, collectionID uuid.UUID, productIDs []uuid.UUID) (*domain.Collection, error)
	MoveProduct(ctx context.Context, collectionID, productID uuid.UUID, position int) (*domain.Collection, error)
	SetImage(ctx context.Context, input *SetImageInput) (*domain.Collection, error)
	ExportProducts(ctx context.Context, collectionID uuid.UUID, w io.Writer) error
}

type collectionService struct {
	repo      port.CollectionRepository
	catalog   port.CatalogStore
	resolver  *membership.Resolver
	paginator *connection.Paginator
	evaluator *rules.Evaluator
	images    port.ImageStore
	events    port.EventPublisher
	cfg       CollectionServiceConfig
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewCollectionService creates a new CollectionService implementation.
// images may be nil, in which case SetImage fails and no image URLs are
// produced.
func NewCollectionService(
	repo port.CollectionRepository,
	catalog port.CatalogStore,
	resolver *membership.Resolver,
	paginator *connection.Paginator,
	evaluator *rules.Evaluator,
	images port.ImageStore,
	events port.EventPublisher,
	cfg CollectionServiceConfig,
	logger *zap.Logger,
) CollectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &collectionService{
		repo:      repo,
		catalog:   catalog,
		resolver:  resolver,
		paginator: paginator,
		evaluator: evaluator,
		images:    images,
		events:    events,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// queryStage names the step a product query failed in.
type queryStage string

const (
	stageValidating queryStage = "validating"
	stageResolving  queryStage = "resolving"
	stagePaginating queryStage = "paginating"
	stageDone       queryStage = "done"
)

func (s *collectionService) GetCollectionProducts(ctx context.Context, collectionID uuid.UUID, args connection.Args) (*ProductConnection, error) {
	stage := stageValidating
	fail := func(err error) (*ProductConnection, error) {
		s.logger.Debug("collectionService.GetCollectionProducts: query failed",
			zap.String("collection_id", collectionID.String()),
			zap.String("stage", string(stage)),
			zap.Error(err))
		return nil, fmt.Errorf("collectionService.GetCollectionProducts: %s: %w", stage, err)
	}

	if err := s.paginator.Validate(args); err != nil {
		return fail(err)
	}

	stage = stageResolving
	snap, err := s.repo.GetSnapshot(ctx, collectionID)
	if err != nil {
		return fail(err)
	}
	res, err := s.resolve(ctx, snap)
	if err != nil {
		return fail(err)
	}

	stage = stagePaginating
	page, err := s.paginator.Page(&connection.Sequence{
		CollectionID: res.CollectionID,
		Generation:   res.Generation,
		Items:        res.Items,
	}, args)
	if err != nil {
		return fail(err)
	}
	out, err := s.hydrate(ctx, page)
	if err != nil {
		return fail(err)
	}

	stage = stageDone
	s.logger.Debug("collectionService.GetCollectionProducts: page served",
		zap.String("collection_id", collectionID.String()),
		zap.Int64("generation", out.Generation),
		zap.Int("edges", len(out.Edges)),
		zap.String("stage", string(stage)))
	return out, nil
}

// resolve retries a resolution that failed because the catalog was
// unavailable, doubling the delay after every attempt.
func (s *collectionService) resolve(ctx context.Context, snap *domain.CollectionSnapshot) (*membership.Resolution, error) {
	delay := s.cfg.RetryInitialDelay
	for attempt := 0; ; attempt++ {
		res, err := s.resolver.Resolve(ctx, snap)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrCatalogUnavailable) || attempt >= s.cfg.MaxRetries {
			return nil, err
		}
		metrics.CatalogRetriesTotal.Inc()
		s.logger.Warn("collectionService.resolve: catalog unavailable, retrying",
			zap.String("collection_id", snap.Collection.ID.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func (s *collectionService) hydrate(ctx context.Context, page *connection.Connection) (*ProductConnection, error) {
	out := &ProductConnection{
		Edges:      make([]ProductEdge, len(page.Edges)),
		PageInfo:   page.PageInfo,
		TotalCount: page.TotalCount,
		Generation: page.Generation,
	}
	if len(page.Edges) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, len(page.Edges))
	for i, e := range page.Edges {
		ids[i] = e.Node.ID
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, e := range page.Edges {
		out.Edges[i] = ProductEdge{Cursor: e.Cursor, ID: e.Node.ID, Product: products[e.Node.ID]}
	}
	return out, nil
}

// --- Collection management ---

func (s *collectionService) validateRuleSet(rs *domain.RuleSet) error {
	if rs == nil {
		return nil
	}
	if _, err := s.evaluator.Compile(rs); err != nil {
		return err
	}
	return nil
}

func checkDistinct(ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateMember, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (s *collectionService) Create(ctx context.Context, input *CreateCollectionInput) (*domain.Collection, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.ErrTitleRequired
	}
	if input.RuleSet != nil && len(input.ProductIDs) > 0 {
		return nil, domain.ErrMixedMembership
	}
	if err := s.validateRuleSet(input.RuleSet); err != nil {
		return nil, err
	}
	if err := checkDistinct(input.ProductIDs); err != nil {
		return nil, err
	}

	snap := &domain.CollectionSnapshot{
		Collection: domain.Collection{
			ID:          uuid.New(),
			Title:       title,
			Description: input.Description,
			RuleSet:     input.RuleSet.Clone(),
		},
		Members: append([]uuid.UUID{}, input.ProductIDs...),
	}

	s.logger.Info("collectionService.Create: creating collection",
		zap.String("collection_id", snap.Collection.ID.String()),
		zap.String("kind", string(snap.Kind())))

	if err := s.repo.Create(ctx, snap); err != nil {
		s.logger.Error("collectionService.Create: failed to create collection", zap.Error(err))
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	s.publish(ctx, snap, domain.ChangeCreated)
	c := snap.Collection
	return &c, nil
}

func (s *collectionService) GetByID(ctx context.Context, collectionID uuid.UUID) (*domain.Collection, error) {
	snap, err := s.repo.GetSnapshot(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	c := snap.Collection
	s.presign(ctx, &c)
	return &c, nil
}

func (s *collectionService) List(ctx context.Context, offset, limit int) ([]domain.Collection, int, error) {
	collections, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	for i := range collections {
		s.presign(ctx, &collections[i])
	}
	return collections, total, nil
}

func (s *collectionService) Update(ctx context.Context, input *UpdateCollectionInput) (*domain.Collection, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.ErrTitleRequired
	}

	snap, err := s.repo.GetSnapshot(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}
	c := snap.Collection
	c.Title = title
	c.Description = input.Description

	if err := s.repo.UpdateDetails(ctx, &c); err != nil {
		return nil, err
	}
	s.presign(ctx, &c)
	return &c, nil
}

func (s *collectionService) Delete(ctx context.Context, collectionID uuid.UUID) error {
	snap, err := s.repo.GetSnapshot(ctx, collectionID)
	if err != nil {
		return err
	}

	s.logger.Info("collectionService.Delete: deleting collection",
		zap.String("collection_id", collectionID.String()))

	if err := s.repo.Delete(ctx, collectionID); err != nil {
		return err
	}

	if snap.Collection.ImageKey != nil && s.images != nil {
		if err := s.images.Remove(ctx, s.cfg.ImageBucket, *snap.Collection.ImageKey); err != nil {
			s.logger.Warn("collectionService.Delete: failed to delete image",
				zap.String("key", *snap.Collection.ImageKey), zap.Error(err))
		}
	}

	s.publish(ctx, snap, domain.ChangeDeleted)
	return nil
}

func (s *collectionService) SetRuleSet(ctx context.Context, collectionID uuid.UUID, rs *domain.RuleSet) (*domain.Collection, error) {
	if err := s.validateRuleSet(rs); err != nil {
		return nil, err
	}
	return s.mutate(ctx, collectionID, domain.ChangeRulesUpdated, func(d *domain.CollectionSnapshot) error {
		if rs != nil && len(d.Members) > 0 {
			return domain.ErrMixedMembership
		}
		d.Collection.RuleSet = rs.Clone()
		return nil
	})
}

func (s *collectionService) AddProducts(ctx context.Context, collectionID uuid.UUID, productIDs []uuid.UUID) (*domain.Collection, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: no products given", domain.ErrValidation)
	}
	if err := checkDistinct(productIDs); err != nil {
		return nil, err
	}
	return s.mutate(ctx, collectionID, domain.ChangeProductsAdded, func(d *domain.CollectionSnapshot) error {
		if d.Kind() == domain.MembershipAutomatic {
			return domain.ErrCollectionIsAutomatic
		}
		if indexOf(d.Members, productIDs...) >= 0 {
			return domain.ErrDuplicateMember
		}
		d.Members = append(d.Members, productIDs...)
		return nil
	})
}

func (s *collectionService) RemoveProducts(ctx context.Context, collectionID uuid.UUID, productIDs []uuid.UUID) (*domain.Collection, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: no products given", domain.ErrValidation)
	}
	return s.mutate(ctx, collectionID, domain.ChangeProductsRemoved, func(d *domain.CollectionSnapshot) error {
		if d.Kind() == domain.MembershipAutomatic {
			return domain.ErrCollectionIsAutomatic
		}
		drop := make(map[uuid.UUID]struct{}, len(productIDs))
		for _, id := range productIDs {
			if indexOf(d.Members, id) < 0 {
				return fmt.Errorf("%w: %s", domain.ErrProductNotInCollection, id)
			}
			drop[id] = struct{}{}
		}
		kept := d.Members[:0]
		for _, id := range d.Members {
			if _, ok := drop[id]; !ok {
				kept = append(kept, id)
			}
		}
		d.Members = kept
		return nil
	})
}

func (s *collectionService) MoveProduct(ctx context.Context, collectionID, productID uuid.UUID, position int) (*domain.Collection, error) {
	return s.mutate(ctx, collectionID, domain.ChangeProductMoved, func(d *domain.CollectionSnapshot) error {
		if d.Kind() == domain.MembershipAutomatic {
			return domain.ErrCollectionIsAutomatic
		}
		from := indexOf(d.Members, productID)
		if from < 0 {
			return domain.ErrProductNotInCollection
		}
		if position < 0 || position >= len(d.Members) {
			return domain.ErrInvalidPosition
		}
		members := append(d.Members[:from:from], d.Members[from+1:]...)
		members = append(members[:position], append([]uuid.UUID{productID}, members[position:]...)...)
		d.Members = members
		return nil
	})
}

// indexOf returns the position in members of the first of ids found, or -1.
func indexOf(members []uuid.UUID, ids ...uuid.UUID) int {
	for i, m := range members {
		for _, id := range ids {
			if m == id {
				return i
			}
		}
	}
	return -1
}

func (s *collectionService) mutate(ctx context.Context, collectionID uuid.UUID, change domain.ChangeKind, fn port.MutateFunc) (*domain.Collection, error) {
	snap, err := s.repo.Mutate(ctx, collectionID, fn)
	if err != nil {
		return nil, err
	}

	s.logger.Info("collectionService.mutate: membership changed",
		zap.String("collection_id", collectionID.String()),
		zap.String("change", string(change)),
		zap.Int64("generation", snap.Generation()))

	s.publish(ctx, snap, change)
	c := snap.Collection
	s.presign(ctx, &c)
	return &c, nil
}

// publish is best effort: the mutation has already committed, so a slow
// broker may delay the response by at most PublishTimeout.
func (s *collectionService) publish(ctx context.Context, snap *domain.CollectionSnapshot, change domain.ChangeKind) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	event := &domain.CollectionChangedEvent{
		EventID:      uuid.New(),
		CollectionID: snap.Collection.ID,
		Generation:   snap.Generation(),
		Change:       change,
		OccurredAt:   time.Now().UTC(),
	}
	if err := s.events.PublishCollectionChanged(ctx, event); err != nil {
		s.logger.Warn("collectionService.publish: failed to publish change event",
			zap.String("collection_id", snap.Collection.ID.String()),
			zap.String("change", string(change)),
			zap.Error(err))
	}
}

// --- Images ---

var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

func (s *collectionService) SetImage(ctx context.Context, input *SetImageInput) (*domain.Collection, error) {
	if s.images == nil {
		return nil, fmt.Errorf("%w: image storage not configured", domain.ErrUploadFailed)
	}
	if s.cfg.MaxImageBytes > 0 && input.Size > s.cfg.MaxImageBytes {
		return nil, domain.ErrImageTooLarge
	}

	snap, err := s.repo.GetSnapshot(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}

	// Sniff the content type from the first 512 bytes, then stitch them back.
	head := make([]byte, 512)
	n, err := io.ReadFull(input.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedImage, contentType)
	}

	key := fmt.Sprintf("collections/%s/images/%s.%s", input.CollectionID, uuid.New(), ext)
	s.logger.Info("collectionService.SetImage: uploading image",
		zap.String("collection_id", input.CollectionID.String()),
		zap.String("key", key),
		zap.String("filename", input.Filename),
		zap.String("content_type", contentType),
		zap.Int64("size", input.Size))

	if _, err := s.images.Put(ctx, port.ImageUpload{
		Bucket:      s.cfg.ImageBucket,
		Key:         key,
		Body:        io.MultiReader(bytes.NewReader(head), input.Body),
		ContentType: contentType,
		Size:        input.Size,
	}); err != nil {
		s.logger.Error("collectionService.SetImage: upload failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}

	c := snap.Collection
	previous := c.ImageKey
	c.ImageKey = &key
	if err := s.repo.UpdateDetails(ctx, &c); err != nil {
		return nil, err
	}

	if previous != nil {
		if err := s.images.Remove(ctx, s.cfg.ImageBucket, *previous); err != nil {
			s.logger.Warn("collectionService.SetImage: failed to delete previous image",
				zap.String("key", *previous), zap.Error(err))
		}
	}

	s.presign(ctx, &c)
	return &c, nil
}

func (s *collectionService) presign(ctx context.Context, c *domain.Collection) {
	if c.ImageKey == nil || s.images == nil {
		return
	}
	url, err := s.images.PresignGet(ctx, s.cfg.ImageBucket, *c.ImageKey, s.cfg.PresignExpiry)
	if err != nil {
		s.logger.Warn("collectionService.presign: failed to presign image",
			zap.String("key", *c.ImageKey), zap.Error(err))
		return
	}
	c.ImageURL = url
}

// --- Export ---

const exportBatchSize = 200

// ExportProducts writes the full resolved membership of a collection to w as
// CSV, hydrating products in batches.
func (s *collectionService) ExportProducts(ctx context.Context, collectionID uuid.UUID, w io.Writer) error {
	snap, err := s.repo.GetSnapshot(ctx, collectionID)
	if err != nil {
		return err
	}
	res, err := s.resolve(ctx, snap)
	if err != nil {
		return err
	}

	cw := csvexport.NewWriter(w)
	if err := cw.WriteHeader(); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for start := 0; start < len(res.Items); start += exportBatchSize {
		end := min(start+exportBatchSize, len(res.Items))
		batch := res.Items[start:end]

		ids := make([]uuid.UUID, len(batch))
		for i, it := range batch {
			ids[i] = it.ID
		}
		products, err := s.catalog.GetProducts(ctx, ids)
		if err != nil {
			return err
		}

		rows := make([]csvexport.Row, len(batch))
		for i, it := range batch {
			rows[i] = csvexport.Row{Position: start + i, ID: it.ID, Product: products[it.ID]}
		}
		if err := cw.WriteRows(rows); err != nil {
			return fmt.Errorf("writing csv rows: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	s.logger.Info("collectionService.ExportProducts: export complete",
		zap.String("collection_id", collectionID.String()),
		zap.Int("rows", len(res.Items)))
	return nil
}
