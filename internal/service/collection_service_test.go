package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shelf/internal/connection"
	"shelf/internal/domain"
	"shelf/internal/membership"
	"shelf/internal/port"
	"shelf/internal/repository/memory"
	"shelf/internal/rules"
	"shelf/internal/service"
	"shelf/mocks"
)

type fixture struct {
	svc      service.CollectionService
	repo     *memory.CollectionStore
	catalog  *memory.CatalogStore
	events   *mocks.MockEventPublisher
	images   *mocks.MockImageStore
	products []domain.Product
}

func price(v float64) *float64 { return &v }

func testConfig() service.CollectionServiceConfig {
	return service.CollectionServiceConfig{
		MaxRetries:        2,
		RetryInitialDelay: time.Millisecond,
		ImageBucket:       "images",
		MaxImageBytes:     1024,
		PresignExpiry:     time.Hour,
		PublishTimeout:    20 * time.Millisecond,
	}
}

func newPaginator() *connection.Paginator {
	return connection.NewPaginator(connection.NewCursorCodec("test-secret", "shelf-test", 0), 20, 100)
}

func setupCollectionService(t *testing.T) *fixture {
	t.Helper()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: uuid.New(), Title: "Linen shirt", Vendor: "Acme", Tags: domain.StringList{"summer"}, Price: price(30), CreatedAt: base},
		{ID: uuid.New(), Title: "Wool coat", Vendor: "Acme", Tags: domain.StringList{"winter"}, Price: price(120), CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), Title: "Sandals", Vendor: "Other", Tags: domain.StringList{"summer"}, Price: price(60), CreatedAt: base.Add(2 * time.Minute)},
	}
	catalog := memory.NewCatalogStore(domain.CatalogOrderCreated)
	require.NoError(t, catalog.UpsertProducts(context.Background(), products))

	repo := memory.NewCollectionStore()
	evaluator := rules.NewEvaluator(rules.CaseInsensitive)
	resolver := membership.NewResolver(catalog, evaluator, nil, zap.NewNop())
	events := new(mocks.MockEventPublisher)
	images := new(mocks.MockImageStore)

	svc := service.NewCollectionService(repo, catalog, resolver, newPaginator(), evaluator,
		images, events, testConfig(), zap.NewNop())
	return &fixture{svc: svc, repo: repo, catalog: catalog, events: events, images: images, products: products}
}

func (f *fixture) expectEvent(change domain.ChangeKind) {
	f.events.On("PublishCollectionChanged", mock.Anything, mock.MatchedBy(func(e *domain.CollectionChangedEvent) bool {
		return e.Change == change
	})).Return(nil).Once()
}

func (f *fixture) createManual(t *testing.T, ids ...uuid.UUID) *domain.Collection {
	t.Helper()
	f.expectEvent(domain.ChangeCreated)
	c, err := f.svc.Create(context.Background(), &service.CreateCollectionInput{Title: "Picks", ProductIDs: ids})
	require.NoError(t, err)
	return c
}

func intPtr(v int) *int { return &v }

func edgeIDs(conn *service.ProductConnection) []uuid.UUID {
	out := make([]uuid.UUID, len(conn.Edges))
	for i, e := range conn.Edges {
		out[i] = e.ID
	}
	return out
}

// --- GetCollectionProducts ---

func TestCollectionService_GetCollectionProducts_ManualPages(t *testing.T) {
	f := setupCollectionService(t)
	p := f.products
	c := f.createManual(t, p[2].ID, p[0].ID, p[1].ID)
	ctx := context.Background()

	first, err := f.svc.GetCollectionProducts(ctx, c.ID, connection.Args{First: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p[2].ID}, edgeIDs(first))
	assert.Equal(t, "Sandals", first.Edges[0].Product.Title)
	assert.True(t, first.PageInfo.HasNextPage)
	assert.False(t, first.PageInfo.HasPreviousPage)
	assert.Equal(t, 3, first.TotalCount)
	assert.Equal(t, int64(1), first.Generation)

	next, err := f.svc.GetCollectionProducts(ctx, c.ID, connection.Args{First: intPtr(2), After: first.PageInfo.EndCursor})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p[0].ID, p[1].ID}, edgeIDs(next))
	assert.False(t, next.PageInfo.HasNextPage)
	assert.True(t, next.PageInfo.HasPreviousPage)
}

func TestCollectionService_GetCollectionProducts_AutomaticDisjunctive(t *testing.T) {
	f := setupCollectionService(t)
	f.expectEvent(domain.ChangeCreated)
	c, err := f.svc.Create(context.Background(), &service.CreateCollectionInput{
		Title: "Summer or cheap",
		RuleSet: &domain.RuleSet{Mode: domain.ModeDisjunctive, Rules: []domain.CollectionRule{
			{Field: domain.RuleFieldTag, Relation: domain.RelationEquals, Value: "summer"},
			{Field: domain.RuleFieldPrice, Relation: domain.RelationLessThan, Value: "50"},
		}},
	})
	require.NoError(t, err)

	conn, err := f.svc.GetCollectionProducts(context.Background(), c.ID, connection.Args{})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{f.products[0].ID, f.products[2].ID}, edgeIDs(conn))
}

func TestCollectionService_GetCollectionProducts_InvalidArgs(t *testing.T) {
	repo := new(mocks.MockCollectionRepo)
	svc := service.NewCollectionService(repo, nil, nil, newPaginator(), nil, nil, nil, testConfig(), nil)

	_, err := svc.GetCollectionProducts(context.Background(), uuid.New(), connection.Args{First: intPtr(1), Last: intPtr(1)})

	assert.ErrorIs(t, err, domain.ErrInvalidPaginationArguments)
	repo.AssertNotCalled(t, "GetSnapshot", mock.Anything, mock.Anything)
}

func TestCollectionService_GetCollectionProducts_NotFound(t *testing.T) {
	f := setupCollectionService(t)

	_, err := f.svc.GetCollectionProducts(context.Background(), uuid.New(), connection.Args{})

	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestCollectionService_GetCollectionProducts_StaleAfterEarlierRemoval(t *testing.T) {
	f := setupCollectionService(t)
	p := f.products
	c := f.createManual(t, p[0].ID, p[1].ID, p[2].ID)
	ctx := context.Background()

	page, err := f.svc.GetCollectionProducts(ctx, c.ID, connection.Args{First: intPtr(2)})
	require.NoError(t, err)

	f.expectEvent(domain.ChangeProductsRemoved)
	_, err = f.svc.RemoveProducts(ctx, c.ID, []uuid.UUID{p[0].ID})
	require.NoError(t, err)

	_, err = f.svc.GetCollectionProducts(ctx, c.ID, connection.Args{First: intPtr(2), After: page.PageInfo.EndCursor})
	assert.ErrorIs(t, err, domain.ErrStaleCursor)
}

func TestCollectionService_GetCollectionProducts_MissingProductKeepsReference(t *testing.T) {
	f := setupCollectionService(t)
	gone := uuid.New()
	c := f.createManual(t, gone, f.products[0].ID)

	conn, err := f.svc.GetCollectionProducts(context.Background(), c.ID, connection.Args{})
	require.NoError(t, err)

	require.Len(t, conn.Edges, 2)
	assert.Equal(t, gone, conn.Edges[0].ID)
	assert.Nil(t, conn.Edges[0].Product)
	assert.NotNil(t, conn.Edges[1].Product)
}

func retryFixture(t *testing.T, catalog *mocks.MockCatalogStore) (service.CollectionService, uuid.UUID) {
	t.Helper()
	repo := memory.NewCollectionStore()
	snap := &domain.CollectionSnapshot{Collection: domain.Collection{
		ID:    uuid.New(),
		Title: "Automatic",
		RuleSet: &domain.RuleSet{Mode: domain.ModeConjunctive, Rules: []domain.CollectionRule{
			{Field: domain.RuleFieldVendor, Relation: domain.RelationEquals, Value: "Acme"},
		}},
	}}
	require.NoError(t, repo.Create(context.Background(), snap))

	evaluator := rules.NewEvaluator(rules.CaseInsensitive)
	resolver := membership.NewResolver(catalog, evaluator, nil, nil)
	svc := service.NewCollectionService(repo, catalog, resolver, newPaginator(), evaluator, nil, nil, testConfig(), nil)
	return svc, snap.Collection.ID
}

func TestCollectionService_GetCollectionProducts_RetriesUnavailableCatalog(t *testing.T) {
	catalog := new(mocks.MockCatalogStore)
	svc, id := retryFixture(t, catalog)
	p := domain.Product{ID: uuid.New(), Vendor: "Acme"}

	catalog.On("Revision", mock.Anything).Return("", errors.New("connection refused")).Twice()
	catalog.On("Revision", mock.Anything).Return("1", nil)
	catalog.On("ListProducts", mock.Anything, mock.Anything).Return([]domain.Product{p}, nil)
	catalog.On("GetProducts", mock.Anything, []uuid.UUID{p.ID}).Return(map[uuid.UUID]*domain.Product{p.ID: &p}, nil)

	conn, err := svc.GetCollectionProducts(context.Background(), id, connection.Args{})

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p.ID}, edgeIDs(conn))
	catalog.AssertNumberOfCalls(t, "ListProducts", 1)
}

func TestCollectionService_GetCollectionProducts_RetriesExhausted(t *testing.T) {
	catalog := new(mocks.MockCatalogStore)
	svc, id := retryFixture(t, catalog)
	catalog.On("Revision", mock.Anything).Return("", errors.New("connection refused"))

	_, err := svc.GetCollectionProducts(context.Background(), id, connection.Args{})

	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	catalog.AssertNumberOfCalls(t, "Revision", 3)
	catalog.AssertNotCalled(t, "ListProducts", mock.Anything, mock.Anything)
}

// --- Create ---

func TestCollectionService_Create_Validation(t *testing.T) {
	dup := uuid.New()
	tests := []struct {
		name  string
		input service.CreateCollectionInput
		want  error
	}{
		{"blank title", service.CreateCollectionInput{Title: "  "}, domain.ErrTitleRequired},
		{"mixed membership", service.CreateCollectionInput{
			Title:      "Mixed",
			RuleSet:    &domain.RuleSet{Mode: domain.ModeConjunctive},
			ProductIDs: []uuid.UUID{uuid.New()},
		}, domain.ErrMixedMembership},
		{"duplicate ids", service.CreateCollectionInput{Title: "Dup", ProductIDs: []uuid.UUID{dup, dup}}, domain.ErrDuplicateMember},
		{"bad mode", service.CreateCollectionInput{Title: "Mode", RuleSet: &domain.RuleSet{Mode: "SOMETIMES"}}, domain.ErrInvalidCombinationMode},
		{"bad rule", service.CreateCollectionInput{Title: "Rule", RuleSet: &domain.RuleSet{
			Mode:  domain.ModeConjunctive,
			Rules: []domain.CollectionRule{{Field: domain.RuleFieldPrice, Relation: domain.RelationContains, Value: "1"}},
		}}, domain.ErrRuleTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupCollectionService(t)
			_, err := f.svc.Create(context.Background(), &tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrValidation)
			f.events.AssertNotCalled(t, "PublishCollectionChanged", mock.Anything, mock.Anything)
		})
	}
}

func TestCollectionService_Create_PublishesEvent(t *testing.T) {
	f := setupCollectionService(t)

	c := f.createManual(t, f.products[0].ID)

	assert.Equal(t, "Picks", c.Title)
	assert.Equal(t, int64(1), c.Generation)
	f.events.AssertExpectations(t)
}

func TestCollectionService_Create_PublishFailureIgnored(t *testing.T) {
	f := setupCollectionService(t)
	f.events.On("PublishCollectionChanged", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	c, err := f.svc.Create(context.Background(), &service.CreateCollectionInput{Title: "Picks"})

	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestCollectionService_AddProducts_SlowPublishIsBounded(t *testing.T) {
	f := setupCollectionService(t)
	c := f.createManual(t, f.products[0].ID)

	var hadDeadline bool
	f.events.On("PublishCollectionChanged", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, hadDeadline = ctx.Deadline()
			<-ctx.Done()
		}).
		Return(context.DeadlineExceeded)

	start := time.Now()
	got, err := f.svc.AddProducts(context.Background(), c.ID, []uuid.UUID{f.products[1].ID})

	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Generation)
	assert.True(t, hadDeadline)
	assert.Less(t, time.Since(start), time.Second)
}

// --- Membership mutations ---

func TestCollectionService_AddProducts(t *testing.T) {
	f := setupCollectionService(t)
	p := f.products
	c := f.createManual(t, p[0].ID)

	f.expectEvent(domain.ChangeProductsAdded)
	got, err := f.svc.AddProducts(context.Background(), c.ID, []uuid.UUID{p[1].ID, p[2].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Generation)

	snap, _ := f.repo.GetSnapshot(context.Background(), c.ID)
	assert.Equal(t, []uuid.UUID{p[0].ID, p[1].ID, p[2].ID}, snap.Members)

	_, err = f.svc.AddProducts(context.Background(), c.ID, []uuid.UUID{p[0].ID})
	assert.ErrorIs(t, err, domain.ErrDuplicateMember)
	f.events.AssertExpectations(t)
}

func TestCollectionService_AddProducts_AutomaticRejected(t *testing.T) {
	f := setupCollectionService(t)
	f.expectEvent(domain.ChangeCreated)
	c, err := f.svc.Create(context.Background(), &service.CreateCollectionInput{
		Title:   "Auto",
		RuleSet: &domain.RuleSet{Mode: domain.ModeConjunctive},
	})
	require.NoError(t, err)

	_, err = f.svc.AddProducts(context.Background(), c.ID, []uuid.UUID{f.products[0].ID})
	assert.ErrorIs(t, err, domain.ErrCollectionIsAutomatic)

	_, err = f.svc.MoveProduct(context.Background(), c.ID, f.products[0].ID, 0)
	assert.ErrorIs(t, err, domain.ErrCollectionIsAutomatic)
}

func TestCollectionService_RemoveProducts_NotMember(t *testing.T) {
	f := setupCollectionService(t)
	c := f.createManual(t, f.products[0].ID)

	_, err := f.svc.RemoveProducts(context.Background(), c.ID, []uuid.UUID{f.products[1].ID})

	assert.ErrorIs(t, err, domain.ErrProductNotInCollection)
	snap, err := f.repo.GetSnapshot(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Generation())
}

func TestCollectionService_MoveProduct(t *testing.T) {
	f := setupCollectionService(t)
	p := f.products
	c := f.createManual(t, p[0].ID, p[1].ID, p[2].ID)
	ctx := context.Background()

	f.expectEvent(domain.ChangeProductMoved)
	_, err := f.svc.MoveProduct(ctx, c.ID, p[2].ID, 0)
	require.NoError(t, err)
	snap, _ := f.repo.GetSnapshot(ctx, c.ID)
	assert.Equal(t, []uuid.UUID{p[2].ID, p[0].ID, p[1].ID}, snap.Members)

	f.expectEvent(domain.ChangeProductMoved)
	_, err = f.svc.MoveProduct(ctx, c.ID, p[2].ID, 2)
	require.NoError(t, err)
	snap, _ = f.repo.GetSnapshot(ctx, c.ID)
	assert.Equal(t, []uuid.UUID{p[0].ID, p[1].ID, p[2].ID}, snap.Members)

	_, err = f.svc.MoveProduct(ctx, c.ID, p[0].ID, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)
	_, err = f.svc.MoveProduct(ctx, c.ID, uuid.New(), 0)
	assert.ErrorIs(t, err, domain.ErrProductNotInCollection)
}

func TestCollectionService_SetRuleSet(t *testing.T) {
	f := setupCollectionService(t)
	ctx := context.Background()
	rs := &domain.RuleSet{Mode: domain.ModeConjunctive, Rules: []domain.CollectionRule{
		{Field: domain.RuleFieldVendor, Relation: domain.RelationEquals, Value: "acme"},
	}}

	withMembers := f.createManual(t, f.products[0].ID)
	_, err := f.svc.SetRuleSet(ctx, withMembers.ID, rs)
	assert.ErrorIs(t, err, domain.ErrMixedMembership)

	empty := f.createManual(t)
	f.expectEvent(domain.ChangeRulesUpdated)
	got, err := f.svc.SetRuleSet(ctx, empty.ID, rs)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipAutomatic, got.Kind())
	assert.Equal(t, int64(2), got.Generation)

	conn, err := f.svc.GetCollectionProducts(ctx, empty.ID, connection.Args{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.products[0].ID, f.products[1].ID}, edgeIDs(conn))
}

func TestCollectionService_Update_KeepsGeneration(t *testing.T) {
	f := setupCollectionService(t)
	c := f.createManual(t, f.products[0].ID)

	got, err := f.svc.Update(context.Background(), &service.UpdateCollectionInput{
		CollectionID: c.ID, Title: "Renamed", Description: "<b>bold</b>",
	})

	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, int64(1), got.Generation)

	_, err = f.svc.Update(context.Background(), &service.UpdateCollectionInput{CollectionID: c.ID})
	assert.ErrorIs(t, err, domain.ErrTitleRequired)
}

func TestCollectionService_Delete(t *testing.T) {
	f := setupCollectionService(t)
	c := f.createManual(t)

	f.expectEvent(domain.ChangeDeleted)
	require.NoError(t, f.svc.Delete(context.Background(), c.ID))

	_, err := f.svc.GetByID(context.Background(), c.ID)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	f.events.AssertExpectations(t)
}

// --- Images ---

var pngHeader = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func TestCollectionService_SetImage(t *testing.T) {
	f := setupCollectionService(t)
	c := f.createManual(t)

	f.images.On("Put", mock.Anything, mock.MatchedBy(func(in port.ImageUpload) bool {
		return in.Bucket == "images" && in.ContentType == "image/png" &&
			strings.HasPrefix(in.Key, "collections/"+c.ID.String()+"/images/") && strings.HasSuffix(in.Key, ".png")
	})).Return(&port.StoredImage{}, nil)
	f.images.On("PresignGet", mock.Anything, "images", mock.Anything, time.Hour).Return("https://img.example/signed", nil)

	got, err := f.svc.SetImage(context.Background(), &service.SetImageInput{
		CollectionID: c.ID, Filename: "cover.png", Size: int64(len(pngHeader)), Body: bytes.NewReader(pngHeader),
	})

	require.NoError(t, err)
	assert.Equal(t, "https://img.example/signed", got.ImageURL)
	require.NotNil(t, got.ImageKey)

	fetched, err := f.svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.ImageKey, *fetched.ImageKey)
	f.images.AssertExpectations(t)
}

func TestCollectionService_SetImage_Rejections(t *testing.T) {
	f := setupCollectionService(t)
	c := f.createManual(t)

	_, err := f.svc.SetImage(context.Background(), &service.SetImageInput{
		CollectionID: c.ID, Size: 4096, Body: bytes.NewReader(pngHeader),
	})
	assert.ErrorIs(t, err, domain.ErrImageTooLarge)

	_, err = f.svc.SetImage(context.Background(), &service.SetImageInput{
		CollectionID: c.ID, Size: 11, Body: strings.NewReader("just a note"),
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedImage)

	f.images.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestCollectionService_SetImage_UploadFailure(t *testing.T) {
	f := setupCollectionService(t)
	c := f.createManual(t)
	f.images.On("Put", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := f.svc.SetImage(context.Background(), &service.SetImageInput{
		CollectionID: c.ID, Size: int64(len(pngHeader)), Body: bytes.NewReader(pngHeader),
	})

	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	snap, _ := f.repo.GetSnapshot(context.Background(), c.ID)
	assert.Nil(t, snap.Collection.ImageKey)
}

// --- Export ---

func TestCollectionService_ExportProducts(t *testing.T) {
	f := setupCollectionService(t)
	gone := uuid.New()
	c := f.createManual(t, f.products[1].ID, gone)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportProducts(context.Background(), c.ID, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Position", records[0][0])
	assert.Equal(t, []string{"1", f.products[1].ID.String(), "Wool coat"}, records[1][:3])
	assert.Equal(t, []string{"2", gone.String(), ""}, records[2][:3])
}
