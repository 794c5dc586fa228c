package handler_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shelf/internal/connection"
	"shelf/internal/csvexport"
	"shelf/internal/domain"
	"shelf/internal/handler"
	"shelf/internal/service"
	"shelf/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCollectionHandler() (*handler.CollectionHandler, *mocks.MockCollectionService) {
	svc := new(mocks.MockCollectionService)
	return handler.NewCollectionHandler(svc), svc
}

func newContext(method, target string, body io.Reader, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(method, target, body)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	c.Params = params
	return c, w
}

func idParam(id uuid.UUID) gin.Params {
	return gin.Params{{Key: "id", Value: id.String()}}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.APIResponse {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// --- Products connection ---

func TestCollectionHandler_ListProducts_ParsesArgs(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()
	end := "cursor-token"
	conn := &service.ProductConnection{
		Edges:      []service.ProductEdge{{Cursor: end, ID: uuid.New()}},
		PageInfo:   connection.PageInfo{HasNextPage: true, EndCursor: &end},
		TotalCount: 3,
		Generation: 4,
	}
	svc.On("GetCollectionProducts", mock.Anything, id, mock.MatchedBy(func(a connection.Args) bool {
		return a.First != nil && *a.First == 2 && a.After != nil && *a.After == "abc" && a.Last == nil && a.Before == nil
	})).Return(conn, nil)

	c, w := newContext(http.MethodGet, "/api/v1/collections/"+id.String()+"/products?first=2&after=abc", nil, idParam(id))
	h.ListProducts(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["total_count"])
	assert.Equal(t, true, data["page_info"].(map[string]interface{})["has_next_page"])
	svc.AssertExpectations(t)
}

func TestCollectionHandler_ListProducts_NonIntegerFirst(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()

	c, w := newContext(http.MethodGet, "/products?first=ten", nil, idParam(id))
	h.ListProducts(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PAGINATION_ARGUMENTS", decode(t, w).Error.Code)
	svc.AssertNotCalled(t, "GetCollectionProducts", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectionHandler_ListProducts_EmptyCursor(t *testing.T) {
	for _, query := range []string{"?after=", "?last=2&before="} {
		t.Run(query, func(t *testing.T) {
			h, svc := newCollectionHandler()
			id := uuid.New()

			c, w := newContext(http.MethodGet, "/products"+query, nil, idParam(id))
			h.ListProducts(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_PAGINATION_ARGUMENTS", decode(t, w).Error.Code)
			svc.AssertNotCalled(t, "GetCollectionProducts", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCollectionHandler_ListProducts_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"stale cursor", fmt.Errorf("paginating: %w", domain.ErrStaleCursor), http.StatusBadRequest, "STALE_CURSOR"},
		{"both directions", domain.ErrInvalidPaginationArguments, http.StatusBadRequest, "INVALID_PAGINATION_ARGUMENTS"},
		{"missing collection", domain.ErrCollectionNotFound, http.StatusNotFound, "COLLECTION_NOT_FOUND"},
		{"catalog down", fmt.Errorf("resolving: %w", domain.ErrCatalogUnavailable), http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newCollectionHandler()
			id := uuid.New()
			svc.On("GetCollectionProducts", mock.Anything, id, mock.Anything).Return(nil, tt.err)

			c, w := newContext(http.MethodGet, "/products", nil, idParam(id))
			h.ListProducts(c)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestCollectionHandler_InvalidID(t *testing.T) {
	h, _ := newCollectionHandler()

	c, w := newContext(http.MethodGet, "/api/v1/collections/nope", nil, gin.Params{{Key: "id", Value: "nope"}})
	h.GetByID(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decode(t, w).Error.Code)
}

// --- Management ---

func TestCollectionHandler_Create(t *testing.T) {
	h, svc := newCollectionHandler()
	created := &domain.Collection{ID: uuid.New(), Title: "Acme under 50", Generation: 1}
	svc.On("Create", mock.Anything, mock.MatchedBy(func(in *service.CreateCollectionInput) bool {
		return in.Title == "Acme under 50" && in.RuleSet != nil &&
			in.RuleSet.Mode == domain.ModeConjunctive && len(in.RuleSet.Rules) == 2
	})).Return(created, nil)

	body := `{"title":"Acme under 50","rule_set":{"mode":"CONJUNCTIVE","rules":[
		{"field":"VENDOR","relation":"EQUALS","value":"Acme"},
		{"field":"PRICE","relation":"LESS_THAN","value":"50"}]}}`
	c, w := newContext(http.MethodPost, "/api/v1/collections", strings.NewReader(body), nil)
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decode(t, w).Success)
	svc.AssertExpectations(t)
}

func TestCollectionHandler_Create_MissingTitle(t *testing.T) {
	h, svc := newCollectionHandler()

	c, w := newContext(http.MethodPost, "/api/v1/collections", strings.NewReader(`{"description":"x"}`), nil)
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCollectionHandler_Create_RuleErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("rule 0: %w", domain.ErrRuleTypeMismatch), "INVALID_RULE"},
		{domain.ErrMixedMembership, "MIXED_MEMBERSHIP"},
		{domain.ErrDuplicateMember, "DUPLICATE_MEMBER"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h, svc := newCollectionHandler()
			svc.On("Create", mock.Anything, mock.Anything).Return(nil, tt.err)

			c, w := newContext(http.MethodPost, "/api/v1/collections", strings.NewReader(`{"title":"t"}`), nil)
			h.Create(c)

			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestCollectionHandler_List(t *testing.T) {
	h, svc := newCollectionHandler()
	svc.On("List", mock.Anything, 10, 5).Return([]domain.Collection{{ID: uuid.New(), Title: "A"}}, 11, nil)

	c, w := newContext(http.MethodGet, "/api/v1/collections?offset=10&limit=5", nil, nil)
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 11, resp.Meta.Total)
	assert.Equal(t, 5, resp.Meta.Limit)
}

func TestCollectionHandler_SetRules_NullClears(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()
	svc.On("SetRuleSet", mock.Anything, id, (*domain.RuleSet)(nil)).Return(&domain.Collection{ID: id}, nil)

	c, w := newContext(http.MethodPut, "/rules", strings.NewReader(`{"rule_set":null}`), idParam(id))
	h.SetRules(c)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestCollectionHandler_AddProducts(t *testing.T) {
	h, svc := newCollectionHandler()
	id, p := uuid.New(), uuid.New()
	svc.On("AddProducts", mock.Anything, id, []uuid.UUID{p}).Return(nil, domain.ErrCollectionIsAutomatic)

	c, w := newContext(http.MethodPost, "/products", strings.NewReader(`{"product_ids":["`+p.String()+`"]}`), idParam(id))
	h.AddProducts(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "COLLECTION_IS_AUTOMATIC", decode(t, w).Error.Code)
}

func TestCollectionHandler_RemoveProducts_EmptyList(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()

	c, w := newContext(http.MethodDelete, "/products", strings.NewReader(`{"product_ids":[]}`), idParam(id))
	h.RemoveProducts(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "RemoveProducts", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectionHandler_MoveProduct(t *testing.T) {
	h, svc := newCollectionHandler()
	id, p := uuid.New(), uuid.New()
	svc.On("MoveProduct", mock.Anything, id, p, 0).Return(&domain.Collection{ID: id, Generation: 3}, nil)

	params := gin.Params{{Key: "id", Value: id.String()}, {Key: "productId", Value: p.String()}}
	c, w := newContext(http.MethodPut, "/position", strings.NewReader(`{"position":0}`), params)
	h.MoveProduct(c)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestCollectionHandler_Delete_NotFound(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()
	svc.On("Delete", mock.Anything, id).Return(domain.ErrCollectionNotFound)

	c, w := newContext(http.MethodDelete, "/", nil, idParam(id))
	h.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Image ---

func TestCollectionHandler_SetImage(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()
	svc.On("SetImage", mock.Anything, mock.MatchedBy(func(in *service.SetImageInput) bool {
		return in.CollectionID == id && in.Filename == "cover.png" && in.Size == 4
	})).Return(&domain.Collection{ID: id, ImageURL: "https://img/signed"}, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "cover.png")
	_, _ = part.Write([]byte("\x89PNG"))
	require.NoError(t, mw.Close())

	c, w := newContext(http.MethodPut, "/image", &body, idParam(id))
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	h.SetImage(c)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestCollectionHandler_SetImage_MissingFile(t *testing.T) {
	h, _ := newCollectionHandler()
	id := uuid.New()

	c, w := newContext(http.MethodPut, "/image", strings.NewReader("{}"), idParam(id))
	h.SetImage(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Export ---

func TestCollectionHandler_ExportCSV(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()
	svc.On("GetByID", mock.Anything, id).Return(&domain.Collection{ID: id, Title: "Summer Picks"}, nil)
	svc.On("ExportProducts", mock.Anything, id, mock.Anything).Return(func(w io.Writer) error {
		cw := csvexport.NewWriter(w)
		if err := cw.WriteHeader(); err != nil {
			return err
		}
		if err := cw.WriteRows([]csvexport.Row{{Position: 0, ID: id}}); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})

	c, w := newContext(http.MethodGet, "/export", nil, idParam(id))
	h.ExportCSV(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Summer_Picks_")

	out := w.Body.Bytes()
	require.True(t, len(out) >= 3)
	assert.Equal(t, csvexport.BOM, out[:3])
	records, err := csv.NewReader(bytes.NewReader(out[3:])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCollectionHandler_ExportCSV_CatalogUnavailable(t *testing.T) {
	h, svc := newCollectionHandler()
	id := uuid.New()
	svc.On("GetByID", mock.Anything, id).Return(&domain.Collection{ID: id, Title: "Summer"}, nil)
	svc.On("ExportProducts", mock.Anything, id, mock.Anything).Return(domain.ErrCatalogUnavailable)

	c, w := newContext(http.MethodGet, "/export", nil, idParam(id))
	h.ExportCSV(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "CATALOG_UNAVAILABLE", decode(t, w).Error.Code)
}
