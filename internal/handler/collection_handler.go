package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"shelf/internal/connection"
	"shelf/internal/csvexport"
	"shelf/internal/domain"
	"shelf/internal/service"
)

// CollectionHandler handles collection management and query endpoints.
type CollectionHandler struct {
	collectionService service.CollectionService
}

// NewCollectionHandler creates a new CollectionHandler.
func NewCollectionHandler(collectionService service.CollectionService) *CollectionHandler {
	return &CollectionHandler{collectionService: collectionService}
}

func parseCollectionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid collection ID")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /api/v1/collections
func (h *CollectionHandler) Create(c *gin.Context) {
	var req struct {
		Title       string          `json:"title" binding:"required"`
		Description string          `json:"description"`
		RuleSet     *domain.RuleSet `json:"rule_set"`
		ProductIDs  []uuid.UUID     `json:"product_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "title is required")
		return
	}

	collection, err := h.collectionService.Create(c.Request.Context(), &service.CreateCollectionInput{
		Title:       req.Title,
		Description: req.Description,
		RuleSet:     req.RuleSet,
		ProductIDs:  req.ProductIDs,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, collection)
}

// List handles GET /api/v1/collections
func (h *CollectionHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	collections, total, err := h.collectionService.List(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, collections, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/collections/:id
func (h *CollectionHandler) GetByID(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	collection, err := h.collectionService.GetByID(c.Request.Context(), collectionID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, collection)
}

// Update handles PUT /api/v1/collections/:id
func (h *CollectionHandler) Update(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	var req struct {
		Title       string `json:"title" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "title is required")
		return
	}

	collection, err := h.collectionService.Update(c.Request.Context(), &service.UpdateCollectionInput{
		CollectionID: collectionID,
		Title:        req.Title,
		Description:  req.Description,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, collection)
}

// Delete handles DELETE /api/v1/collections/:id
func (h *CollectionHandler) Delete(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	if err := h.collectionService.Delete(c.Request.Context(), collectionID); err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"message": "collection deleted"})
}

// SetRules handles PUT /api/v1/collections/:id/rules. A null rule_set turns
// the collection back into an empty manual one.
func (h *CollectionHandler) SetRules(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	var req struct {
		RuleSet *domain.RuleSet `json:"rule_set"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid rule set")
		return
	}

	collection, err := h.collectionService.SetRuleSet(c.Request.Context(), collectionID, req.RuleSet)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, collection)
}

// ListProducts handles GET /api/v1/collections/:id/products
func (h *CollectionHandler) ListProducts(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	args, err := parseConnectionArgs(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_PAGINATION_ARGUMENTS", err.Error())
		return
	}

	conn, err := h.collectionService.GetCollectionProducts(c.Request.Context(), collectionID, args)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, conn)
}

type productIDsRequest struct {
	ProductIDs []uuid.UUID `json:"product_ids" binding:"required,min=1"`
}

// AddProducts handles POST /api/v1/collections/:id/products
func (h *CollectionHandler) AddProducts(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	var req productIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "product_ids must be a non-empty list of IDs")
		return
	}

	collection, err := h.collectionService.AddProducts(c.Request.Context(), collectionID, req.ProductIDs)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, collection)
}

// RemoveProducts handles DELETE /api/v1/collections/:id/products
func (h *CollectionHandler) RemoveProducts(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	var req productIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "product_ids must be a non-empty list of IDs")
		return
	}

	collection, err := h.collectionService.RemoveProducts(c.Request.Context(), collectionID, req.ProductIDs)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, collection)
}

// MoveProduct handles PUT /api/v1/collections/:id/products/:productId/position
func (h *CollectionHandler) MoveProduct(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid product ID")
		return
	}

	var req struct {
		Position *int `json:"position" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "position is required")
		return
	}

	collection, err := h.collectionService.MoveProduct(c.Request.Context(), collectionID, productID, *req.Position)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, collection)
}

// SetImage handles PUT /api/v1/collections/:id/image (multipart field "image")
func (h *CollectionHandler) SetImage(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "image file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "could not read uploaded image")
		return
	}
	defer file.Close()

	collection, err := h.collectionService.SetImage(c.Request.Context(), &service.SetImageInput{
		CollectionID: collectionID,
		Filename:     header.Filename,
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, collection)
}

// ExportCSV handles GET /api/v1/collections/:id/products/export
func (h *CollectionHandler) ExportCSV(c *gin.Context) {
	collectionID, ok := parseCollectionID(c)
	if !ok {
		return
	}

	collection, err := h.collectionService.GetByID(c.Request.Context(), collectionID)
	if err != nil {
		HandleError(c, err)
		return
	}

	// Buffer so a failed resolution can still produce a JSON error.
	var body bytes.Buffer
	body.Write(csvexport.BOM)
	if err := h.collectionService.ExportProducts(c.Request.Context(), collectionID, &body); err != nil {
		HandleError(c, err)
		return
	}

	filename := csvexport.BuildFilename(collection.Title)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body.Bytes())
}

// parseConnectionArgs reads first/after/last/before. Absent parameters stay
// nil and a present cursor must be non-empty; other shape checks are left to
// the service.
func parseConnectionArgs(c *gin.Context) (connection.Args, error) {
	var args connection.Args
	for _, p := range []struct {
		name string
		dst  **int
	}{{"first", &args.First}, {"last", &args.Last}} {
		raw, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return args, fmt.Errorf("%s must be an integer", p.name)
		}
		*p.dst = &n
	}
	for _, p := range []struct {
		name string
		dst  **string
	}{{"after", &args.After}, {"before", &args.Before}} {
		v, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		if v == "" {
			return args, fmt.Errorf("%s must not be empty", p.name)
		}
		*p.dst = &v
	}
	return args, nil
}

// parsePagination extracts offset and limit from query parameters with defaults.
func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
