package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"shelf/internal/domain"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds offset pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
// Specific errors are matched before the generic ErrNotFound and ErrValidation
// they wrap.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		return http.StatusNotFound, "COLLECTION_NOT_FOUND", "collection not found"
	case errors.Is(err, domain.ErrProductNotInCollection):
		return http.StatusNotFound, "PRODUCT_NOT_IN_COLLECTION", "product is not a member of this collection"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrStaleCursor):
		return http.StatusBadRequest, "STALE_CURSOR", "cursor no longer points into this collection; restart pagination"
	case errors.Is(err, domain.ErrInvalidPaginationArguments):
		return http.StatusBadRequest, "INVALID_PAGINATION_ARGUMENTS", err.Error()
	case errors.Is(err, domain.ErrUnknownRuleField),
		errors.Is(err, domain.ErrRuleTypeMismatch),
		errors.Is(err, domain.ErrInvalidRuleValue),
		errors.Is(err, domain.ErrInvalidCombinationMode):
		return http.StatusBadRequest, "INVALID_RULE", err.Error()
	case errors.Is(err, domain.ErrMixedMembership):
		return http.StatusBadRequest, "MIXED_MEMBERSHIP", "a collection cannot have both manual products and rules"
	case errors.Is(err, domain.ErrCollectionIsAutomatic):
		return http.StatusConflict, "COLLECTION_IS_AUTOMATIC", "membership of a rule-based collection cannot be edited by hand"
	case errors.Is(err, domain.ErrDuplicateMember):
		return http.StatusConflict, "DUPLICATE_MEMBER", "product already in collection"
	case errors.Is(err, domain.ErrTitleRequired):
		return http.StatusBadRequest, "TITLE_REQUIRED", "title is required"
	case errors.Is(err, domain.ErrInvalidPosition):
		return http.StatusBadRequest, "INVALID_POSITION", "position out of range"
	case errors.Is(err, domain.ErrUnsupportedImage):
		return http.StatusBadRequest, "UNSUPPORTED_IMAGE", "unsupported image type; allowed: jpg, png, gif, webp"
	case errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "image exceeds maximum allowed size"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED", err.Error()
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "product catalog is temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "request timed out"
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusInternalServerError, "UPLOAD_FAILED", "image upload to storage failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
// Server-side failures are attached to the context for the request logger.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		_ = c.Error(err)
	}
	RespondError(c, status, code, msg)
}
