package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation failed")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrStaleCursor        = errors.New("stale cursor")
	ErrUploadFailed       = errors.New("image upload to storage failed")
	ErrUnsupportedImage   = errors.New("unsupported image type")
	ErrImageTooLarge      = errors.New("image exceeds maximum allowed size")
)

// Not-found refinements.
var (
	ErrCollectionNotFound     = fmt.Errorf("collection not found: %w", ErrNotFound)
	ErrProductNotInCollection = fmt.Errorf("product not in collection: %w", ErrNotFound)
)

// Validation refinements. All of them satisfy errors.Is(err, ErrValidation).
var (
	ErrUnknownRuleField           = fmt.Errorf("unknown rule field: %w", ErrValidation)
	ErrRuleTypeMismatch           = fmt.Errorf("relation not valid for field type: %w", ErrValidation)
	ErrInvalidRuleValue           = fmt.Errorf("rule value not parseable for field type: %w", ErrValidation)
	ErrInvalidCombinationMode     = fmt.Errorf("invalid rule combination mode: %w", ErrValidation)
	ErrInvalidPaginationArguments = fmt.Errorf("invalid pagination arguments: %w", ErrValidation)
	ErrMixedMembership            = fmt.Errorf("collection cannot have both manual products and rules: %w", ErrValidation)
	ErrCollectionIsAutomatic      = fmt.Errorf("collection membership is rule-based: %w", ErrValidation)
	ErrDuplicateMember            = fmt.Errorf("product already in collection: %w", ErrValidation)
	ErrTitleRequired              = fmt.Errorf("title is required: %w", ErrValidation)
	ErrInvalidPosition            = fmt.Errorf("position out of range: %w", ErrValidation)
)
