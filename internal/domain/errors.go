package domain

import (
	"errors"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Review errors.
var (
	ErrDuplicateReview = apperrors.Conflict("DUPLICATE_REVIEW", "product already reviewed by this user")
	ErrInvalidRating   = apperrors.Validation("INVALID_RATING", "rating must be between 1 and 5")
	ErrConcurrentWrite = apperrors.Conflict("CONCURRENT_UPDATE", "the resource was modified concurrently, try again")
)

// Order errors.
var (
	ErrEmptyCart             = apperrors.Validation("EMPTY_CART", "order must contain at least one line")
	ErrInvalidQuantity       = apperrors.Validation("INVALID_QUANTITY", "quantity must be at least 1")
	ErrOutOfStock            = apperrors.Conflict("OUT_OF_STOCK", "not enough stock for the requested quantity")
	ErrAlreadyPaid           = apperrors.Conflict("ALREADY_PAID", "order is already paid")
	ErrAlreadyDelivered      = apperrors.Conflict("ALREADY_DELIVERED", "order is already delivered")
	ErrCannotCancelPaidOrder = apperrors.Conflict("CANNOT_CANCEL_PAID_ORDER", "a paid order cannot be cancelled")
	ErrNotPaid               = apperrors.InvalidTransition("NOT_PAID", "order must be paid before delivery")
	ErrInvalidTransition     = apperrors.InvalidTransition("INVALID_TRANSITION", "order status transition is not allowed")
)

// Product errors.
var (
	ErrProductReferenced = apperrors.Conflict("PRODUCT_REFERENCED", "product is referenced by existing orders")
)

// ErrVersionConflict is returned by a store when a compare-and-swap on the
// product version lost the race. It never leaves the service layer.
var ErrVersionConflict = errors.New("product version conflict")
