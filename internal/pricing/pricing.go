// Package pricing computes an order's price breakdown from its lines.
// All amounts are integer minor units (cents).
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	// FreeShippingThreshold is the items total above which shipping is free.
	// An items total exactly equal to it still pays FlatShippingPrice.
	FreeShippingThreshold int64 = 100_00
	FlatShippingPrice     int64 = 10_00
)

// TaxRate applied to the items total.
var TaxRate = decimal.RequireFromString("0.15")

var (
	ErrInvalidQuantity = apperrors.Validation("INVALID_QUANTITY", "quantity must be at least 1")
	ErrInvalidPrice    = apperrors.Validation("INVALID_PRICE", "price must not be negative")
	ErrAmountOverflow  = apperrors.Validation("AMOUNT_OVERFLOW", "order amount is too large")
)

// Line is the priced part of an order line.
type Line struct {
	Price int64
	Qty   int
}

// Breakdown is the itemised result of Compute.
type Breakdown struct {
	ItemsPrice    int64 `json:"items_price"`
	ShippingPrice int64 `json:"shipping_price"`
	TaxPrice      int64 `json:"tax_price"`
	TotalPrice    int64 `json:"total_price"`
}

var maxAmount = decimal.NewFromInt(math.MaxInt64 / 2)

// Compute sums the lines and derives shipping and tax:
//
//	items    = Σ price × qty
//	shipping = 0 if items > FreeShippingThreshold else FlatShippingPrice
//	tax      = round_half_up(items × TaxRate) to the cent
//	total    = items + shipping + tax
func Compute(lines []Line) (Breakdown, error) {
	items := decimal.Zero
	for i, l := range lines {
		if l.Qty < 1 {
			return Breakdown{}, ErrInvalidQuantity.WithMessage("line %d: quantity must be at least 1, got %d", i, l.Qty)
		}
		if l.Price < 0 {
			return Breakdown{}, ErrInvalidPrice.WithMessage("line %d: price must not be negative, got %d", i, l.Price)
		}
		items = items.Add(decimal.NewFromInt(l.Price).Mul(decimal.NewFromInt(int64(l.Qty))))
		if items.GreaterThan(maxAmount) {
			return Breakdown{}, ErrAmountOverflow
		}
	}

	itemsPrice := items.IntPart()
	shipping := FlatShippingPrice
	if itemsPrice > FreeShippingThreshold {
		shipping = 0
	}
	// Round(0) rounds half away from zero, which is half-up for the
	// non-negative totals accepted here.
	tax := items.Mul(TaxRate).Round(0).IntPart()

	return Breakdown{
		ItemsPrice:    itemsPrice,
		ShippingPrice: shipping,
		TaxPrice:      tax,
		TotalPrice:    itemsPrice + shipping + tax,
	}, nil
}

// Verify recomputes the breakdown for lines and compares it with stored.
func Verify(lines []Line, stored Breakdown) error {
	got, err := Compute(lines)
	if err != nil {
		return err
	}
	if got != stored {
		return fmt.Errorf("price breakdown mismatch: stored %+v, recomputed %+v", stored, got)
	}
	return nil
}

// Format renders cents as a decimal string, e.g. 12650 -> "126.50".
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
