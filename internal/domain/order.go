package domain

import (
	"encoding/json"
	"time"

	"github.com/utafrali/storefront/internal/pricing"
)

// Order status constants. Status is derived from the paid/delivered flags;
// a cancelled order is removed, so OrderStatusCancelled is never stored.
const (
	OrderStatusCreated   = "created"
	OrderStatusPaid      = "paid"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Order represents a customer order. Lines and prices are snapshots taken at
// creation and never re-read from the catalog.
type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Lines            []OrderLine     `json:"lines"`
	ShippingAddress  Address         `json:"shipping_address"`
	PaymentMethod    string          `json:"payment_method"`
	ItemsPrice       int64           `json:"items_price"`
	ShippingPrice    int64           `json:"shipping_price"`
	TaxPrice         int64           `json:"tax_price"`
	TotalPrice       int64           `json:"total_price"`
	IsPaid           bool            `json:"is_paid"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	PaymentResult    json.RawMessage `json:"payment_result,omitempty"`
	IsDelivered      bool            `json:"is_delivered"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	StockDecremented bool            `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// OrderLine is a product snapshot inside an order.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Price     int64  `json:"price"`
	Qty       int    `json:"qty"`
}

// Address represents a shipping address.
type Address struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderSummary holds admin dashboard totals.
type OrderSummary struct {
	OrderCount  int   `json:"order_count"`
	PaidCount   int   `json:"paid_count"`
	PaidRevenue int64 `json:"paid_revenue"`
	Delivered   int   `json:"delivered_count"`
}

// Status derives the lifecycle state from the stored flags.
func (o *Order) Status() string {
	switch {
	case o.IsDelivered:
		return OrderStatusDelivered
	case o.IsPaid:
		return OrderStatusPaid
	default:
		return OrderStatusCreated
	}
}

// MarshalJSON adds the derived status to the wire form.
func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		alias
		Status string `json:"status"`
	}{alias(o), o.Status()})
}

// AllowedTransitions defines which status transitions are valid.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusCreated:   {OrderStatusPaid, OrderStatusCancelled},
		OrderStatusPaid:      {OrderStatusDelivered},
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
	}
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	for _, s := range AllowedTransitions()[o.Status()] {
		if s == target {
			return true
		}
	}
	return false
}

// CheckTransition returns nil when the move to target is allowed, otherwise
// the most specific lifecycle error for the current state.
func (o *Order) CheckTransition(target string) error {
	if o.CanTransitionTo(target) {
		return nil
	}
	from := o.Status()
	switch target {
	case OrderStatusPaid:
		if o.IsPaid {
			return ErrAlreadyPaid.WithMessage("order %s is already paid", o.ID)
		}
	case OrderStatusDelivered:
		if o.IsDelivered {
			return ErrAlreadyDelivered.WithMessage("order %s is already delivered", o.ID)
		}
		if !o.IsPaid {
			return ErrNotPaid.WithMessage("order %s must be paid before delivery", o.ID)
		}
	case OrderStatusCancelled:
		if o.IsPaid {
			return ErrCannotCancelPaidOrder.WithMessage("order %s is paid and cannot be cancelled", o.ID)
		}
	}
	return ErrInvalidTransition.WithMessage("cannot move order %s from %s to %s", o.ID, from, target)
}

// PricingLines converts the stored lines for the pricing calculator.
func (o *Order) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = pricing.Line{Price: l.Price, Qty: l.Qty}
	}
	return lines
}

// Breakdown returns the stored price fields.
func (o *Order) Breakdown() pricing.Breakdown {
	return pricing.Breakdown{
		ItemsPrice:    o.ItemsPrice,
		ShippingPrice: o.ShippingPrice,
		TaxPrice:      o.TaxPrice,
		TotalPrice:    o.TotalPrice,
	}
}

// ApplyBreakdown copies a computed breakdown onto the order.
func (o *Order) ApplyBreakdown(b pricing.Breakdown) {
	o.ItemsPrice = b.ItemsPrice
	o.ShippingPrice = b.ShippingPrice
	o.TaxPrice = b.TaxPrice
	o.TotalPrice = b.TotalPrice
}
