// Package order builds purchase orders from carts and manages their status.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/codec"
)

// Amounts are the monetary fields of an order in one currency.
type Amounts struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

// Balanced reports whether Total = (Subtotal - Discount) + ShippingCost.
func (a Amounts) Balanced() bool {
	return a.Total.Equal(a.Subtotal.Sub(a.Discount).Add(a.ShippingCost))
}

// AtomicAmounts holds the order amounts in piconero.
type AtomicAmounts struct {
	Subtotal     uint64 `json:"subtotal"`
	Discount     uint64 `json:"discount"`
	ShippingCost uint64 `json:"shipping_cost"`
	Total        uint64 `json:"total"`
}

// Balanced reports whether the atomic amounts satisfy the total invariant.
func (a AtomicAmounts) Balanced() bool {
	if a.Discount > a.Subtotal {
		return false
	}
	return a.Total == a.Subtotal-a.Discount+a.ShippingCost
}

// Order is an immutable purchase record. Only its status changes after it
// is published.
type Order struct {
	ID             string          `json:"id" validate:"required"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Status         Status          `json:"status"`
	CustomerID     string          `json:"customer_id" validate:"required"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	Total          decimal.Decimal `json:"total"`
	Atomic         AtomicAmounts   `json:"atomic"`
	PricedIn       string          `json:"priced_in"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	PaymentOption  PaymentOption   `json:"payment_option"`
	PaymentCoin    PaymentCoin     `json:"payment_coin"`
	DeliveryOption DeliveryOption  `json:"delivery_option"`
	Notes          string          `json:"notes,omitempty"`
	Items          []cart.Item     `json:"items" validate:"required,min=1,dive"`
}

func (o *Order) ContentType() codec.ContentType  { return codec.Order }
func (o *Order) IndexContent() codec.ContentType { return codec.Order }
func (o *Order) EntityID() string                { return o.ID }

// SearchTerms indexes an order by id, customer and sellers.
func (o *Order) SearchTerms() []string {
	return append([]string{o.ID, o.CustomerID}, o.Sellers()...)
}

// Sellers returns the distinct seller ids of the items in first-seen order.
func (o *Order) Sellers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range o.Items {
		if it.SellerID != "" && !seen[it.SellerID] {
			seen[it.SellerID] = true
			out = append(out, it.SellerID)
		}
	}
	return out
}

// Amounts returns the monetary fields.
func (o *Order) Amounts() Amounts {
	return Amounts{Subtotal: o.Subtotal, Discount: o.Discount, ShippingCost: o.ShippingCost, Total: o.Total}
}

// Validate checks the invariants every published order satisfies.
func (o *Order) Validate() error {
	if o.ID == "" || o.CustomerID == "" {
		return fmt.Errorf("order is missing its id or customer")
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("order %s has no items", o.ID)
	}
	for _, it := range o.Items {
		if it.ListingKey == "" || it.Quantity <= 0 || it.SellerID == "" {
			return fmt.Errorf("order %s has an invalid item %+v", o.ID, it)
		}
	}
	a := o.Amounts()
	if a.Subtotal.IsNegative() || a.Discount.IsNegative() || a.ShippingCost.IsNegative() || a.Total.IsNegative() {
		return fmt.Errorf("order %s has a negative amount", o.ID)
	}
	if !a.Balanced() {
		return fmt.Errorf("order %s total %s != (%s - %s) + %s", o.ID, a.Total, a.Subtotal, a.Discount, a.ShippingCost)
	}
	if !o.Atomic.Balanced() {
		return fmt.Errorf("order %s atomic total does not balance", o.ID)
	}
	return nil
}

// SetStatus moves the order to any status.
func (o *Order) SetStatus(s Status, now time.Time) {
	o.Status = s
	o.UpdatedAt = now.UTC()
}

// Cancellable reports whether s allows a buyer cancellation.
func (s Status) Cancellable() bool {
	switch s {
	case StatusNew, StatusPending, StatusProcessing:
		return true
	}
	return false
}

// Cancel cancels the order on behalf of actor. Only the customer may cancel,
// within window of creation, before the order ships.
func (o *Order) Cancel(actor string, now time.Time, window time.Duration) error {
	if actor != o.CustomerID {
		return fmt.Errorf("%w: only the customer may cancel", ErrCancelNotAllowed)
	}
	if !o.Status.Cancellable() {
		return fmt.Errorf("%w: order is %s", ErrCancelNotAllowed, o.Status)
	}
	if window > 0 && now.Sub(o.CreatedAt) > window {
		return fmt.Errorf("%w: more than %s since the order was placed", ErrCancelNotAllowed, window)
	}
	o.SetStatus(StatusCancelled, now)
	return nil
}
