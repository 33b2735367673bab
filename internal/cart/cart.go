// Package cart holds shopping carts and persists them next to the local index.
package cart

import (
	"errors"
	"fmt"
)

// Default limits.
const (
	DefaultMaxItems    = 10
	DefaultMaxQuantity = 100
)

var (
	// ErrCartFull is returned when adding a new listing would exceed the
	// distinct item limit.
	ErrCartFull = errors.New("cart is full")
	// ErrQuantityLimit is returned when the total quantity would exceed the limit.
	ErrQuantityLimit = errors.New("cart quantity limit reached")
	// ErrInvalidItem is returned for items without a listing key or with a
	// non-positive quantity.
	ErrInvalidItem = errors.New("invalid cart item")
	// ErrNotInCart is returned when an item is not in the cart.
	ErrNotInCart = errors.New("item not in cart")
)

// Item is one cart line.
type Item struct {
	ListingKey string `json:"listing_key"`
	Quantity   int    `json:"quantity"`
	SellerID   string `json:"seller_id"`
}

// Limits bounds the contents of a cart.
type Limits struct {
	MaxItems    int
	MaxQuantity int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{MaxItems: DefaultMaxItems, MaxQuantity: DefaultMaxQuantity}
}

// Cart is an owner's ordered list of items. A Cart is not safe for concurrent
// use; Store.WithCart serializes access per owner.
type Cart struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Items   []Item `json:"items"`

	limits Limits
}

// New creates an empty cart.
func New(id, ownerID string, limits Limits) *Cart {
	return &Cart{ID: id, OwnerID: ownerID, Items: []Item{}, limits: limits}
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// TotalQuantity returns the number of units across all items.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// Snapshot returns a copy of the items.
func (c *Cart) Snapshot() []Item {
	out := make([]Item, len(c.Items))
	copy(out, c.Items)
	return out
}

// Add puts quantity units of a listing into the cart, merging with an
// existing line for the same listing.
func (c *Cart) Add(item Item) error {
	if item.ListingKey == "" || item.Quantity <= 0 {
		return ErrInvalidItem
	}
	if c.limits.MaxQuantity > 0 && c.TotalQuantity()+item.Quantity > c.limits.MaxQuantity {
		return fmt.Errorf("%w: at most %d units", ErrQuantityLimit, c.limits.MaxQuantity)
	}
	if i := c.indexOf(item.ListingKey); i >= 0 {
		c.Items[i].Quantity += item.Quantity
		if item.SellerID != "" {
			c.Items[i].SellerID = item.SellerID
		}
		return nil
	}
	if c.limits.MaxItems > 0 && len(c.Items) >= c.limits.MaxItems {
		return fmt.Errorf("%w: at most %d items", ErrCartFull, c.limits.MaxItems)
	}
	c.Items = append(c.Items, item)
	return nil
}

// SetQuantity changes the quantity of a line. Zero removes it.
func (c *Cart) SetQuantity(listingKey string, quantity int) error {
	i := c.indexOf(listingKey)
	if i < 0 {
		return ErrNotInCart
	}
	if quantity < 0 {
		return ErrInvalidItem
	}
	if quantity == 0 {
		return c.Remove(listingKey)
	}
	delta := quantity - c.Items[i].Quantity
	if c.limits.MaxQuantity > 0 && c.TotalQuantity()+delta > c.limits.MaxQuantity {
		return fmt.Errorf("%w: at most %d units", ErrQuantityLimit, c.limits.MaxQuantity)
	}
	c.Items[i].Quantity = quantity
	return nil
}

// Remove drops a line.
func (c *Cart) Remove(listingKey string) error {
	i := c.indexOf(listingKey)
	if i < 0 {
		return ErrNotInCart
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

// Empty removes every item.
func (c *Cart) Empty() {
	c.Items = []Item{}
}

func (c *Cart) indexOf(listingKey string) int {
	for i, it := range c.Items {
		if it.ListingKey == listingKey {
			return i
		}
	}
	return -1
}
