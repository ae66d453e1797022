// Package cart implements the per-identity cart aggregate: a mutable list
// of prospective line items with stock sanity checks on every mutation.
// Cart prices are add-time snapshots and are not authoritative: checkout
// re-validates every item against live product state.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/souq-labs/souq-api/internal/domain/attrs"
)

var (
	// ErrNotFound is returned when no cart exists for an owner.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a cart item ID does not exist in
	// the owner's cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrEmpty is returned when checking out an empty cart.
	ErrEmpty = errors.New("cart is empty")
)

// Item is a prospective order line. Price is the effective product price
// snapshotted when the item was added.
type Item struct {
	ID         string
	ProductID  string
	Quantity   int
	Price      decimal.Decimal
	Attributes attrs.Bag
}

// Cart is the per-identity aggregate. OwnerKey is the user ID for
// authenticated carts and the guest token for guest carts.
type Cart struct {
	ID        string
	OwnerKey  string
	Guest     bool
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalAmount is the informational sum of snapshot price * quantity across
// all items. Final pricing is recomputed at checkout.
func (c *Cart) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// FindItem returns the item with the given ID, or nil.
func (c *Cart) FindItem(itemID string) *Item {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// FindByProduct returns the item for a product ID, or nil.
func (c *Cart) FindByProduct(productID string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Repository defines persistence operations for carts. GetByOwner returns
// ErrNotFound when the owner has no cart yet.
type Repository interface {
	GetByOwner(ctx context.Context, ownerKey string) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	UpsertItem(ctx context.Context, cartID string, item *Item) error
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, cartID, itemID string) error
	Clear(ctx context.Context, cartID string) error
}
