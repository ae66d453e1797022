// Package order owns the checkout workflow: the only part of the system
// that must atomically touch products, coupons and orders in one business
// transaction.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/souq-labs/souq-api/internal/domain/attrs"
	"github.com/souq-labs/souq-api/internal/domain/coupon"
	"github.com/souq-labs/souq-api/internal/domain/product"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether an order in this status may still be
// cancelled. Once shipped, delivered or already cancelled, it may not.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when the actor is neither the order owner
	// nor an admin.
	ErrForbidden = errors.New("not authorized to access this order")
	// ErrEmptyItems rejects a checkout with no items.
	ErrEmptyItems = errors.New("order must have at least one item")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s", e.ProductID)
}

// InvalidStateTransitionError rejects a cancellation attempted outside the
// pending/processing window, or an unknown admin status value.
type InvalidStateTransitionError struct {
	Status Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("Cannot cancel order with status: %s", e.Status)
}

// Item is a single order line. ProductID is a plain identifier plus
// immutable snapshots; it never references a live product, so order
// history is independent of later product mutation or deletion.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	// PriceAtPurchase is the effective product price frozen at checkout.
	PriceAtPurchase decimal.Decimal
	Attributes      attrs.Bag
}

// ShippingAddress is passed through to the order untouched.
type ShippingAddress struct {
	City           string
	Street         string
	Building       string
	Floor          string
	Apartment      string
	AdditionalInfo string
}

// Order is a committed purchase with its pricing snapshot.
//
// Invariant: Subtotal, DiscountAmount, TotalPrice and every
// Item.PriceAtPurchase never change after creation.
type Order struct {
	ID   string
	Code string
	// UserID is the owner key: a user ID, or a guest token for guest
	// checkouts.
	UserID          string
	Items           []Item
	Subtotal        decimal.Decimal
	CouponCode      string
	DiscountAmount  decimal.Decimal
	TotalPrice      decimal.Decimal
	Status          Status
	PaymentMethod   string
	ShippingAddress ShippingAddress
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Tx is the set of storage operations available inside a checkout or
// cancellation transaction. Every mutation is conditional at the storage
// layer: stock can only decrement to >= 0 and coupon usage can only move
// within [0, usage_limit], closing the check-then-write race window.
type Tx interface {
	// ProductForUpdate loads and row-locks a product.
	// Returns product.ErrNotFound on a miss.
	ProductForUpdate(ctx context.Context, id string) (*product.Product, error)
	// DecrementStock subtracts qty, guarded so stock cannot go negative.
	// Returns *product.InsufficientStockError when the guard fails.
	DecrementStock(ctx context.Context, id string, qty int) error
	// RestoreStock adds qty back. A missing product is a no-op: stock
	// restoration is best-effort for orphaned references.
	RestoreStock(ctx context.Context, id string, qty int) error

	// CouponForUpdate loads and row-locks a coupon by normalized code.
	// Returns coupon.ErrNotFound on a miss.
	CouponForUpdate(ctx context.Context, code string) (*coupon.Coupon, error)
	// IncrementCouponUsage adds one use, guarded by the usage limit.
	// Returns *coupon.InvalidError when the limit would be exceeded.
	IncrementCouponUsage(ctx context.Context, id string) error
	// DecrementCouponUsage removes one use, guarded at zero. A missing
	// coupon is a no-op.
	DecrementCouponUsage(ctx context.Context, code string) error

	// InsertOrder persists the order and assigns its sequential Code.
	InsertOrder(ctx context.Context, o *Order) error
	// OrderForUpdate loads and row-locks an order with its items.
	// Returns ErrNotFound on a miss.
	OrderForUpdate(ctx context.Context, id string) (*Order, error)
	// SetStatus overwrites the order status.
	SetStatus(ctx context.Context, id string, st Status) error
}

// Store runs a function inside a single atomic storage transaction:
// either every staged mutation commits, or none do.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

// Repository defines the non-transactional read and admin-write side.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByOwner(ctx context.Context, ownerKey string) ([]Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id string, st Status) (*Order, error)
}
