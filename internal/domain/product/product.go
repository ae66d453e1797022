// Package product defines the catalog entities and their persistence
// contract. Stock is never mutated through this package directly: checkout
// and cancellation go through the order store's transactional operations.
package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrUnavailable is returned when a product exists but has been
	// soft-disabled by an administrator.
	ErrUnavailable = errors.New("product is not available")
)

// InsufficientStockError indicates a requested quantity exceeds the live
// stock of a product. Available carries the stock seen at decision time.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d items available in stock", e.Available)
}

// Product represents a catalog item available for purchase.
//
// Invariant: Stock >= 0 at all times. It is decremented only inside a
// checkout transaction and incremented only by cancellation or admin
// restock.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	// SalePrice, when set, replaces Price as the effective price.
	SalePrice *decimal.Decimal
	Stock     int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectivePrice returns the sale price when one is set, the regular price
// otherwise. This is the price snapshotted onto cart and order items.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// ListFilter narrows the product listing.
type ListFilter struct {
	Category   string
	ActiveOnly bool
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f ListFilter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
}
