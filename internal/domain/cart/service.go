package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/souq-labs/souq-api/internal/domain/attrs"
	"github.com/souq-labs/souq-api/internal/domain/auth"
	"github.com/souq-labs/souq-api/internal/domain/product"
)

// Service encapsulates cart mutations and their stock sanity checks.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service with the required dependencies.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// GetOrCreate returns the identity's cart, creating an empty one on first
// access.
func (s *Service) GetOrCreate(ctx context.Context, ident auth.Identity) (*Cart, error) {
	c, err := s.carts.GetByOwner(ctx, ident.Key())
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get cart")
	}

	c = &Cart{
		ID:       uuid.New().String(),
		OwnerKey: ident.Key(),
		Guest:    ident.IsGuest(),
	}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// AddItemRequest holds the input for adding a product to the cart.
type AddItemRequest struct {
	ProductID  string
	Quantity   int
	Attributes attrs.Bag
}

// AddItem validates the product (exists, active, enough stock) and adds it
// to the cart, merging quantities when the product is already present. The
// merged quantity is re-checked against stock so a cart can never request
// more than the product currently has.
func (s *Service) AddItem(ctx context.Context, ident auth.Identity, req AddItemRequest) (*Cart, error) {
	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, product.ErrUnavailable
	}
	if p.Stock < req.Quantity {
		return nil, &product.InsufficientStockError{ProductID: p.ID, Available: p.Stock}
	}

	c, err := s.GetOrCreate(ctx, ident)
	if err != nil {
		return nil, err
	}

	item := c.FindByProduct(req.ProductID)
	if item != nil {
		merged := item.Quantity + req.Quantity
		if p.Stock < merged {
			return nil, &product.InsufficientStockError{ProductID: p.ID, Available: p.Stock}
		}
		item.Quantity = merged
	} else {
		item = &Item{
			ID:         uuid.New().String(),
			ProductID:  p.ID,
			Quantity:   req.Quantity,
			Price:      p.EffectivePrice(),
			Attributes: req.Attributes.Clone(),
		}
		c.Items = append(c.Items, *item)
	}

	if err := s.carts.UpsertItem(ctx, c.ID, item); err != nil {
		return nil, errors.Wrap(err, "save cart item")
	}
	return c, nil
}

// UpdateItem changes an item's quantity, re-checking live stock.
func (s *Service) UpdateItem(ctx context.Context, ident auth.Identity, itemID string, quantity int) (*Cart, error) {
	c, err := s.carts.GetByOwner(ctx, ident.Key())
	if err != nil {
		return nil, err
	}

	item := c.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}

	p, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Stock < quantity {
		return nil, &product.InsufficientStockError{ProductID: p.ID, Available: p.Stock}
	}

	item.Quantity = quantity
	if err := s.carts.UpdateItemQuantity(ctx, c.ID, itemID, quantity); err != nil {
		return nil, errors.Wrap(err, "update cart item")
	}
	return c, nil
}

// RemoveItem deletes a single item from the cart.
func (s *Service) RemoveItem(ctx context.Context, ident auth.Identity, itemID string) (*Cart, error) {
	c, err := s.carts.GetByOwner(ctx, ident.Key())
	if err != nil {
		return nil, err
	}

	item := c.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}

	if err := s.carts.RemoveItem(ctx, c.ID, itemID); err != nil {
		return nil, errors.Wrap(err, "remove cart item")
	}

	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	return c, nil
}

// Clear removes every item from the identity's cart.
func (s *Service) Clear(ctx context.Context, ident auth.Identity) (*Cart, error) {
	c, err := s.carts.GetByOwner(ctx, ident.Key())
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	c.Items = nil
	return c, nil
}
