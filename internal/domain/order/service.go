package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/souq-labs/souq-api/internal/domain/attrs"
	"github.com/souq-labs/souq-api/internal/domain/auth"
	"github.com/souq-labs/souq-api/internal/domain/cart"
	"github.com/souq-labs/souq-api/internal/domain/coupon"
	"github.com/souq-labs/souq-api/internal/domain/product"
)

// Service owns the checkout and cancellation workflows.
type Service struct {
	store  Store
	orders Repository
	carts  cart.Repository
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(store Store, orders Repository, carts cart.Repository) *Service {
	return &Service{
		store:  store,
		orders: orders,
		carts:  carts,
		now:    time.Now,
	}
}

// ItemRequest is one proposed order line.
type ItemRequest struct {
	ProductID  string
	Quantity   int
	Attributes attrs.Bag
}

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	Items           []ItemRequest
	CouponCode      string
	PaymentMethod   string
	ShippingAddress ShippingAddress
	Notes           string
}

// Checkout validates every item against live stock, prices the order,
// applies an optional coupon, and commits stock decrements, the coupon
// usage increment and the new order as one atomic unit. On any failure
// nothing is committed: no stock stays decremented and no coupon usage
// stays incremented.
func (s *Service) Checkout(ctx context.Context, ident auth.Identity, req CheckoutRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
	}

	o := &Order{
		ID:              uuid.New().String(),
		UserID:          ident.Key(),
		Status:          StatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		subtotal := decimal.Zero
		items := make([]Item, 0, len(req.Items))

		// Validate, snapshot and stage the stock decrement per item, in
		// request order. The first failing item aborts the whole unit.
		for _, it := range req.Items {
			p, err := tx.ProductForUpdate(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if !p.IsActive {
				return product.ErrUnavailable
			}
			if p.Stock < it.Quantity {
				return &product.InsufficientStockError{ProductID: p.ID, Available: p.Stock}
			}

			price := p.EffectivePrice()
			items = append(items, Item{
				ID:              uuid.New().String(),
				ProductID:       p.ID,
				ProductName:     p.Name,
				Quantity:        it.Quantity,
				PriceAtPurchase: price,
				Attributes:      it.Attributes.Clone(),
			})
			subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))

			if err := tx.DecrementStock(ctx, p.ID, it.Quantity); err != nil {
				return err
			}
		}

		discount := decimal.Zero
		if req.CouponCode != "" {
			code := coupon.NormalizeCode(req.CouponCode)
			c, err := tx.CouponForUpdate(ctx, code)
			if err != nil {
				if errors.Is(err, coupon.ErrNotFound) {
					return coupon.ErrInvalidCode()
				}
				return errors.Wrap(err, "lookup coupon")
			}

			discount, err = coupon.Evaluate(c, subtotal, s.now())
			if err != nil {
				return err
			}
			// Guarded increment: even if a concurrent checkout won the
			// race since the evaluator check, the limit cannot be
			// overrun.
			if err := tx.IncrementCouponUsage(ctx, c.ID); err != nil {
				return err
			}
			o.CouponCode = code
		}

		total := subtotal.Sub(discount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		o.Items = items
		o.Subtotal = subtotal.Round(2)
		o.DiscountAmount = discount
		o.TotalPrice = total.Round(2)

		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CartCheckoutRequest holds the order metadata for a checkout driven by
// the caller's cart.
type CartCheckoutRequest struct {
	CouponCode      string
	PaymentMethod   string
	ShippingAddress ShippingAddress
	Notes           string
}

// CheckoutFromCart reconciles the identity's cart into a checkout: cart
// items supply product IDs, quantities and attributes, while prices are
// re-snapshotted from live products by Checkout. The cart is cleared only
// after the order has committed.
func (s *Service) CheckoutFromCart(ctx context.Context, ident auth.Identity, req CartCheckoutRequest) (*Order, error) {
	c, err := s.carts.GetByOwner(ctx, ident.Key())
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, cart.ErrEmpty
		}
		return nil, errors.Wrap(err, "load cart")
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrEmpty
	}

	items := make([]ItemRequest, len(c.Items))
	for i, it := range c.Items {
		items[i] = ItemRequest{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Attributes: it.Attributes,
		}
	}

	o, err := s.Checkout(ctx, ident, CheckoutRequest{
		Items:           items,
		CouponCode:      req.CouponCode,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		return nil, err
	}

	// The order is committed; a failed clear leaves a stale cart, not a
	// broken order.
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		zctx.From(ctx).Warn("clear cart after checkout",
			zap.String("cart_id", c.ID),
			zap.Error(err),
		)
	}
	return o, nil
}

// Cancel reverses a checkout: it restores stock for every item, returns
// the coupon use, and marks the order cancelled, all in one transaction so
// a crash cannot leave a half-reversed order. Only the owner (or an admin)
// may cancel, and only from pending or processing. Cancelling twice fails
// on the status guard, which is what makes cancellation idempotent-safe
// without extra locking.
func (s *Service) Cancel(ctx context.Context, ident auth.Identity, orderID string) (*Order, error) {
	var cancelled *Order

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != ident.Key() && !ident.IsAdmin() {
			return ErrForbidden
		}
		if !o.Status.Cancellable() {
			return &InvalidStateTransitionError{Status: o.Status}
		}

		for _, it := range o.Items {
			if err := tx.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if o.CouponCode != "" {
			if err := tx.DecrementCouponUsage(ctx, o.CouponCode); err != nil {
				return err
			}
		}

		if err := tx.SetStatus(ctx, o.ID, StatusCancelled); err != nil {
			return err
		}
		o.Status = StatusCancelled
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// UpdateStatus is the admin-only direct status overwrite. It has no side
// effects on stock or coupons.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, st Status) (*Order, error) {
	if !st.Valid() {
		return nil, errors.Errorf("invalid order status: %q", st)
	}
	return s.orders.UpdateStatus(ctx, orderID, st)
}

// Get returns an order, enforcing the owner-or-admin read rule.
func (s *Service) Get(ctx context.Context, ident auth.Identity, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != ident.Key() && !ident.IsAdmin() {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListMine returns the identity's orders, newest first.
func (s *Service) ListMine(ctx context.Context, ident auth.Identity) ([]Order, error) {
	return s.orders.ListByOwner(ctx, ident.Key())
}

// ListAll returns a page of all orders for admins.
func (s *Service) ListAll(ctx context.Context, f ListFilter) ([]Order, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, errors.Errorf("invalid order status: %q", f.Status)
	}
	return s.orders.List(ctx, f)
}
