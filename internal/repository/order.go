package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souq-labs/souq-api/internal/domain/coupon"
	"github.com/souq-labs/souq-api/internal/domain/order"
	"github.com/souq-labs/souq-api/internal/domain/product"
)

const (
	orderColumns = `id, code, user_id, subtotal, coupon_code, discount_amount, total_price,
		status, payment_method, shipping_city, shipping_street, shipping_building,
		shipping_floor, shipping_apartment, shipping_additional_info, notes,
		created_at, updated_at`

	orderItemColumns = `id, order_id, product_id, product_name, quantity, price_at_purchase, attributes`

	productForUpdateSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	// The stock guard lives in the WHERE clause: a concurrent transaction
	// that drained the stock first makes this a zero-row update, not an
	// oversell.
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`

	stockSQL = `SELECT stock FROM products WHERE id = $1`

	couponForUpdateSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`

	incrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	decrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count - 1, updated_at = now()
		WHERE code = $1 AND used_count > 0`

	nextOrderCodeSQL = `SELECT nextval('order_code_seq')`

	insertOrderSQL = `INSERT INTO orders (id, code, user_id, subtotal, coupon_code, discount_amount,
		total_price, status, payment_method, shipping_city, shipping_street, shipping_building,
		shipping_floor, shipping_apartment, shipping_additional_info, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, product_name,
		quantity, price_at_purchase, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	orderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByOwnerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`

	orderItemsSQL = `SELECT ` + orderItemColumns + ` FROM order_items
		WHERE order_id = $1 ORDER BY id`

	orderItemsForSQL = `SELECT ` + orderItemColumns + ` FROM order_items
		WHERE order_id = ANY($1) ORDER BY id`

	setOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`
)

var _ order.Tx = (*storeTx)(nil)

// storeTx exposes the checkout/cancellation operations over a single pgx
// transaction.
type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) ProductForUpdate(ctx context.Context, id string) (*product.Product, error) {
	rows, err := t.tx.Query(ctx, productForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("locking product %q: %w", id, err)
	}
	return &p, nil
}

func (t *storeTx) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var available int
	if err := t.tx.QueryRow(ctx, stockSQL, id).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("reading stock for %q: %w", id, err)
	}
	return &product.InsufficientStockError{ProductID: id, Available: available}
}

func (t *storeTx) RestoreStock(ctx context.Context, id string, qty int) error {
	// Zero rows means the product is gone; restoration is best-effort.
	_, err := t.tx.Exec(ctx, restoreStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("restoring stock for %q: %w", id, err)
	}
	return nil
}

func (t *storeTx) CouponForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := t.tx.Query(ctx, couponForUpdateSQL, code)
	if err != nil {
		return nil, fmt.Errorf("locking coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("locking coupon %q: %w", code, err)
	}
	return &c, nil
}

func (t *storeTx) IncrementCouponUsage(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, incrementCouponUsageSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrLimitExceeded()
	}
	return nil
}

func (t *storeTx) DecrementCouponUsage(ctx context.Context, code string) error {
	_, err := t.tx.Exec(ctx, decrementCouponUsageSQL, code)
	if err != nil {
		return fmt.Errorf("decrementing usage for coupon %q: %w", code, err)
	}
	return nil
}

func (t *storeTx) InsertOrder(ctx context.Context, o *order.Order) error {
	var seq int64
	if err := t.tx.QueryRow(ctx, nextOrderCodeSQL).Scan(&seq); err != nil {
		return fmt.Errorf("allocating order code: %w", err)
	}
	o.Code = fmt.Sprintf("SQ%05d", seq)

	_, err := t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Code, o.UserID, o.Subtotal, o.CouponCode, o.DiscountAmount, o.TotalPrice,
		o.Status, o.PaymentMethod,
		o.ShippingAddress.City, o.ShippingAddress.Street, o.ShippingAddress.Building,
		o.ShippingAddress.Floor, o.ShippingAddress.Apartment, o.ShippingAddress.AdditionalInfo,
		o.Notes,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		attrsJSON, err := json.Marshal(it.Attributes)
		if err != nil {
			return fmt.Errorf("marshaling item attributes: %w", err)
		}
		_, err = t.tx.Exec(ctx, insertOrderItemSQL,
			it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.PriceAtPurchase, attrsJSON,
		)
		if err != nil {
			return fmt.Errorf("creating order item %q: %w", it.ID, err)
		}
	}
	return nil
}

func (t *storeTx) OrderForUpdate(ctx context.Context, id string) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, orderForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %q: %w", id, err)
	}

	itemRows, err := t.tx.Query(ctx, orderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", id, err)
	}
	return &o, nil
}

func (t *storeTx) SetStatus(ctx context.Context, id string, st order.Status) error {
	tag, err := t.tx.Exec(ctx, setOrderStatusSQL, id, st)
	if err != nil {
		return fmt.Errorf("setting status for order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements the non-transactional read and admin-write
// side of order.Repository.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, orderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", id, err)
	}
	return &o, nil
}

// ListByOwner returns all orders for an owner key, newest first.
func (r *OrderRepository) ListByOwner(ctx context.Context, ownerKey string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByOwnerSQL, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("listing orders for %q: %w", ownerKey, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for %q: %w", ownerKey, err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// List returns a page of orders plus the total match count.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus overwrites the status and returns the updated order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, st order.Status) (*order.Order, error) {
	tag, err := r.pool.Exec(ctx, setOrderStatusSQL, id, st)
	if err != nil {
		return nil, fmt.Errorf("setting status for order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, orderItemsForSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it      order.Item
			orderID string
		)
		if err := scanOrderItemInto(rows, &it, &orderID); err != nil {
			return fmt.Errorf("loading order items: %w", err)
		}
		if o, ok := index[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Code, &o.UserID, &o.Subtotal, &o.CouponCode, &o.DiscountAmount, &o.TotalPrice,
		&o.Status, &o.PaymentMethod,
		&o.ShippingAddress.City, &o.ShippingAddress.Street, &o.ShippingAddress.Building,
		&o.ShippingAddress.Floor, &o.ShippingAddress.Apartment, &o.ShippingAddress.AdditionalInfo,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it      order.Item
		orderID string
	)
	err := scanOrderItemInto(row, &it, &orderID)
	return it, err
}

func scanOrderItemInto(row pgx.Row, it *order.Item, orderID *string) error {
	var attrsJSON []byte
	err := row.Scan(
		&it.ID, orderID, &it.ProductID, &it.ProductName,
		&it.Quantity, &it.PriceAtPurchase, &attrsJSON,
	)
	if err != nil {
		return err
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &it.Attributes); err != nil {
			return fmt.Errorf("decoding item attributes: %w", err)
		}
	}
	return nil
}
