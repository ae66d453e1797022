package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souq-labs/souq-api/internal/domain/cart"
)

const (
	getCartByOwnerSQL = `SELECT id, owner_key, guest, created_at, updated_at
		FROM carts WHERE owner_key = $1`

	insertCartSQL = `INSERT INTO carts (id, owner_key, guest) VALUES ($1, $2, $3)`

	cartItemsSQL = `SELECT id, product_id, quantity, price, attributes
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`

	// One row per product per cart; re-adding the same product folds into
	// the existing row.
	upsertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, quantity, price, attributes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, price = EXCLUDED.price,
			attributes = EXCLUDED.attributes`

	updateCartItemQuantitySQL = `UPDATE cart_items SET quantity = $3
		WHERE cart_id = $1 AND id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`

	// Items go with the cart via ON DELETE CASCADE.
	deleteStaleGuestCartsSQL = `DELETE FROM carts WHERE guest AND updated_at < $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByOwner returns the owner's cart with its items.
func (r *CartRepository) GetByOwner(ctx context.Context, ownerKey string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, getCartByOwnerSQL, ownerKey).Scan(
		&c.ID, &c.OwnerKey, &c.Guest, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart for %q: %w", ownerKey, err)
	}

	rows, err := r.pool.Query(ctx, cartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading items for cart %q: %w", c.ID, err)
	}
	c.Items, err = pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("loading items for cart %q: %w", c.ID, err)
	}
	return &c, nil
}

// Create persists a new empty cart.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	_, err := r.pool.Exec(ctx, insertCartSQL, c.ID, c.OwnerKey, c.Guest)
	if err != nil {
		return fmt.Errorf("creating cart for %q: %w", c.OwnerKey, err)
	}
	return nil
}

// UpsertItem inserts the item or replaces the existing row for the same
// product.
func (r *CartRepository) UpsertItem(ctx context.Context, cartID string, item *cart.Item) error {
	attrsJSON, err := json.Marshal(item.Attributes)
	if err != nil {
		return fmt.Errorf("marshaling item attributes: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertCartItemSQL,
		item.ID, cartID, item.ProductID, item.Quantity, item.Price, attrsJSON,
	)
	if err != nil {
		return fmt.Errorf("saving cart item %q: %w", item.ID, err)
	}
	return r.touch(ctx, cartID)
}

// UpdateItemQuantity changes the quantity of a single item.
func (r *CartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error {
	tag, err := r.pool.Exec(ctx, updateCartItemQuantitySQL, cartID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return r.touch(ctx, cartID)
}

// RemoveItem deletes a single item.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID string) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, cartID, itemID)
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return r.touch(ctx, cartID)
}

// Clear deletes every item in the cart.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, cartID)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return r.touch(ctx, cartID)
}

// DeleteStaleGuest removes guest carts idle since before the cutoff.
// User carts never expire.
func (r *CartRepository) DeleteStaleGuest(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteStaleGuestCartsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale guest carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *CartRepository) touch(ctx context.Context, cartID string) error {
	if _, err := r.pool.Exec(ctx, touchCartSQL, cartID); err != nil {
		return fmt.Errorf("touching cart %q: %w", cartID, err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		it        cart.Item
		attrsJSON []byte
	)
	err := row.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.Price, &attrsJSON)
	if err != nil {
		return it, err
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &it.Attributes); err != nil {
			return it, fmt.Errorf("decoding item attributes: %w", err)
		}
	}
	return it, nil
}
