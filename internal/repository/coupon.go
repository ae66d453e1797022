package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souq-labs/souq-api/internal/domain/coupon"
)

const (
	couponColumns = `id, code, value, min_order_amount, max_discount_amount,
		usage_limit, used_count, expires_at, is_active, created_at, updated_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	insertCouponSQL = `INSERT INTO coupons (id, code, value, min_order_amount, max_discount_amount,
		usage_limit, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	updateCouponSQL = `UPDATE coupons
		SET value = $2, min_order_amount = $3, max_discount_amount = $4,
			usage_limit = $5, expires_at = $6, is_active = $7, updated_at = now()
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE ($1::boolean IS NULL OR is_active = $1)
			AND ($2 = '' OR code LIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	countCouponsSQL = `SELECT count(*) FROM coupons
		WHERE ($1::boolean IS NULL OR is_active = $1)
			AND ($2 = '' OR code LIKE '%' || $2 || '%')`

	couponCodesSQL = `SELECT code FROM coupons`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Codes are stored normalized, so lookups are plain equality.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByCodeSQL, code)
}

// GetByID returns a coupon by its identifier.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) getOne(ctx context.Context, sql, arg string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", arg, err)
	}
	return &c, nil
}

// Create persists a new coupon. Returns coupon.ErrDuplicateCode when the
// normalized code is already taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.ID, coupon.NormalizeCode(c.Code), c.Value,
		c.MinOrderAmount, c.MaxDiscountAmount,
		c.UsageLimit, c.ExpiresAt, c.IsActive,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update overwrites a coupon's constraints. The code and the usage counter
// are immutable here: the counter only moves through the order store's
// guarded operations.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Value, c.MinOrderAmount, c.MaxDiscountAmount,
		c.UsageLimit, c.ExpiresAt, c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// List returns a page of coupons plus the total match count.
func (r *CouponRepository) List(ctx context.Context, f coupon.ListFilter) ([]coupon.Coupon, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	search := coupon.NormalizeCode(f.Search)

	rows, err := r.pool.Query(ctx, listCouponsSQL, f.IsActive, search, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countCouponsSQL, f.IsActive, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}
	return coupons, total, nil
}

// Codes returns every stored coupon code.
func (r *CouponRepository) Codes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, couponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Value, &c.MinOrderAmount, &c.MaxDiscountAmount,
		&c.UsageLimit, &c.UsedCount, &c.ExpiresAt, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
