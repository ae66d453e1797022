// Package coupon holds the coupon entity, its persistence contract, and the
// pure discount evaluator used by both checkout and the public preview
// endpoint.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a coupon does not exist. The HTTP layer
	// maps it to 404 for admin CRUD; the evaluator callers map it to the
	// user-facing "Invalid coupon code" rejection.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when creating a coupon whose normalized
	// code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// InvalidError carries the user-facing reason a coupon was rejected.
// Reason is safe to return to the client verbatim.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return e.Reason
}

// Coupon defines a percentage discount with optional constraints.
//
// Invariant: 0 <= UsedCount, and UsedCount <= *UsageLimit when a limit is
// set. UsedCount moves only through the order store's guarded increment and
// decrement operations, never through a read-modify-write in application
// code.
type Coupon struct {
	ID   string
	Code string
	// Value is the discount percentage, 0-100.
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        *int
	UsedCount         int
	ExpiresAt         *time.Time
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UsageExhausted reports whether the usage limit is set and reached.
func (c *Coupon) UsageExhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// NormalizeCode trims surrounding whitespace and uppercases a coupon code.
// All lookups and stored codes use the normalized form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ListFilter narrows the admin coupon listing.
type ListFilter struct {
	// IsActive filters by active flag when non-nil.
	IsActive *bool
	// Search matches codes containing the (normalized) substring.
	Search string
	Page   int
	Limit  int
}

// Repository defines persistence operations for coupons. FindByCode expects
// a normalized code and returns ErrNotFound on a miss.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]Coupon, int, error)
	// Codes returns every stored coupon code, used to warm the code filter
	// at startup.
	Codes(ctx context.Context) ([]string, error)
}
