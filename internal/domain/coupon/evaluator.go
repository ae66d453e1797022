package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rejection messages. These are the contract of the evaluator: callers and
// tests rely on the exact wording.
const (
	msgInvalidCode   = "Invalid coupon code"
	msgNotActive     = "Coupon is not active"
	msgExpired       = "Coupon has expired"
	msgLimitExceeded = "Coupon usage limit exceeded"
)

// ErrInvalidCode rejects a code that matches no stored coupon.
func ErrInvalidCode() *InvalidError {
	return &InvalidError{Reason: msgInvalidCode}
}

// ErrLimitExceeded rejects a coupon whose usage limit is exhausted.
func ErrLimitExceeded() *InvalidError {
	return &InvalidError{Reason: msgLimitExceeded}
}

// Evaluate validates the coupon against an order subtotal and computes the
// discount amount. It is pure: UsedCount is never mutated here, that is the
// checkout transaction's job once the rest of the order is known to succeed.
//
// Checks run in a fixed order and the first failure wins:
// active flag, expiry, usage limit, minimum order amount. The raw discount
// subtotal*value/100 is clamped to MaxDiscountAmount when set and rounded to
// 2 decimal places, half away from zero (shopspring decimal.Round), which
// keeps results deterministic.
func Evaluate(c *Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.IsActive {
		return decimal.Zero, &InvalidError{Reason: msgNotActive}
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return decimal.Zero, &InvalidError{Reason: msgExpired}
	}
	if c.UsageExhausted() {
		return decimal.Zero, ErrLimitExceeded()
	}
	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return decimal.Zero, &InvalidError{
			Reason: fmt.Sprintf("Minimum order amount of %s required to use this coupon", c.MinOrderAmount.String()),
		}
	}

	discount := subtotal.Mul(c.Value).Div(hundred)
	if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
		discount = *c.MaxDiscountAmount
	}
	return discount.Round(2), nil
}

// Evaluation is the successful result of a coupon preview.
type Evaluation struct {
	Coupon         *Coupon
	DiscountAmount decimal.Decimal
}

// Previewer validates a coupon code against a subtotal without committing
// anything: the read-only use of the evaluator exposed to clients before
// checkout.
type Previewer struct {
	coupons Repository
	now     func() time.Time
}

// NewPreviewer creates a Previewer backed by the given repository.
func NewPreviewer(coupons Repository) *Previewer {
	return &Previewer{coupons: coupons, now: time.Now}
}

// Preview normalizes and looks up the code, then runs Evaluate against the
// subtotal. A lookup miss surfaces as the "Invalid coupon code" rejection.
func (p *Previewer) Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*Evaluation, error) {
	c, err := p.coupons.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCode()
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	discount, err := Evaluate(c, subtotal, p.now())
	if err != nil {
		return nil, err
	}
	return &Evaluation{Coupon: c, DiscountAmount: discount}, nil
}
