package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/souq-labs/souq-api/internal/domain/coupon"
)

// CouponResponse is the wire shape of a coupon.
type CouponResponse struct {
	ID                string           `json:"id"`
	Code              string           `json:"code"`
	Value             decimal.Decimal  `json:"value"`
	MinOrderAmount    *decimal.Decimal `json:"minOrderAmount,omitempty"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	UsageLimit        *int             `json:"usageLimit,omitempty"`
	UsedCount         int              `json:"usedCount"`
	ExpiresAt         *time.Time       `json:"expiresAt,omitempty"`
	IsActive          bool             `json:"isActive"`
	CreatedAt         time.Time        `json:"createdAt"`
}

func toCouponResponse(c *coupon.Coupon) CouponResponse {
	return CouponResponse{
		ID:                c.ID,
		Code:              c.Code,
		Value:             c.Value,
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
		UsageLimit:        c.UsageLimit,
		UsedCount:         c.UsedCount,
		ExpiresAt:         c.ExpiresAt,
		IsActive:          c.IsActive,
		CreatedAt:         c.CreatedAt,
	}
}

// ValidateCouponRequest is the public preview payload. Subtotal is a
// pointer so that an explicit zero survives validation; only a missing
// field is rejected.
type ValidateCouponRequest struct {
	Code     string           `json:"code" validate:"required"`
	Subtotal *decimal.Decimal `json:"subtotal" validate:"required"`
}

// ValidateCoupon previews a coupon against a subtotal without consuming a
// use. Rejections surface as 400 with the evaluator's message.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Subtotal.IsNegative() {
		h.fail(w, http.StatusBadRequest, "Subtotal must not be negative")
		return
	}

	eval, err := h.previewer.Preview(r.Context(), req.Code, *req.Subtotal)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	h.respondMessage(w, http.StatusOK, "Coupon is valid", map[string]any{
		"code":           eval.Coupon.Code,
		"value":          eval.Coupon.Value,
		"discountAmount": eval.DiscountAmount,
		"finalAmount":    req.Subtotal.Sub(eval.DiscountAmount).Round(2),
	})
}

// CouponRequest is the admin create/update payload.
type CouponRequest struct {
	Code              string           `json:"code" validate:"required"`
	Value             decimal.Decimal  `json:"value" validate:"required"`
	MinOrderAmount    *decimal.Decimal `json:"minOrderAmount"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount"`
	UsageLimit        *int             `json:"usageLimit"`
	ExpiresAt         *time.Time       `json:"expiresAt"`
	IsActive          *bool            `json:"isActive"`
}

func (r *CouponRequest) valueInRange() bool {
	return r.Value.IsPositive() && r.Value.LessThanOrEqual(decimal.NewFromInt(100))
}

// CreateCoupon adds a coupon. The code is stored normalized.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.valueInRange() {
		h.fail(w, http.StatusBadRequest, "Discount value must be between 0 and 100")
		return
	}

	c := &coupon.Coupon{
		ID:                uuid.New().String(),
		Code:              coupon.NormalizeCode(req.Code),
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimit:        req.UsageLimit,
		ExpiresAt:         req.ExpiresAt,
		IsActive:          req.IsActive == nil || *req.IsActive,
	}
	if err := h.coupons.Create(r.Context(), c); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusCreated, "Coupon created", toCouponResponse(c))
}

// ListCoupons returns a page of coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	f := coupon.ListFilter{
		Search: r.URL.Query().Get("search"),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 20),
	}
	if raw := r.URL.Query().Get("isActive"); raw != "" {
		active := raw == "true"
		f.IsActive = &active
	}

	coupons, total, err := h.coupons.List(r.Context(), f)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	out := make([]CouponResponse, len(coupons))
	for i := range coupons {
		out[i] = toCouponResponse(&coupons[i])
	}
	h.respond(w, http.StatusOK, map[string]any{
		"coupons": out,
		"total":   total,
		"page":    f.Page,
		"limit":   f.Limit,
	})
}

// GetCoupon returns a single coupon.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, toCouponResponse(c))
}

// UpdateCoupon overwrites a coupon's constraints. The code and the usage
// counter cannot be changed here.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.valueInRange() {
		h.fail(w, http.StatusBadRequest, "Discount value must be between 0 and 100")
		return
	}

	c, err := h.coupons.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	c.Value = req.Value
	c.MinOrderAmount = req.MinOrderAmount
	c.MaxDiscountAmount = req.MaxDiscountAmount
	c.UsageLimit = req.UsageLimit
	c.ExpiresAt = req.ExpiresAt
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}

	if err := h.coupons.Update(r.Context(), c); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Coupon updated", toCouponResponse(c))
}

// DeleteCoupon removes a coupon.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Coupon deleted", nil)
}
