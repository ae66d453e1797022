// Package handler exposes the REST API: request decoding, validation,
// identity resolution, and the mapping of domain errors to HTTP statuses.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/souq-labs/souq-api/internal/domain/auth"
	"github.com/souq-labs/souq-api/internal/domain/cart"
	"github.com/souq-labs/souq-api/internal/domain/coupon"
	"github.com/souq-labs/souq-api/internal/domain/order"
	"github.com/souq-labs/souq-api/internal/domain/product"
	"github.com/souq-labs/souq-api/internal/router"
)

// Handler holds the domain dependencies behind the REST surface.
type Handler struct {
	products      product.Repository
	coupons       coupon.Repository
	previewer     *coupon.Previewer
	cartService   *cart.Service
	orderService  *order.Service
	authenticator *auth.Authenticator
	validate      *validator.Validate
	metrics       *metrics
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	coupons coupon.Repository,
	cartService *cart.Service,
	orderService *order.Service,
	authenticator *auth.Authenticator,
) *Handler {
	return &Handler{
		products:      products,
		coupons:       coupons,
		previewer:     coupon.NewPreviewer(coupons),
		cartService:   cartService,
		orderService:  orderService,
		authenticator: authenticator,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		metrics:       newMetrics(),
	}
}

// Register mounts every API route under /api/v1 on the given router.
func (h *Handler) Register(r *router.Router) {
	api := r.Group(h.withIdentity)

	api.Get("/api/v1/products", h.ListProducts)
	api.Get("/api/v1/products/{id}", h.GetProduct)
	api.Post("/api/v1/products", h.CreateProduct, h.requireAdmin)
	api.Put("/api/v1/products/{id}", h.UpdateProduct, h.requireAdmin)

	api.Post("/api/v1/coupons/validate", h.ValidateCoupon)
	api.Get("/api/v1/coupons", h.ListCoupons, h.requireAdmin)
	api.Post("/api/v1/coupons", h.CreateCoupon, h.requireAdmin)
	api.Get("/api/v1/coupons/{id}", h.GetCoupon, h.requireAdmin)
	api.Put("/api/v1/coupons/{id}", h.UpdateCoupon, h.requireAdmin)
	api.Delete("/api/v1/coupons/{id}", h.DeleteCoupon, h.requireAdmin)

	api.Get("/api/v1/cart", h.GetCart, h.requireIdentity)
	api.Post("/api/v1/cart", h.AddCartItem, h.requireIdentity)
	api.Put("/api/v1/cart/items/{itemID}", h.UpdateCartItem, h.requireIdentity)
	api.Delete("/api/v1/cart/items/{itemID}", h.RemoveCartItem, h.requireIdentity)
	api.Delete("/api/v1/cart", h.ClearCart, h.requireIdentity)

	api.Post("/api/v1/orders", h.PlaceOrder, h.requireUser)
	api.Post("/api/v1/orders/from-cart", h.PlaceOrderFromCart, h.requireIdentity)
	api.Get("/api/v1/orders/my-orders", h.MyOrders, h.requireUser)
	api.Get("/api/v1/orders/admin/all", h.AllOrders, h.requireAdmin)
	api.Get("/api/v1/orders/{id}", h.GetOrder, h.requireIdentity)
	api.Put("/api/v1/orders/{id}/cancel", h.CancelOrder, h.requireIdentity)
	api.Put("/api/v1/orders/{id}/status", h.UpdateOrderStatus, h.requireAdmin)
}

// envelope is the uniform response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func (h *Handler) respondMessage(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: msg, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decode parses and validates the JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

// writeError maps domain errors to HTTP statuses. Not-found conditions are
// 404, authorization failures 401/403, and every business rejection is 400
// with its user-facing message. Anything unrecognized is a logged 500.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		h.fail(w, http.StatusNotFound, err.Error())
		return

	case errors.Is(err, auth.ErrUnauthorized):
		h.fail(w, http.StatusUnauthorized, "Unauthorized")
		return

	case errors.Is(err, order.ErrForbidden):
		h.fail(w, http.StatusForbidden, err.Error())
		return

	case errors.Is(err, coupon.ErrDuplicateCode):
		h.fail(w, http.StatusBadRequest, "Coupon code already exists")
		return

	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, cart.ErrEmpty),
		errors.Is(err, product.ErrUnavailable):
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		stockErr    *product.InsufficientStockError
		couponErr   *coupon.InvalidError
		quantityErr *order.InvalidQuantityError
		stateErr    *order.InvalidStateTransitionError
		validateErr validator.ValidationErrors
	)
	switch {
	case errors.As(err, &stockErr):
		h.fail(w, http.StatusBadRequest, stockErr.Error())
	case errors.As(err, &couponErr):
		h.fail(w, http.StatusBadRequest, couponErr.Reason)
	case errors.As(err, &quantityErr):
		h.fail(w, http.StatusBadRequest, quantityErr.Error())
	case errors.As(err, &stateErr):
		h.fail(w, http.StatusBadRequest, stateErr.Error())
	case errors.As(err, &validateErr):
		h.fail(w, http.StatusBadRequest, validateErr.Error())
	default:
		zctx.From(ctx).Error("request failed", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
