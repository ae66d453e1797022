package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/souq-labs/souq-api/internal/domain/attrs"
	"github.com/souq-labs/souq-api/internal/domain/order"
)

// OrderItemResponse is the wire shape of an order line.
type OrderItemResponse struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`
	Attributes      attrs.Bag       `json:"attributes,omitempty"`
}

// ShippingAddressPayload mirrors order.ShippingAddress on the wire.
type ShippingAddressPayload struct {
	City           string `json:"city" validate:"required"`
	Street         string `json:"street" validate:"required"`
	Building       string `json:"building"`
	Floor          string `json:"floor"`
	Apartment      string `json:"apartment"`
	AdditionalInfo string `json:"additionalInfo"`
}

// OrderResponse is the wire shape of an order.
type OrderResponse struct {
	ID              string                 `json:"id"`
	Code            string                 `json:"orderCode"`
	Items           []OrderItemResponse    `json:"items"`
	Subtotal        decimal.Decimal        `json:"subtotal"`
	CouponCode      string                 `json:"couponCode,omitempty"`
	DiscountAmount  decimal.Decimal        `json:"discountAmount"`
	TotalPrice      decimal.Decimal        `json:"totalPrice"`
	Status          order.Status           `json:"status"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ShippingAddress ShippingAddressPayload `json:"shippingAddress"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ID:              it.ID,
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase,
			Attributes:      it.Attributes,
		}
	}
	return OrderResponse{
		ID:             o.ID,
		Code:           o.Code,
		Items:          items,
		Subtotal:       o.Subtotal,
		CouponCode:     o.CouponCode,
		DiscountAmount: o.DiscountAmount,
		TotalPrice:     o.TotalPrice,
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		ShippingAddress: ShippingAddressPayload{
			City:           o.ShippingAddress.City,
			Street:         o.ShippingAddress.Street,
			Building:       o.ShippingAddress.Building,
			Floor:          o.ShippingAddress.Floor,
			Apartment:      o.ShippingAddress.Apartment,
			AdditionalInfo: o.ShippingAddress.AdditionalInfo,
		},
		Notes:     o.Notes,
		CreatedAt: o.CreatedAt,
	}
}

// OrderItemPayload is one requested line in a direct checkout.
type OrderItemPayload struct {
	ProductID  string    `json:"productId" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,gte=1"`
	Attributes attrs.Bag `json:"attributes"`
}

// PlaceOrderRequest is the direct checkout payload.
type PlaceOrderRequest struct {
	Items           []OrderItemPayload     `json:"items" validate:"required,min=1,dive"`
	CouponCode      string                 `json:"couponCode"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required"`
	ShippingAddress ShippingAddressPayload `json:"shippingAddress" validate:"required"`
	Notes           string                 `json:"notes"`
}

func (p *ShippingAddressPayload) toDomain() order.ShippingAddress {
	return order.ShippingAddress{
		City:           p.City,
		Street:         p.Street,
		Building:       p.Building,
		Floor:          p.Floor,
		Apartment:      p.Apartment,
		AdditionalInfo: p.AdditionalInfo,
	}
}

// PlaceOrder runs the atomic checkout for explicitly listed items.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		if err := it.Attributes.Validate(); err != nil {
			h.fail(w, http.StatusBadRequest, err.Error())
			return
		}
		items[i] = order.ItemRequest{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Attributes: it.Attributes,
		}
	}

	ident, _ := identityFrom(r.Context())
	ctx, done := h.metrics.startCheckout(r.Context(), "direct")
	o, err := h.orderService.Checkout(ctx, ident, order.CheckoutRequest{
		Items:           items,
		CouponCode:      req.CouponCode,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress.toDomain(),
		Notes:           req.Notes,
	})
	done(err)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusCreated, "Order placed successfully", toOrderResponse(o))
}

// CartOrderRequest is the checkout-from-cart payload.
type CartOrderRequest struct {
	CouponCode      string                 `json:"couponCode"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required"`
	ShippingAddress ShippingAddressPayload `json:"shippingAddress" validate:"required"`
	Notes           string                 `json:"notes"`
}

// PlaceOrderFromCart checks out the caller's cart.
func (h *Handler) PlaceOrderFromCart(w http.ResponseWriter, r *http.Request) {
	var req CartOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	ident, _ := identityFrom(r.Context())
	ctx, done := h.metrics.startCheckout(r.Context(), "cart")
	o, err := h.orderService.CheckoutFromCart(ctx, ident, order.CartCheckoutRequest{
		CouponCode:      req.CouponCode,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress.toDomain(),
		Notes:           req.Notes,
	})
	done(err)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusCreated, "Order placed successfully", toOrderResponse(o))
}

// MyOrders lists the caller's orders, newest first.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	orders, err := h.orderService.ListMine(r.Context(), ident)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	h.respond(w, http.StatusOK, out)
}

// GetOrder returns one order, owner or admin only.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	o, err := h.orderService.Get(r.Context(), ident, r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, toOrderResponse(o))
}

// CancelOrder cancels a pending or processing order, reversing its stock
// reservation and coupon usage.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	o, err := h.orderService.Cancel(r.Context(), ident, r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.metrics.recordCancel(r.Context())
	h.respondMessage(w, http.StatusOK, "Order cancelled successfully", toOrderResponse(o))
}

// AllOrders lists orders for admins with paging and a status filter.
func (h *Handler) AllOrders(w http.ResponseWriter, r *http.Request) {
	f := order.ListFilter{
		Status: order.Status(r.URL.Query().Get("status")),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 20),
	}
	if f.Status != "" && !f.Status.Valid() {
		h.fail(w, http.StatusBadRequest, "Invalid order status")
		return
	}

	orders, total, err := h.orderService.ListAll(r.Context(), f)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	h.respond(w, http.StatusOK, map[string]any{
		"orders": out,
		"total":  total,
		"page":   f.Page,
		"limit":  f.Limit,
	})
}

// UpdateOrderStatusRequest is the admin status overwrite payload.
type UpdateOrderStatusRequest struct {
	Status order.Status `json:"status" validate:"required"`
}

// UpdateOrderStatus overwrites an order's status, admin only.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Status.Valid() {
		h.fail(w, http.StatusBadRequest, "Invalid order status")
		return
	}

	o, err := h.orderService.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Order status updated", toOrderResponse(o))
}
