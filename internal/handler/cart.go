package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/souq-labs/souq-api/internal/domain/attrs"
	"github.com/souq-labs/souq-api/internal/domain/cart"
)

// CartItemResponse is the wire shape of a cart line.
type CartItemResponse struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"productId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Attributes attrs.Bag       `json:"attributes,omitempty"`
}

// CartResponse is the wire shape of a cart.
type CartResponse struct {
	ID          string             `json:"id"`
	Items       []CartItemResponse `json:"items"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
}

func toCartResponse(c *cart.Cart) CartResponse {
	items := make([]CartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = CartItemResponse{
			ID:         it.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Price:      it.Price,
			Subtotal:   it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
			Attributes: it.Attributes,
		}
	}
	return CartResponse{ID: c.ID, Items: items, TotalAmount: c.TotalAmount()}
}

// GetCart returns the caller's cart, creating an empty one on first access.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	c, err := h.cartService.GetOrCreate(r.Context(), ident)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, toCartResponse(c))
}

// AddCartItemRequest is the add-to-cart payload.
type AddCartItemRequest struct {
	ProductID  string    `json:"productId" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,gte=1"`
	Attributes attrs.Bag `json:"attributes"`
}

// AddCartItem adds a product to the cart, merging quantities on repeat.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Attributes.Validate(); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	ident, _ := identityFrom(r.Context())
	c, err := h.cartService.AddItem(r.Context(), ident, cart.AddItemRequest{
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Attributes: req.Attributes,
	})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Item added to cart", toCartResponse(c))
}

// UpdateCartItemRequest changes a line's quantity.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

// UpdateCartItem changes the quantity of a cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateCartItemRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	ident, _ := identityFrom(r.Context())
	c, err := h.cartService.UpdateItem(r.Context(), ident, r.PathValue("itemID"), req.Quantity)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Cart updated", toCartResponse(c))
}

// RemoveCartItem deletes a cart line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	c, err := h.cartService.RemoveItem(r.Context(), ident, r.PathValue("itemID"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Item removed from cart", toCartResponse(c))
}

// ClearCart removes every item from the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	c, err := h.cartService.Clear(r.Context(), ident)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Cart cleared", toCartResponse(c))
}
