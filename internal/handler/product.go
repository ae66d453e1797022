package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/souq-labs/souq-api/internal/domain/product"
)

// ProductResponse is the wire shape of a catalog product.
type ProductResponse struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Category       string           `json:"category,omitempty"`
	Price          decimal.Decimal  `json:"price"`
	SalePrice      *decimal.Decimal `json:"salePrice,omitempty"`
	EffectivePrice decimal.Decimal  `json:"effectivePrice"`
	Stock          int              `json:"stock"`
	IsActive       bool             `json:"isActive"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func toProductResponse(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		Price:          p.Price,
		SalePrice:      p.SalePrice,
		EffectivePrice: p.EffectivePrice(),
		Stock:          p.Stock,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
	}
}

// ListProducts returns the catalog. Customers only see active products;
// admins see everything and may narrow by category.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	products, err := h.products.List(r.Context(), product.ListFilter{
		Category:   r.URL.Query().Get("category"),
		ActiveOnly: !ident.IsAdmin(),
	})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	out := make([]ProductResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	h.respond(w, http.StatusOK, out)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, toProductResponse(p))
}

// ProductRequest is the admin create/update payload.
type ProductRequest struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Price       decimal.Decimal  `json:"price" validate:"required"`
	SalePrice   *decimal.Decimal `json:"salePrice"`
	Stock       int              `json:"stock" validate:"gte=0"`
	IsActive    *bool            `json:"isActive"`
}

// CreateProduct adds a catalog product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	p := &product.Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		SalePrice:   req.SalePrice,
		Stock:       req.Stock,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusCreated, "Product created", toProductResponse(p))
}

// UpdateProduct overwrites a product's fields.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	p.Name = req.Name
	p.Description = req.Description
	p.Category = req.Category
	p.Price = req.Price
	p.SalePrice = req.SalePrice
	p.Stock = req.Stock
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := h.products.Update(r.Context(), p); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Product updated", toProductResponse(p))
}
