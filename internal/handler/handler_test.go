package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souq-labs/souq-api/internal/domain/auth"
	"github.com/souq-labs/souq-api/internal/domain/cart"
	"github.com/souq-labs/souq-api/internal/domain/coupon"
	"github.com/souq-labs/souq-api/internal/domain/order"
	"github.com/souq-labs/souq-api/internal/domain/product"
	"github.com/souq-labs/souq-api/internal/router"
)

// --- In-memory backends ---

type memStore struct {
	mu       sync.Mutex
	products map[string]*product.Product
	coupons  map[string]*coupon.Coupon
	orders   map[string]*order.Order
	nextCode int
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]*product.Product),
		coupons:  make(map[string]*coupon.Coupon),
		orders:   make(map[string]*order.Order),
		nextCode: 1,
	}
}

// InTx approximates transactional semantics with a mutex plus an undo log:
// good enough for handler tests, which never run concurrent requests.
func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

type memTx struct {
	store *memStore
	undo  []func()
}

func (t *memTx) ProductForUpdate(_ context.Context, id string) (*product.Product, error) {
	p, ok := t.store.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) DecrementStock(_ context.Context, id string, qty int) error {
	p, ok := t.store.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < qty {
		return &product.InsufficientStockError{ProductID: id, Available: p.Stock}
	}
	p.Stock -= qty
	t.undo = append(t.undo, func() { p.Stock += qty })
	return nil
}

func (t *memTx) RestoreStock(_ context.Context, id string, qty int) error {
	if p, ok := t.store.products[id]; ok {
		p.Stock += qty
		t.undo = append(t.undo, func() { p.Stock -= qty })
	}
	return nil
}

func (t *memTx) CouponForUpdate(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := t.store.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *memTx) IncrementCouponUsage(_ context.Context, id string) error {
	for _, c := range t.store.coupons {
		if c.ID == id {
			if c.UsageExhausted() {
				return coupon.ErrLimitExceeded()
			}
			c.UsedCount++
			t.undo = append(t.undo, func() { c.UsedCount-- })
			return nil
		}
	}
	return coupon.ErrNotFound
}

func (t *memTx) DecrementCouponUsage(_ context.Context, code string) error {
	if c, ok := t.store.coupons[code]; ok && c.UsedCount > 0 {
		c.UsedCount--
		t.undo = append(t.undo, func() { c.UsedCount++ })
	}
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *order.Order) error {
	o.Code = fmt.Sprintf("SQ%05d", t.store.nextCode)
	t.store.nextCode++
	cp := *o
	t.store.orders[o.ID] = &cp
	t.undo = append(t.undo, func() { delete(t.store.orders, o.ID) })
	return nil
}

func (t *memTx) OrderForUpdate(_ context.Context, id string) (*order.Order, error) {
	o, ok := t.store.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memTx) SetStatus(_ context.Context, id string, st order.Status) error {
	o, ok := t.store.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	prev := o.Status
	o.Status = st
	t.undo = append(t.undo, func() { o.Status = prev })
	return nil
}

type memProducts struct{ store *memStore }

func (r *memProducts) List(_ context.Context, f product.ListFilter) ([]product.Product, error) {
	var out []product.Product
	for _, p := range r.store.products {
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := r.store.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProducts) Create(_ context.Context, p *product.Product) error {
	cp := *p
	r.store.products[p.ID] = &cp
	return nil
}

func (r *memProducts) Update(_ context.Context, p *product.Product) error {
	if _, ok := r.store.products[p.ID]; !ok {
		return product.ErrNotFound
	}
	cp := *p
	r.store.products[p.ID] = &cp
	return nil
}

type memCoupons struct{ store *memStore }

func (r *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := r.store.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCoupons) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	for _, c := range r.store.coupons {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *memCoupons) Create(_ context.Context, c *coupon.Coupon) error {
	if _, ok := r.store.coupons[c.Code]; ok {
		return coupon.ErrDuplicateCode
	}
	cp := *c
	r.store.coupons[c.Code] = &cp
	return nil
}

func (r *memCoupons) Update(_ context.Context, c *coupon.Coupon) error {
	for code, existing := range r.store.coupons {
		if existing.ID == c.ID {
			cp := *c
			cp.Code = code
			r.store.coupons[code] = &cp
			return nil
		}
	}
	return coupon.ErrNotFound
}

func (r *memCoupons) Delete(_ context.Context, id string) error {
	for code, existing := range r.store.coupons {
		if existing.ID == id {
			delete(r.store.coupons, code)
			return nil
		}
	}
	return coupon.ErrNotFound
}

func (r *memCoupons) List(_ context.Context, _ coupon.ListFilter) ([]coupon.Coupon, int, error) {
	var out []coupon.Coupon
	for _, c := range r.store.coupons {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (r *memCoupons) Codes(_ context.Context) ([]string, error) {
	var out []string
	for code := range r.store.coupons {
		out = append(out, code)
	}
	return out, nil
}

type memCarts struct {
	byOwner map[string]*cart.Cart
}

func (r *memCarts) GetByOwner(_ context.Context, owner string) (*cart.Cart, error) {
	c, ok := r.byOwner[owner]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (r *memCarts) Create(_ context.Context, c *cart.Cart) error {
	r.byOwner[c.OwnerKey] = c
	return nil
}

func (r *memCarts) UpsertItem(_ context.Context, _ string, _ *cart.Item) error { return nil }

func (r *memCarts) UpdateItemQuantity(_ context.Context, _, _ string, _ int) error { return nil }

func (r *memCarts) RemoveItem(_ context.Context, _, _ string) error { return nil }

func (r *memCarts) Clear(_ context.Context, cartID string) error {
	for _, c := range r.byOwner {
		if c.ID == cartID {
			c.Items = nil
		}
	}
	return nil
}

type memOrders struct{ store *memStore }

func (r *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := r.store.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrders) ListByOwner(_ context.Context, owner string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range r.store.orders {
		if o.UserID == owner {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memOrders) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var out []order.Order
	for _, o := range r.store.orders {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (r *memOrders) UpdateStatus(_ context.Context, id string, st order.Status) (*order.Order, error) {
	o, ok := r.store.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = st
	cp := *o
	return &cp, nil
}

type memTokens struct {
	byHash map[string]*auth.TokenInfo
}

func (r *memTokens) FindByTokenHash(_ context.Context, hash string) (*auth.TokenInfo, error) {
	info, ok := r.byHash[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

// --- Fixture ---

var testPepper = []byte("test-pepper")

const (
	userToken  = "user-raw-token"
	adminToken = "admin-raw-token"
)

type fixture struct {
	router *router.Router
	store  *memStore
	carts  *memCarts
}

func newTestAPI(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	products := &memProducts{store: store}
	coupons := &memCoupons{store: store}
	carts := &memCarts{byOwner: make(map[string]*cart.Cart)}
	orders := &memOrders{store: store}

	tokens := &memTokens{byHash: map[string]*auth.TokenInfo{
		auth.HashToken(testPepper, userToken): {
			UserID:    "alice",
			TokenHash: auth.HashToken(testPepper, userToken),
			Role:      auth.RoleUser,
		},
		auth.HashToken(testPepper, adminToken): {
			UserID:    "root",
			TokenHash: auth.HashToken(testPepper, adminToken),
			Role:      auth.RoleAdmin,
		},
	}}

	h := NewHandler(
		products,
		coupons,
		cart.NewService(carts, products),
		order.NewService(store, orders, carts),
		auth.NewAuthenticator(tokens, testPepper),
	)

	r := router.New()
	h.Register(r)
	return &fixture{router: r, store: store, carts: carts}
}

func (f *fixture) addProduct(id, price string, stock int) {
	f.store.products[id] = &product.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
}

func (f *fixture) addCoupon(c coupon.Coupon) {
	f.store.coupons[c.Code] = &c
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func intp(v int) *int { return &v }

// --- Auth ---

func TestAuthRequired(t *testing.T) {
	f := newTestAPI(t)

	w := f.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, parseEnvelope(t, w).Success)

	w = f.do(t, http.MethodGet, "/api/v1/cart", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuestIdentity(t *testing.T) {
	f := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(GuestIDHeader, auth.NewGuestID())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// A malformed guest header carries no identity at all.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(GuestIDHeader, "not-a-guest-id")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRequired(t *testing.T) {
	f := newTestAPI(t)

	w := f.do(t, http.MethodGet, "/api/v1/orders/admin/all", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/orders/admin/all", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Orders over HTTP ---

func orderPayload(items ...map[string]any) map[string]any {
	return map[string]any{
		"items":         items,
		"paymentMethod": "cod",
		"shippingAddress": map[string]any{
			"city":   "Cairo",
			"street": "Tahrir Sq 1",
		},
	}
}

func TestPlaceOrder(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "100", 5)
	f.addCoupon(coupon.Coupon{
		ID: "c1", Code: "SAVE20", Value: decimal.RequireFromString("20"),
		UsageLimit: intp(1), IsActive: true,
	})

	payload := orderPayload(map[string]any{"productId": "p1", "quantity": 2})
	payload["couponCode"] = "SAVE20"

	w := f.do(t, http.MethodPost, "/api/v1/orders", userToken, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := parseEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, "Order placed successfully", env.Message)

	data := env.Data.(map[string]any)
	assert.Equal(t, "SQ00001", data["orderCode"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "200", data["subtotal"])
	assert.Equal(t, "40", data["discountAmount"])
	assert.Equal(t, "160", data["totalPrice"])
	assert.Equal(t, 3, f.store.products["p1"].Stock)
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "10", 2)

	w := f.do(t, http.MethodPost, "/api/v1/orders", userToken,
		orderPayload(map[string]any{"productId": "p1", "quantity": 5}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env := parseEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "only 2 items available in stock", env.Message)
	assert.Equal(t, 2, f.store.products["p1"].Stock)
}

func TestPlaceOrderInvalidCoupon(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "10", 5)

	payload := orderPayload(map[string]any{"productId": "p1", "quantity": 1})
	payload["couponCode"] = "NOPE"

	w := f.do(t, http.MethodPost, "/api/v1/orders", userToken, payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid coupon code", parseEnvelope(t, w).Message)
	assert.Equal(t, 5, f.store.products["p1"].Stock)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newTestAPI(t)

	w := f.do(t, http.MethodPost, "/api/v1/orders", userToken, map[string]any{
		"items": []any{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrderOwnership(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "10", 5)

	w := f.do(t, http.MethodPost, "/api/v1/orders", userToken,
		orderPayload(map[string]any{"productId": "p1", "quantity": 1}))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := parseEnvelope(t, w).Data.(map[string]any)["id"].(string)

	w = f.do(t, http.MethodGet, "/api/v1/orders/"+orderID, userToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/orders/"+orderID, adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/orders/missing", userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelOrder(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "10", 5)

	w := f.do(t, http.MethodPost, "/api/v1/orders", userToken,
		orderPayload(map[string]any{"productId": "p1", "quantity": 2}))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := parseEnvelope(t, w).Data.(map[string]any)["id"].(string)
	require.Equal(t, 3, f.store.products["p1"].Stock)

	w = f.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/cancel", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5, f.store.products["p1"].Stock)

	// A second cancel trips the status guard.
	w = f.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/cancel", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot cancel order with status: cancelled", parseEnvelope(t, w).Message)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "10", 5)

	w := f.do(t, http.MethodPost, "/api/v1/orders", userToken,
		orderPayload(map[string]any{"productId": "p1", "quantity": 1}))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := parseEnvelope(t, w).Data.(map[string]any)["id"].(string)

	w = f.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/status", userToken,
		map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/status", adminToken,
		map[string]any{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shipped", parseEnvelope(t, w).Data.(map[string]any)["status"])

	w = f.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/status", adminToken,
		map[string]any{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Coupon preview ---

func TestValidateCoupon(t *testing.T) {
	f := newTestAPI(t)
	f.addCoupon(coupon.Coupon{
		ID: "c1", Code: "SAVE10", Value: decimal.RequireFromString("10"), IsActive: true,
	})

	w := f.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]any{
		"code":     "save10",
		"subtotal": "200",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := parseEnvelope(t, w)
	assert.Equal(t, "Coupon is valid", env.Message)
	data := env.Data.(map[string]any)
	assert.Equal(t, "20", data["discountAmount"])
	assert.Equal(t, "180", data["finalAmount"])

	w = f.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]any{
		"code":     "NOPE",
		"subtotal": "200",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid coupon code", parseEnvelope(t, w).Message)
}

func TestValidateCouponZeroSubtotal(t *testing.T) {
	f := newTestAPI(t)
	min := decimal.RequireFromString("50")
	f.addCoupon(coupon.Coupon{
		ID: "c1", Code: "SAVE20", Value: decimal.RequireFromString("20"),
		MinOrderAmount: &min, IsActive: true,
	})
	f.addCoupon(coupon.Coupon{
		ID: "c2", Code: "FREEBIE", Value: decimal.RequireFromString("10"), IsActive: true,
	})

	// An explicit zero subtotal reaches the evaluator instead of dying in
	// request validation.
	w := f.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]any{
		"code":     "SAVE20",
		"subtotal": "0",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Minimum order amount of 50 required to use this coupon",
		parseEnvelope(t, w).Message)

	w = f.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]any{
		"code":     "FREEBIE",
		"subtotal": "0",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "0", parseEnvelope(t, w).Data.(map[string]any)["discountAmount"])

	// A missing subtotal is still a validation error.
	w = f.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]any{
		"code": "FREEBIE",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]any{
		"code":     "FREEBIE",
		"subtotal": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Subtotal must not be negative", parseEnvelope(t, w).Message)
}

// --- Cart over HTTP ---

func TestCartFlow(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "25.00", 10)

	w := f.do(t, http.MethodPost, "/api/v1/cart", userToken, map[string]any{
		"productId":  "p1",
		"quantity":   2,
		"attributes": map[string]any{"size": "L"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := parseEnvelope(t, w)
	assert.Equal(t, "Item added to cart", env.Message)
	data := env.Data.(map[string]any)
	assert.Equal(t, "50", data["totalAmount"])

	w = f.do(t, http.MethodDelete, "/api/v1/cart", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Cart cleared", parseEnvelope(t, w).Message)
}

// --- Products ---

func TestProductVisibility(t *testing.T) {
	f := newTestAPI(t)
	f.addProduct("p1", "10", 5)
	f.addProduct("p2", "10", 5)
	f.store.products["p2"].IsActive = false

	w := f.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, parseEnvelope(t, w).Data.([]any), 1)

	w = f.do(t, http.MethodGet, "/api/v1/products", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, parseEnvelope(t, w).Data.([]any), 2)

	w = f.do(t, http.MethodGet, "/api/v1/products/p2", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCreatesProduct(t *testing.T) {
	f := newTestAPI(t)

	payload := map[string]any{"name": "Widget", "price": "19.90", "stock": 3}

	w := f.do(t, http.MethodPost, "/api/v1/products", userToken, payload)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/products", adminToken, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Product created", parseEnvelope(t, w).Message)
}

// --- Coupon admin ---

func TestCouponAdminCRUD(t *testing.T) {
	f := newTestAPI(t)

	payload := map[string]any{"code": "fall25", "value": "25"}

	w := f.do(t, http.MethodPost, "/api/v1/coupons", adminToken, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := parseEnvelope(t, w)
	data := env.Data.(map[string]any)
	assert.Equal(t, "FALL25", data["code"])
	couponID := data["id"].(string)

	// Same normalized code again.
	w = f.do(t, http.MethodPost, "/api/v1/coupons", adminToken, payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Coupon code already exists", parseEnvelope(t, w).Message)

	w = f.do(t, http.MethodPost, "/api/v1/coupons", adminToken,
		map[string]any{"code": "BAD", "value": "150"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/coupons/"+couponID, adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/coupons/"+couponID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
