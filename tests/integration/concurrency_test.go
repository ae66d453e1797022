//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
)

// orderAttempt is the outcome of one checkout fired from a goroutine.
// Helpers that run off the test goroutine must not touch testing.T, so
// failures travel back through this struct instead.
type orderAttempt struct {
	status  int
	message string
	err     error
}

// placeOrderRaw is a goroutine-safe variant of do: it reports transport
// errors instead of failing the test.
func placeOrderRaw(req orderRequest) orderAttempt {
	data, err := json.Marshal(req)
	if err != nil {
		return orderAttempt{err: err}
	}

	hr, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/orders", bytes.NewReader(data))
	if err != nil {
		return orderAttempt{err: err}
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Authorization", "Bearer "+userToken)

	resp, err := httpClient.Do(hr)
	if err != nil {
		return orderAttempt{err: err}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return orderAttempt{status: resp.StatusCode, err: err}
	}
	return orderAttempt{status: resp.StatusCode, message: env.Message}
}

func placeOrdersConcurrently(t *testing.T, attempts int, req orderRequest) []orderAttempt {
	t.Helper()

	results := make(chan orderAttempt, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- placeOrderRaw(req)
		}()
	}
	wg.Wait()
	close(results)

	out := make([]orderAttempt, 0, attempts)
	for r := range results {
		if r.err != nil {
			t.Fatalf("checkout attempt: %v", r.err)
		}
		out = append(out, r)
	}
	return out
}

func createProduct(t *testing.T, name, price string, stock int) productResponse {
	t.Helper()

	resp := do(t, http.MethodPost, "/api/v1/products", adminToken, map[string]any{
		"name":     name,
		"category": "art",
		"price":    price,
		"stock":    stock,
	})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("create product: expected 201, got %d", resp.StatusCode)
	}
	p := decodeData[productResponse](t, resp)
	resp.Body.Close()

	// Deactivate afterwards so the product does not leak into catalog
	// listings other tests assert on.
	t.Cleanup(func() {
		resp := do(t, http.MethodPut, "/api/v1/products/"+p.ID, adminToken, map[string]any{
			"name":     name,
			"category": "art",
			"price":    price,
			"stock":    stock,
			"isActive": false,
		})
		resp.Body.Close()
	})
	return p
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	const stock = 5
	p := createProduct(t, "Limited Edition Print", "10.00", stock)

	const attempts = 12
	results := placeOrdersConcurrently(t, attempts, orderRequest{
		Items:           []orderItemRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:   "cash_on_delivery",
		ShippingAddress: testAddress(),
	})

	var won, lost int
	for _, r := range results {
		switch r.status {
		case http.StatusCreated:
			won++
		case http.StatusBadRequest:
			lost++
		default:
			t.Errorf("unexpected status %d (%s)", r.status, r.message)
		}
	}
	if won != stock {
		t.Errorf("successful checkouts: got %d, want %d", won, stock)
	}
	if lost != attempts-stock {
		t.Errorf("rejected checkouts: got %d, want %d", lost, attempts-stock)
	}

	resp := do(t, http.MethodGet, "/api/v1/products/"+p.ID, adminToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get product: expected 200, got %d", resp.StatusCode)
	}
	if got := decodeData[productResponse](t, resp); got.Stock != 0 {
		t.Errorf("stock after concurrent checkouts: got %d, want 0", got.Stock)
	}
}

func TestConcurrentCouponUseHonorsLimit(t *testing.T) {
	cable := productByName(t, "USB-C Charging Cable 2m")

	resp := do(t, http.MethodPost, "/api/v1/coupons", adminToken, map[string]any{
		"code":       "ONESHOT9",
		"value":      "10",
		"usageLimit": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("create coupon: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	const attempts = 8
	results := placeOrdersConcurrently(t, attempts, orderRequest{
		Items:           []orderItemRequest{{ProductID: cable.ID, Quantity: 1}},
		CouponCode:      "ONESHOT9",
		PaymentMethod:   "cash_on_delivery",
		ShippingAddress: testAddress(),
	})

	var won int
	for _, r := range results {
		switch r.status {
		case http.StatusCreated:
			won++
		case http.StatusBadRequest:
			if r.message != "Coupon usage limit exceeded" {
				t.Errorf("rejection message: got %q, want %q", r.message, "Coupon usage limit exceeded")
			}
		default:
			t.Errorf("unexpected status %d (%s)", r.status, r.message)
		}
	}
	if won != 1 {
		t.Errorf("coupon applications: got %d, want exactly 1", won)
	}

	// The losers' rejected transactions must also roll their stock
	// reservation back.
	after := productByName(t, "USB-C Charging Cable 2m")
	if wantStock := cable.Stock - 1; after.Stock != wantStock {
		t.Errorf("stock: got %d, want %d", after.Stock, wantStock)
	}
}
