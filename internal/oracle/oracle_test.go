package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/capability"
)

func TestClientSimulateAndGasPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simulate":
			_ = json.NewEncoder(w).Encode(map[string]any{"gas_used": "1500", "success": true})
		case "/gas_price":
			_ = json.NewEncoder(w).Encode(map[string]any{"price": "0.0000001", "updated_at_ms": 0})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{GasBaseURL: srv.URL, PriceBaseURL: srv.URL, RateLimitPerSec: 1000, RateLimitBurst: 1000})

	res, err := c.Simulate(context.Background(), capability.SimulationRequest{})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if !res.Success || !res.GasUsed.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected simulate result: %+v", res)
	}

	price, _, err := c.GasUnitPrice(context.Background())
	if err != nil {
		t.Fatalf("GasUnitPrice: %v", err)
	}
	if price.IsZero() {
		t.Fatalf("expected non-zero gas price")
	}
}

func TestClientPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from") != "APT" || r.URL.Query().Get("to") != "USDC" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"price": "6.5"})
	}))
	defer srv.Close()

	c := New(Config{GasBaseURL: srv.URL, PriceBaseURL: srv.URL, RateLimitPerSec: 1000, RateLimitBurst: 1000})
	price, err := c.Price(context.Background(), "APT", "USDC")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("6.5")) || price.IsZero() {
		t.Fatalf("unexpected price: %v", price)
	}
}
