// Package oracle is a concrete, HTTP-JSON GasOracle/PriceOracle
// client: the evaluator's two capability interfaces, backed by real
// outbound RPC calls instead of a test fake. A thin struct holding a
// rate-limited *http.Client, one method per capability call, JSON
// decode into a small anonymous struct.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/capability"
	"github.com/aptos-mm/arbdetect/internal/detectorerr"
	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/infra/network"
	"github.com/aptos-mm/arbdetect/internal/infra/vault"
)

// Config wires the two RPC endpoints plus the shared outbound-traffic
// controls (rate limit, secret lookup) every call goes through.
type Config struct {
	GasBaseURL   string // e.g. https://gas.internal/v1
	PriceBaseURL string // e.g. https://price.internal/v1

	RateLimitPerSec float64
	RateLimitBurst  int

	// GasPriceRefresh is the cadence the unit gas price is re-fetched
	// on; between fetches GasUnitPrice serves the cached value. The
	// evaluator's own staleness check still applies on top of this.
	GasPriceRefresh time.Duration

	Secrets   vault.SecretStore
	SecretKey string // key passed to Secrets.Get for the bearer token
}

// Client implements capability.GasOracle and capability.PriceOracle
// over HTTP. One Client is shared by every candidate's simulation
// call in a detection cycle; TokenBucket makes that fan-out
// self-limiting instead of needing an external circuit breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *network.TokenBucket
	rtt     *network.Monitor

	gasMu        sync.Mutex
	gasPrice     decimal.Decimal
	gasUpdatedAt time.Time // server-reported refresh time
	gasFetchedAt time.Time // when this client last hit the endpoint
}

func New(cfg Config) *Client {
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 32
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 16
	}
	if cfg.GasPriceRefresh <= 0 {
		cfg.GasPriceRefresh = time.Minute
	}
	limiter := network.NewTokenBucket(cfg.RateLimitBurst, cfg.RateLimitPerSec, 50)
	c := &Client{
		cfg:     cfg,
		http:    network.NewHTTPClient(),
		limiter: limiter,
	}
	c.rtt = &network.Monitor{OnUpdate: func(s network.EndpointStats) {
		limiter.AdjustForRTT(s.MedianMs)
	}}
	return c
}

// doTimed runs req and reports its RTT to the rate limiter's adaptive
// monitor, so a degrading gas/price endpoint throttles itself before
// the detector ever sees a simulation timeout.
func (c *Client) doTimed(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	c.rtt.Report(network.EndpointStats{
		Endpoint:  req.URL.Host,
		MedianMs:  float64(time.Since(start).Milliseconds()),
		UpdatedAt: time.Now(),
	})
	return resp, err
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Secrets == nil || c.cfg.SecretKey == "" {
		return
	}
	if key, err := c.cfg.Secrets.Get(c.cfg.SecretKey); err == nil && key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// Simulate posts the opaque hop list to the gas oracle's /simulate
// endpoint and decodes {gas_used, success}. Gas payload encoding is
// chain-specific; this client only needs the wrapper shape, not the
// hop contents themselves.
func (c *Client) Simulate(ctx context.Context, req capability.SimulationRequest) (capability.SimulationResult, error) {
	if !c.limiter.Allow(time.Now()) {
		return capability.SimulationResult{}, detectorerr.New(detectorerr.SimulationFailed, "oracle.Simulate", "outbound rate limit exceeded")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return capability.SimulationResult{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Simulate", "encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GasBaseURL+"/simulate", bytes.NewReader(body))
	if err != nil {
		return capability.SimulationResult{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Simulate", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.doTimed(httpReq)
	if err != nil {
		return capability.SimulationResult{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Simulate", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return capability.SimulationResult{}, detectorerr.New(detectorerr.SimulationFailed, "oracle.Simulate", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var out struct {
		GasUsed string `json:"gas_used"`
		Success bool   `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return capability.SimulationResult{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Simulate", "decode response", err)
	}
	gasUsed, err := decimal.NewFromString(out.GasUsed)
	if err != nil {
		return capability.SimulationResult{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Simulate", "parse gas_used", err)
	}
	return capability.SimulationResult{GasUsed: gasUsed, Success: out.Success}, nil
}

// GasUnitPrice returns the chain's current per-unit gas price and the
// timestamp it was last refreshed, so the evaluator can apply its
// GasStaleness check. The endpoint is hit at most once per
// GasPriceRefresh; every detection cycle in between is served from
// the cached value.
func (c *Client) GasUnitPrice(ctx context.Context) (decimal.Decimal, time.Time, error) {
	c.gasMu.Lock()
	if !c.gasFetchedAt.IsZero() && time.Since(c.gasFetchedAt) < c.cfg.GasPriceRefresh {
		price, updated := c.gasPrice, c.gasUpdatedAt
		c.gasMu.Unlock()
		return price, updated, nil
	}
	c.gasMu.Unlock()

	price, updated, err := c.fetchGasUnitPrice(ctx)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}

	c.gasMu.Lock()
	c.gasPrice, c.gasUpdatedAt, c.gasFetchedAt = price, updated, time.Now()
	c.gasMu.Unlock()
	return price, updated, nil
}

func (c *Client) fetchGasUnitPrice(ctx context.Context) (decimal.Decimal, time.Time, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GasBaseURL+"/gas_price", nil)
	if err != nil {
		return decimal.Zero, time.Time{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.GasUnitPrice", "build request", err)
	}
	c.authorize(httpReq)
	resp, err := c.doTimed(httpReq)
	if err != nil {
		return decimal.Zero, time.Time{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.GasUnitPrice", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return decimal.Zero, time.Time{}, detectorerr.New(detectorerr.SimulationFailed, "oracle.GasUnitPrice", fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, b))
	}

	var out struct {
		Price       string `json:"price"`
		UpdatedAtMs int64  `json:"updated_at_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, time.Time{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.GasUnitPrice", "decode response", err)
	}
	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, time.Time{}, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.GasUnitPrice", "parse price", err)
	}
	return price, time.UnixMilli(out.UpdatedAtMs), nil
}

// Price implements capability.PriceOracle by querying the price
// service's conversion endpoint for from->to.
func (c *Client) Price(ctx context.Context, from, to domain.Asset) (decimal.Decimal, error) {
	if !c.limiter.Allow(time.Now()) {
		return decimal.Zero, detectorerr.New(detectorerr.SimulationFailed, "oracle.Price", "outbound rate limit exceeded")
	}
	q := url.Values{"from": {string(from)}, "to": {string(to)}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PriceBaseURL+"/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Price", "build request", err)
	}
	c.authorize(httpReq)
	resp, err := c.doTimed(httpReq)
	if err != nil {
		return decimal.Zero, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Price", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, detectorerr.New(detectorerr.SimulationFailed, "oracle.Price", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var out struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Price", "decode response", err)
	}
	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, detectorerr.Wrap(detectorerr.SimulationFailed, "oracle.Price", "parse price", err)
	}
	return price, nil
}

var _ capability.GasOracle = (*Client)(nil)
var _ capability.PriceOracle = (*Client)(nil)
