package tests

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aptos-mm/arbdetect/internal/config"
	"github.com/aptos-mm/arbdetect/internal/infra/health"
	ilog "github.com/aptos-mm/arbdetect/internal/infra/log"
	"github.com/aptos-mm/arbdetect/internal/infra/metrics"
	"github.com/aptos-mm/arbdetect/internal/infra/version"
)

// buildMux mirrors the HTTP setup in cmd/arbdetect/main.go.
func buildMux(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Load()
	logger := ilog.NewLogger(cfg)
	reg := metrics.Init(logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", health.Healthz)
	health.SetReady(true)
	mux.HandleFunc("/readyz", health.Readyz)
	mux.HandleFunc("/version", version.Handler)
	return mux
}

func TestReadyzAndVersion(t *testing.T) {
	srv := httptest.NewServer(buildMux(t))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("GET /version error: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/version expected application/json, got %s", ct)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	srv := httptest.NewServer(buildMux(t))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(buildMux(t))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	if body == "" || !(strings.Contains(body, "runs_total") || strings.Contains(body, "opportunities_total")) {
		t.Fatalf("metrics output did not contain expected metrics, got: %q", body)
	}
}
