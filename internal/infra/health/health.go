// Package health exposes the detector's liveness and readiness
// probes. Readiness is flipped by main once the scheduler is
// consuming its stream and flipped back during shutdown or after a
// fatal scheduler exit, so an orchestrator stops routing /ingest
// traffic to a detector that is no longer detecting.
package health

import (
	"net/http"
	"sync/atomic"
)

var ready atomic.Bool

// SetReady flips the readiness gate.
func SetReady(v bool) { ready.Store(v) }

// Ready reports the current readiness state.
func Ready() bool { return ready.Load() }

// Healthz answers liveness: the process is up and serving HTTP.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz answers readiness: the block scheduler is running and
// detection cycles can fire.
func Readyz(w http.ResponseWriter, _ *http.Request) {
	if !Ready() {
		http.Error(w, "detector not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
