// Package middleware holds the detector's HTTP middleware chain:
// request-id injection, structured request logging, and the admin
// CIDR gate guarding /metrics, /ingest and the pprof surface.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey int

const reqIDKey ctxKey = iota

var reqCounter atomic.Uint64

// RequestID propagates the caller's X-Request-Id, or mints one, so a
// rejected /ingest message can be traced back to its request in the
// logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = mintID()
		}
		r = r.WithContext(context.WithValue(r.Context(), reqIDKey, rid))
		w.Header().Set("X-Request-Id", rid)
		next.ServeHTTP(w, r)
	})
}

// Logger emits one structured line per request.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			l.Info().
				Str("rid", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Dur("latency", time.Since(start)).
				Msg("http_request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// GetRequestID returns the request id carried in ctx, if any.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(reqIDKey).(string)
	return s
}

// mintID is unique within one process lifetime, which is all the
// request log needs.
func mintID() string {
	n := reqCounter.Add(1)
	return time.Now().UTC().Format("20060102T150405") + "-" + strconv.FormatUint(n, 10)
}
