package network

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds the client the oracle adapters share. The 5s
// overall timeout is a backstop only; per-call deadlines come from
// the evaluator's simulation context, which is far tighter.
func NewHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: 5 * time.Second}
}
