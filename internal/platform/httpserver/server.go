// Package httpserver builds the HTTP server with production timeouts.
package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server with conservative timeouts.
// WriteTimeout leaves room for gateway round-trips inside ledger operations.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
