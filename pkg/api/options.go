// Package api serves the escrow over HTTP.
//
// Reads are public. Requests that change state carry X-Escrow-Signature,
// X-Escrow-Timestamp and X-Escrow-Nonce headers. The signature is a
// recoverable secp256k1 signature over the method, request URI, timestamp,
// nonce and keccak256(body); the recovered address is the caller. Requests
// outside the signature window or reusing a caller's nonce are refused. Job
// creation treats the caller as the payer, oracle callbacks require the
// configured router, and admin changes require the owner.
package api

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures the API handler.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	middleware     func(http.Handler) http.Handler
	allowedOrigins []string
	logger         *slog.Logger
	pingInterval   time.Duration
	maxBodyBytes   int64
	window         time.Duration
	clock          func() time.Time
}

// WithMiddleware wraps the handler with middleware (auth, logging, etc.).
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(c *config) {
		c.middleware = mw
	})
}

// WithAllowedOrigins restricts CORS and websocket origins. By default every
// origin is allowed.
func WithAllowedOrigins(origins ...string) Option {
	return optionFunc(func(c *config) {
		c.allowedOrigins = origins
	})
}

// WithLogger sets the request logger. Defaults to the ledger's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithPingInterval sets how often the event feed pings idle clients.
// Default: 30s.
func WithPingInterval(d time.Duration) Option {
	return optionFunc(func(c *config) {
		if d > 0 {
			c.pingInterval = d
		}
	})
}

// WithMaxBodyBytes limits request bodies. Default: 4MB.
func WithMaxBodyBytes(n int64) Option {
	return optionFunc(func(c *config) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	})
}

// WithSignatureWindow sets how far a signed request's timestamp may drift
// from the server clock. Nonces are remembered for twice the window.
// Default: 5m.
func WithSignatureWindow(d time.Duration) Option {
	return optionFunc(func(c *config) {
		if d > 0 {
			c.window = d
		}
	})
}

// WithClock sets the time source used to check request timestamps.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *config) {
		if now != nil {
			c.clock = now
		}
	})
}
