// Package middleware holds the HTTP middleware the API listener
// applies to its routes: per-client rate limiting and request metrics.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket keyed by remote IP.
type RateLimiter struct {
	mu             sync.Mutex
	clients        map[string]*bucket
	requestsPerMin int
	cleanupTicker  *time.Ticker
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter allowing requestsPerMin
// requests per client per minute.
func NewRateLimiter(requestsPerMin int) *RateLimiter {
	rl := &RateLimiter{
		clients:        make(map[string]*bucket),
		requestsPerMin: requestsPerMin,
		cleanupTicker:  time.NewTicker(5 * time.Minute),
	}

	go rl.cleanup()

	return rl
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}

// clientKey strips the ephemeral port so one client maps to one bucket.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.clients[client]

	if !exists {
		rl.clients[client] = &bucket{
			tokens:     rl.requestsPerMin - 1,
			lastRefill: now,
		}
		return true
	}

	// Refill tokens based on time elapsed.
	elapsed := now.Sub(b.lastRefill)
	tokensToAdd := int(elapsed.Minutes() * float64(rl.requestsPerMin))

	if tokensToAdd > 0 {
		b.tokens = min(rl.requestsPerMin, b.tokens+tokensToAdd)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// cleanup removes clients idle for more than 10 minutes.
func (rl *RateLimiter) cleanup() {
	for range rl.cleanupTicker.C {
		rl.mu.Lock()
		now := time.Now()
		for client, b := range rl.clients {
			if now.Sub(b.lastRefill) > 10*time.Minute {
				delete(rl.clients, client)
			}
		}
		rl.mu.Unlock()
	}
}

// Stop stops the cleanup ticker.
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
