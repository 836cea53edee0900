package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/casefile-ai/lexrag/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-IP request rate (requests/second)
	// when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the per-IP burst capacity when none is configured.
	// Allows short spikes without immediate rejection.
	defaultRateBurst = 20

	// staleAfter is how long an IP may go unseen before its bucket is evicted.
	staleAfter = 5 * time.Minute

	// evictInterval is how often the eviction sweep runs.
	evictInterval = time.Minute
)

// rateLimiter enforces a per-IP token-bucket rate limit. Buckets for IPs not
// seen within staleAfter are evicted periodically to bound memory usage.
type rateLimiter struct {
	mu sync.Mutex
	// buckets maps remote IP to its token bucket and last-seen time.
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// bucket pairs a token bucket with the last time its IP was seen.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter constructs a rateLimiter and starts the background eviction
// goroutine. Calling the returned stop function ends the goroutine.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				rl.evictStale()
			}
		}
	}()

	return rl, func() { close(stopCh) }
}

// allow reports whether a request from ip may proceed, creating the per-IP
// bucket on first sight and refreshing its last-seen time.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// evictStale drops buckets for IPs not seen within staleAfter.
func (rl *rateLimiter) evictStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// middleware enforces the rate limit before delegating to next. Rejected
// requests receive 429 Too Many Requests with a Retry-After header.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is ignored
// since the server binds to localhost.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
