package handler

import (
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an address may stay quiet before its bucket is dropped.
const limiterIdle = 10 * time.Minute

// clientHost returns the host part of r.RemoteAddr.
func clientHost(r *http.Request) (string, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", false
	}
	return host, true
}

// LocalOnly rejects requests that do not come from a loopback address.
// RemoteAddr is used as-is; forwarding headers are not trusted.
func LocalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, ok := clientHost(r)
		if !ok {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		addr, err := netip.ParseAddr(host)
		if err != nil || !addr.Unmap().IsLoopback() {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs each request through zap. chi's own logger writes to
// stdout, which carries the protocol stream.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug("diagnostics request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client host.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewRateLimiter starts a limiter allowing rps requests per second per host.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		ticker:  time.NewTicker(limiterIdle),
		done:    make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

func (rl *RateLimiter) evictLoop() {
	for {
		select {
		case <-rl.done:
			return
		case now := <-rl.ticker.C:
			rl.evict(now.Add(-limiterIdle))
		}
	}
}

// evict drops buckets not used since cutoff.
func (rl *RateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for host, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, host)
		}
	}
}

func (rl *RateLimiter) allow(host string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[host]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[host] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// RateLimit answers 429 once a host exhausts its bucket. Ports are ignored.
func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, ok := clientHost(r)
		if !ok {
			host = r.RemoteAddr
		}
		if !rl.allow(host) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close stops the eviction loop. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() {
		rl.ticker.Stop()
		close(rl.done)
	})
}
