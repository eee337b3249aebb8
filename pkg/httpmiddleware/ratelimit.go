package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the sliding window limiter applied to requests
// that change state.
type RateLimitConfig struct {
	// Max is the number of mutating requests a client may issue per Window.
	// Zero or less disables limiting.
	Max    int
	Window time.Duration
	// ClientKey identifies the client; the client IP when nil.
	ClientKey func(*http.Request) string
}

// counter holds one client's request counts for the current and previous
// fixed windows.
type counter struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max    int
	window time.Duration
	key    func(*http.Request) string

	mu      sync.Mutex
	clients map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.ClientKey
	if key == nil {
		key = clientIP
	}
	return &limiter{
		max:     cfg.Max,
		window:  cfg.Window,
		key:     key,
		clients: make(map[string]*counter),
	}
}

// take records a request from key at now unless the client is over the
// limit. The previous window counts in proportion to its overlap with the
// sliding window ending at now.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.clients[key]
	if !found {
		c = &counter{start: now.Truncate(l.window)}
		l.clients[key] = c
	}
	if since := now.Sub(c.start); since >= l.window {
		c.prev = c.curr
		if since >= 2*l.window {
			c.prev = 0
		}
		c.curr = 0
		c.start = now.Truncate(l.window)
	}

	overlap := 1 - float64(now.Sub(c.start))/float64(l.window)
	used := c.prev*max(overlap, 0) + c.curr
	reset = c.start.Add(l.window)
	if used >= float64(l.max) {
		return 0, reset, false
	}
	c.curr++
	return max(int(float64(l.max)-used-1), 0), reset, true
}

// evict drops clients idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.clients {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.clients, key)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimit limits POST and DELETE requests per client. Reads and CORS
// preflights pass through untouched. Limited responses carry
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset; rejected
// ones get 429 with Retry-After.
//
// Idle clients are evicted every two windows until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutation(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		now := time.Now()
		remaining, reset, ok := l.take(l.key(r), now)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		retry := math.Ceil(max(reset.Sub(now), 0).Seconds())
		h.Set("Retry-After", strconv.Itoa(int(retry)))

		var e jx.Encoder
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
			e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
		})
		h.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write(e.Bytes())
	})
}

func isMutation(method string) bool {
	return method == http.MethodPost || method == http.MethodDelete
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
