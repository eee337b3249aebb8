package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimit_Mutations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, RateLimitConfig{Max: 2, Window: time.Hour})(okHandler())

	send := func(method, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/cart/1", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := range 2 {
		w := send(http.MethodPost, "10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := send(http.MethodDelete, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())

	// Reads are never limited.
	w = send(http.MethodGet, "10.0.0.1:9999")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))

	// Clients are counted separately.
	w = send(http.MethodPost, "10.0.0.2:9999")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(context.Background(), RateLimitConfig{})(okHandler())

	for range 10 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/cart/1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	t0 := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		at            time.Duration
		wantOK        bool
		wantRemaining int
	}{
		{name: "first", at: 0, wantOK: true, wantRemaining: 1},
		{name: "second", at: time.Second, wantOK: true, wantRemaining: 0},
		{name: "over limit", at: 2 * time.Second, wantOK: false},
		{name: "previous window fully weighted", at: time.Minute, wantOK: false},
		{name: "previous window half weighted", at: 90 * time.Second, wantOK: true, wantRemaining: 0},
		{name: "idle two windows", at: 3 * time.Minute, wantOK: true, wantRemaining: 1},
	}
	for _, tt := range tests {
		remaining, reset, ok := l.take("client", t0.Add(tt.at))
		assert.Equal(t, tt.wantOK, ok, tt.name)
		assert.Equal(t, tt.wantRemaining, remaining, tt.name)
		assert.True(t, reset.After(t0.Add(tt.at)), tt.name)
	}
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	t0 := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	l.take("old", t0)
	l.take("new", t0.Add(90*time.Second))
	require.Equal(t, 2, l.size())

	l.evict(t0.Add(2 * time.Minute))
	assert.Equal(t, 1, l.size())
	_, _, ok := l.take("new", t0.Add(2*time.Minute))
	assert.False(t, ok, "surviving client keeps its count")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "remote addr", remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "remote addr without port", remote: "192.0.2.1", want: "192.0.2.1"},
		{name: "forwarded for", header: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.1:80", want: "203.0.113.7"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "198.51.100.2"}, remote: "10.0.0.1:80", want: "198.51.100.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
