package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing())
	h.AddLivenessCheck("storage", time.Second, failing("connection refused"))

	// Checks start healthy and flip only after failureThreshold failures.
	runN(h.liveness[1], failureThreshold-1)
	w := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	runN(h.liveness[1], 1)
	w = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"storage":"connection refused"}}`, w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		ready    bool
		fail     bool
		wantCode int
		wantBody string
	}{
		{
			name:     "ready",
			ready:    true,
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "not ready",
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`,
		},
		{
			name:     "check failing",
			ready:    true,
			fail:     true,
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"status":"unhealthy","checks":{"persistence":"quota exceeded"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddReadinessCheck("storage", time.Second, passing())
			fn := passing()
			if tt.fail {
				fn = failing("quota exceeded")
			}
			h.AddReadinessCheck("persistence", time.Second, fn)
			runN(h.readiness[1], failureThreshold)
			h.SetReady(tt.ready)

			w := serve(t, h.ReadyEndpoint)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
			assert.Equal(t, tt.wantCode == http.StatusOK, h.IsReady())
		})
	}
}

func TestCheckRecovers(t *testing.T) {
	var (
		mu   sync.Mutex
		down = true
	)
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if down {
			return errors.New("down")
		}
		return nil
	})
	c := h.liveness[0]

	assert.NoError(t, c.err())
	runN(c, failureThreshold)
	assert.False(t, c.healthy.Load())
	assert.EqualError(t, c.err(), "down")

	mu.Lock()
	down = false
	mu.Unlock()
	runN(c, successThreshold)
	assert.True(t, c.healthy.Load())
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("storage", time.Second, failing("down"))
	h.AddReadinessCheck("persistence", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
		return w.Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestErrorCheck(t *testing.T) {
	var status error
	check := ErrorCheck(func() error { return status })
	assert.NoError(t, check(context.Background()))

	status = errors.New("write cart: quota exceeded")
	err := check(context.Background())
	require.ErrorIs(t, err, status)
	assert.Contains(t, err.Error(), "degraded")
}
