package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tower/pkg/httpx"
	"github.com/stretchr/testify/require"
)

// countingServer returns a server answering 200 and a pointer to its hit count.
func countingServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func get(ctx context.Context, c *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func TestHostKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://Tower.Example.com:8443/api/v2/", nil)
	require.Equal(t, "tower.example.com:8443", httpx.HostKeyExtractor(req))
}

func TestRateLimitConfig(t *testing.T) {
	require.True(t, httpx.DefaultRateLimit.Enabled())
	require.InDelta(t, 10.0, float64(httpx.DefaultRateLimit.Limit()), 0.0001)
	require.Equal(t, "600/1m0s burst 20", httpx.DefaultRateLimit.String())

	require.False(t, httpx.RateLimitConfig{}.Enabled())
	require.False(t, httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute}.Enabled())
	require.False(t, httpx.RateLimitConfig{RequestsPerWindow: -1, Window: time.Minute, Burst: 1}.Enabled())
}

func TestRateLimitTransport(t *testing.T) {
	t.Run("allows requests under limit", func(t *testing.T) {
		srv, hits := countingServer(t)
		client := httpx.NewClient(httpx.ClientConfig{Timeout: 5 * time.Second},
			httpx.RateLimitByHost(httpx.RateLimitConfig{
				RequestsPerWindow: 5,
				Window:            time.Second,
				Burst:             5, // Allow all 5 requests as a burst
			}))

		for i := range 5 {
			require.NoError(t, get(context.Background(), client, srv.URL), "request %d should succeed", i+1)
		}
		require.Equal(t, int64(5), hits.Load())
	})

	t.Run("holds requests over limit until the context ends", func(t *testing.T) {
		srv, hits := countingServer(t)
		client := httpx.NewClient(httpx.ClientConfig{Timeout: 5 * time.Second},
			httpx.RateLimitByHost(httpx.RateLimitConfig{
				RequestsPerWindow: 3,
				Window:            time.Minute,
				Burst:             3,
			}))

		for range 3 {
			require.NoError(t, get(context.Background(), client, srv.URL))
		}

		// The next token is 20s away
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := get(ctx, client, srv.URL)
		require.Error(t, err)
		require.Contains(t, err.Error(), "rate limit")
		require.Equal(t, int64(3), hits.Load(), "throttled request must not be sent")
	})

	t.Run("waits for the next token", func(t *testing.T) {
		srv, hits := countingServer(t)
		client := httpx.NewClient(httpx.ClientConfig{Timeout: 5 * time.Second},
			httpx.RateLimitByHost(httpx.RateLimitConfig{
				RequestsPerWindow: 20, // one token every 50ms
				Window:            time.Second,
				Burst:             1,
			}))

		start := time.Now()
		for range 3 {
			require.NoError(t, get(context.Background(), client, srv.URL))
		}

		require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
		require.Equal(t, int64(3), hits.Load())
	})

	t.Run("different hosts are tracked separately", func(t *testing.T) {
		srvA, hitsA := countingServer(t)
		srvB, hitsB := countingServer(t)
		client := httpx.NewClient(httpx.ClientConfig{Timeout: 5 * time.Second},
			httpx.RateLimitByHost(httpx.RateLimitConfig{
				RequestsPerWindow: 1,
				Window:            time.Minute,
				Burst:             1,
			}))

		require.NoError(t, get(context.Background(), client, srvA.URL))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.Error(t, get(ctx, client, srvA.URL))

		// But the second host still has its budget
		require.NoError(t, get(context.Background(), client, srvB.URL))

		require.Equal(t, int64(1), hitsA.Load())
		require.Equal(t, int64(1), hitsB.Load())
	})

	t.Run("sends request when key extractor returns empty", func(t *testing.T) {
		srv, hits := countingServer(t)
		emptyExtractor := func(r *http.Request) string { return "" }
		client := httpx.NewClient(httpx.ClientConfig{Timeout: 5 * time.Second},
			httpx.RateLimitTransport(httpx.RateLimitConfig{
				RequestsPerWindow: 1,
				Window:            time.Minute,
				Burst:             1,
			}, emptyExtractor))

		for range 3 {
			require.NoError(t, get(context.Background(), client, srv.URL))
		}
		require.Equal(t, int64(3), hits.Load())
	})

	t.Run("disabled config passes everything", func(t *testing.T) {
		srv, hits := countingServer(t)
		client := httpx.NewClient(httpx.ClientConfig{Timeout: 5 * time.Second},
			httpx.RateLimitByHost(httpx.RateLimitConfig{}))

		for range 10 {
			require.NoError(t, get(context.Background(), client, srv.URL))
		}
		require.Equal(t, int64(10), hits.Load())
	})
}

func BenchmarkRateLimitTransport(b *testing.B) {
	next := httpx.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
	rt := httpx.RateLimitByHost(httpx.RateLimitConfig{
		RequestsPerWindow: 1 << 30,
		Window:            time.Second,
		Burst:             1 << 30,
	})(next)

	req := httptest.NewRequest(http.MethodGet, "https://tower.example.com/api/v2/", nil)

	b.ResetTimer()
	for range b.N {
		_, _ = rt.RoundTrip(req)
	}
}
