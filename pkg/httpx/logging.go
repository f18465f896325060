package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tower/pkg/slogx"
)

// LoggingTransport logs one line per request. It uses the logger in the
// request context when there is one, base otherwise. Authorization headers and
// bodies are never logged.
func LoggingTransport(base *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			logger := base
			if l, ok := slogx.LoggerFromContext(r.Context()); ok {
				logger = l
			}
			if logger == nil {
				logger = slog.Default()
			}
			if reqID := r.Header.Get(RequestIDHeader); reqID != "" {
				logger = logger.With("req_id", reqID)
			}
			logger = logger.With(
				"method", r.Method,
				"host", r.URL.Host,
				"path", r.URL.Path,
			)

			resp, err := next.RoundTrip(r)

			duration := time.Since(start).Milliseconds()
			if err != nil {
				logger.Warn("http_request_failed",
					"duration_ms", duration,
					"error", err,
				)
				return nil, err
			}

			level := slog.LevelDebug
			if resp.StatusCode >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http_request",
				"status", resp.StatusCode,
				"duration_ms", duration,
			)

			return resp, nil
		})
	}
}
