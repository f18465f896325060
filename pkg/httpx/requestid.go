package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/tower/pkg/idx"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestIDTransport stamps every outgoing request with an X-Request-ID
// header, keeping one the caller already set.
func RequestIDTransport() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = idx.New().String()
			}

			// RoundTrippers must not modify the caller's request
			r = r.Clone(r.Context())
			r.Header.Set(RequestIDHeader, reqID)

			return next.RoundTrip(r)
		})
	}
}
