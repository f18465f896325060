package httpx

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Middleware wraps a RoundTripper with extra client-side behaviour.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain wraps base with mws. The first middleware sees the request first.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// ClientConfig describes the HTTP client used to reach a controller.
type ClientConfig struct {
	// Timeout bounds a whole request, including reading the body
	Timeout time.Duration

	// Insecure skips TLS certificate verification, for lab controllers with
	// self-signed certificates
	Insecure bool
}

// NewClient builds an *http.Client from cfg with mws around the transport.
func NewClient(cfg ClientConfig, mws ...Middleware) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: Chain(base, mws...),
	}
}
