package towersdk

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultAPIVersion is the versioned API root used beneath the controller URL.
const DefaultAPIVersion = "v2"

// SessionState is where a Session is in its authentication lifecycle.
type SessionState int

const (
	// StateUnauthenticated means no token is held.
	StateUnauthenticated SessionState = iota
	// StateAuthenticated means a token is held and has not expired.
	StateAuthenticated
	// StateExpired means a token is held but has expired. Only a fresh
	// Authenticate leaves this state.
	StateExpired
)

func (st SessionState) String() string {
	switch st {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("SessionState(%d)", int(st))
	}
}

// Session holds the connection identity, authentication state and discovered
// endpoints for one controller. Entities parsed through a Session keep a
// reference to it and use it for their own follow-up calls.
//
// A Session never refreshes its token on its own: when the token expires every
// authenticated call fails with ErrSessionExpired until Authenticate succeeds
// again.
type Session struct {
	httpClient       *http.Client
	controllerURL    *url.URL
	apiBaseURL       string
	now              func() time.Time
	defaultLifetime  time.Duration
	tokenDescription string

	endpoints   *EndpointRegistry
	discoveryMu sync.Mutex

	mu              sync.RWMutex
	token           *Token
	tokenExpiration time.Time
	me              *User
}

// Option configures a Session at construction.
type Option func(*Session)

// WithHTTPClient sets the HTTP client used as transport. Timeouts, TLS, rate
// limiting and logging all belong to this client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithAPIVersion sets the versioned API root, e.g. "v2".
func WithAPIVersion(version string) Option {
	return func(s *Session) {
		if v := strings.Trim(version, "/ "); v != "" {
			s.apiBaseURL = s.controllerURL.String() + "/api/" + v + "/"
		}
	}
}

// WithClock replaces time.Now as the session clock. Token issuance and the
// validity checks made before authenticated calls read this clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultTokenLifetime sets the lifetime assumed for tokens the controller
// issues without an expiry.
func WithDefaultTokenLifetime(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.defaultLifetime = d
		}
	}
}

// WithTokenDescription sets the description attached to tokens this session
// creates, which shows up in the controller's token list.
func WithTokenDescription(desc string) Option {
	return func(s *Session) {
		s.tokenDescription = desc
	}
}

// NewSession creates an unauthenticated session for the controller at
// controllerURL. Only the scheme and authority of the URL are kept. It fails
// with ErrInvalidAddress when the URL is not an absolute http(s) URL, and never
// touches the network.
func NewSession(controllerURL string, opts ...Option) (*Session, error) {
	u, err := normalizeControllerURL(controllerURL)
	if err != nil {
		return nil, err
	}

	s := &Session{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		controllerURL:    u,
		apiBaseURL:       u.String() + "/api/" + DefaultAPIVersion + "/",
		now:              time.Now,
		defaultLifetime:  DefaultTokenLifetime,
		tokenDescription: "towersdk",
		endpoints:        NewEndpointRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// normalizeControllerURL reduces raw to scheme://host[:port].
func normalizeControllerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidAddress, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidAddress, raw)
	}

	return &url.URL{Scheme: scheme, Host: strings.ToLower(u.Host)}, nil
}

// IdentityString returns the authority (host, plus the port when it is not the
// scheme's default) of rawURL, or "" when rawURL cannot be parsed as an
// absolute URL. It never fails.
func IdentityString(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() {
		return ""
	}
	return authority(u)
}

func authority(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}

	port := u.Port()
	if port == "" || isDefaultPort(u.Scheme, port) {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}

	return net.JoinHostPort(host, port)
}

func isDefaultPort(scheme, port string) bool {
	switch strings.ToLower(scheme) {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	}
	return false
}

// String returns the identity string of the session: the authority of its
// controller URL. It returns "" for a nil or zero Session.
func (s *Session) String() string {
	if s == nil || s.controllerURL == nil {
		return ""
	}
	return authority(s.controllerURL)
}

// ControllerURL returns the normalized controller URL, scheme://host[:port].
func (s *Session) ControllerURL() string {
	return s.controllerURL.String()
}

// APIBaseURL returns the versioned API root, e.g. https://host/api/v2/.
func (s *Session) APIBaseURL() string {
	return s.apiBaseURL
}

// Endpoints returns the session's endpoint cache.
func (s *Session) Endpoints() *EndpointRegistry {
	return s.endpoints
}

// Token returns the current token, nil when unauthenticated.
func (s *Session) Token() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// TokenExpiration returns the expiry of the current token, the zero time when
// unauthenticated.
func (s *Session) TokenExpiration() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenExpiration
}

// Me returns the authenticated user, nil before the first successful
// Authenticate.
func (s *Session) Me() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.me
}

// IsTokenValid reports whether a token is held and now is strictly before its
// expiration. It has no side effects.
func (s *Session) IsTokenValid(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil && now.Before(s.tokenExpiration)
}

// State reports the lifecycle state of the session at now.
func (s *Session) State(now time.Time) SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.token == nil:
		return StateUnauthenticated
	case now.Before(s.tokenExpiration):
		return StateAuthenticated
	default:
		return StateExpired
	}
}

// validToken returns the current token when it is valid at the session clock.
func (s *Session) validToken() (*Token, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil || !now.Before(s.tokenExpiration) {
		return nil, ErrSessionExpired
	}
	return s.token, nil
}

// resolveReference turns a path or URL returned by the controller into an
// absolute URL on this controller.
func (s *Session) resolveReference(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: bad URL %q: %w", ErrProtocol, ref, err)
	}
	return s.controllerURL.ResolveReference(r).String(), nil
}
