package towersdk

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// tokenRequest is the body POSTed to the tokens endpoint.
type tokenRequest struct {
	Description string  `json:"description"`
	Application *string `json:"application"`
	Scope       string  `json:"scope"`
}

// Authenticate exchanges creds for a new token. Any token held before the call
// is dropped first, so a failed Authenticate leaves the session
// unauthenticated. On success the new token, its expiration and the
// authenticated user are stored together.
//
// Errors match ErrAuthentication when the controller rejects the credentials,
// ErrNetwork when the transport fails, and ErrProtocol when a response has an
// unexpected shape.
func (s *Session) Authenticate(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	s.token = nil
	s.tokenExpiration = time.Time{}
	s.mu.Unlock()

	tokensURL, err := s.ResolveEndpoint(ctx, "tokens")
	if err != nil {
		return err
	}

	issuedAt := s.now()
	resp, err := s.doRequest(ctx, http.MethodPost, tokensURL, tokenRequest{
		Description: s.tokenDescription,
		Scope:       "write",
	}, map[string]string{
		"Authorization": "Basic " + basicAuth(creds.Username, creds.Password),
	})
	if err != nil {
		return err
	}

	var tokenResp tokenResponse
	if err := decodeJSON(resp, &tokenResp); err != nil {
		return err
	}
	if tokenResp.Token == "" {
		return fmt.Errorf("%w: token response has no token", ErrProtocol)
	}

	lifetime := tokenLifetime(tokenResp, issuedAt, s.defaultLifetime)
	if lifetime <= 0 {
		return fmt.Errorf("%w: token issued already expired", ErrProtocol)
	}

	token := NewToken(tokenResp.Token, issuedAt, lifetime)
	if tokenResp.URL != "" {
		if token.url, err = s.resolveReference(tokenResp.URL); err != nil {
			return err
		}
	}

	me, err := s.fetchMe(ctx, token)
	if err != nil {
		// The token exists on the controller but will never be stored
		_ = s.revoke(context.WithoutCancel(ctx), token)
		return err
	}

	s.mu.Lock()
	s.token = token
	s.tokenExpiration = token.ExpiresAt()
	s.me = me
	s.mu.Unlock()

	return nil
}

// fetchMe loads the user that token belongs to.
func (s *Session) fetchMe(ctx context.Context, token *Token) (*User, error) {
	meURL, err := s.ResolveEndpoint(ctx, "me")
	if err != nil {
		return nil, err
	}

	resp, err := s.doRequest(ctx, http.MethodGet, meURL, nil, bearer(token))
	if err != nil {
		return nil, err
	}

	var p page
	if err := decodeJSON(resp, &p); err != nil {
		return nil, err
	}
	if len(p.Results) == 0 {
		return nil, fmt.Errorf("%w: me endpoint returned no user", ErrProtocol)
	}

	user, err := ParseUser(p.Results[0], s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return user, nil
}

// Logout revokes the current token on the controller, when its URL is known
// and it is still valid, and then drops it from the session. The local token
// is dropped even when revocation fails.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	valid := token != nil && s.now().Before(s.tokenExpiration)
	s.token = nil
	s.tokenExpiration = time.Time{}
	s.mu.Unlock()

	if !valid {
		return nil
	}

	return s.revoke(ctx, token)
}

// revoke deletes the token resource on the controller. Tokens without a known
// URL cannot be revoked and are skipped.
func (s *Session) revoke(ctx context.Context, token *Token) error {
	if token.URL() == "" {
		return nil
	}

	resp, err := s.doRequest(ctx, http.MethodDelete, token.URL(), nil, bearer(token))
	if err != nil {
		return err
	}

	return checkStatusNoContent(resp)
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
