package towersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxPages bounds how many pages a single list call follows.
const maxPages = 1000

// doRequest performs an HTTP request against the controller. body, when not
// nil, is encoded as JSON. Transport failures, including context cancellation
// and timeouts, are reported as ErrNetwork.
func (s *Session) doRequest(
	ctx context.Context,
	method, rawURL string,
	body any,
	headers map[string]string,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %w", ErrNetwork, err)
	}

	return resp, nil
}

// doAuthRequest performs a request carrying the session's bearer token. It
// fails with ErrSessionExpired, without sending anything, when the token is
// missing or expired.
func (s *Session) doAuthRequest(
	ctx context.Context,
	method, rawURL string,
	body any,
) (*http.Response, error) {
	token, err := s.validToken()
	if err != nil {
		return nil, err
	}

	return s.doRequest(ctx, method, rawURL, body, bearer(token))
}

func bearer(t *Token) map[string]string {
	return map[string]string{"Authorization": "Bearer " + t.Value()}
}

// decodeJSON reads the response and decodes a 2xx body into target.
// Non-2xx responses become typed errors; undecodable bodies are ErrProtocol.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	// Read body once for both error parsing and success decoding
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrProtocol, err)
	}

	return nil
}

// checkStatusNoContent returns a typed error unless the response is a 2xx.
func checkStatusNoContent(resp *http.Response) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	return nil
}

// page is one page of a controller list response.
type page struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// walkPages GETs rawURL and every following page, calling fn for each result
// item. The token is checked before every page.
func (s *Session) walkPages(ctx context.Context, rawURL string, fn func(item json.RawMessage)) error {
	seen := make(map[string]bool)
	next := rawURL

	for range maxPages {
		if next == "" || seen[next] {
			return nil
		}
		seen[next] = true

		resp, err := s.doAuthRequest(ctx, http.MethodGet, next, nil)
		if err != nil {
			return err
		}

		var p page
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		if p.Results == nil {
			return fmt.Errorf("%w: list response from %s has no results", ErrProtocol, next)
		}

		for _, item := range p.Results {
			fn(item)
		}

		next = ""
		if p.Next != nil && *p.Next != "" {
			if next, err = s.resolveReference(*p.Next); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w: more than %d pages at %s", ErrProtocol, maxPages, rawURL)
}

// joinURL appends path elements to base, keeping a trailing slash as the
// controller's routes expect.
func joinURL(base string, elem ...string) (string, error) {
	if len(elem) > 0 && !strings.HasSuffix(elem[len(elem)-1], "/") {
		elem[len(elem)-1] += "/"
	}
	u, err := url.JoinPath(base, elem...)
	if err != nil {
		return "", fmt.Errorf("%w: bad URL %q: %w", ErrProtocol, base, err)
	}
	return u, nil
}
