package towersdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// routeTable is the controller's API root: logical name to path.
type routeTable map[string]json.RawMessage

// ResolveEndpoint returns the absolute URL of the logical endpoint name, e.g.
// "groups". A cached entry is returned without any I/O. Otherwise the
// controller's route table is fetched once, every entry is cached and the
// requested one returned. It fails with ErrUnknownEndpoint when the route table
// has no entry for name.
func (s *Session) ResolveEndpoint(ctx context.Context, name string) (string, error) {
	if u, ok := s.endpoints.Lookup(name); ok {
		return u, nil
	}

	s.discoveryMu.Lock()
	defer s.discoveryMu.Unlock()

	// Another caller may have discovered while we waited
	if u, ok := s.endpoints.Lookup(name); ok {
		return u, nil
	}

	if err := s.discover(ctx); err != nil {
		return "", err
	}

	if u, ok := s.endpoints.Lookup(name); ok {
		return u, nil
	}

	return "", fmt.Errorf("%w: %q is not in the route table of %s", ErrUnknownEndpoint, name, s)
}

// discover fetches the route table at the API root and caches its entries.
// Entries already cached are left untouched.
func (s *Session) discover(ctx context.Context) error {
	var headers map[string]string
	if token, err := s.validToken(); err == nil {
		headers = bearer(token)
	}

	resp, err := s.doRequest(ctx, http.MethodGet, s.apiBaseURL, nil, headers)
	if err != nil {
		return err
	}

	var routes routeTable
	if err := decodeJSON(resp, &routes); err != nil {
		return err
	}
	if routes == nil {
		return fmt.Errorf("%w: route table at %s is not an object", ErrProtocol, s.apiBaseURL)
	}

	for name, raw := range routes {
		var path string
		if err := json.Unmarshal(raw, &path); err != nil || path == "" {
			// Not a route, the API root also carries descriptive values
			continue
		}

		abs, err := s.resolveReference(path)
		if err != nil {
			continue
		}
		s.endpoints.StoreIfAbsent(name, abs)
	}

	return nil
}
