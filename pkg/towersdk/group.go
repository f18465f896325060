package towersdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// GroupStats are the rollup statistics the controller computes over a group's
// subtree. They are a snapshot taken when the group was fetched.
type GroupStats struct {
	HasActiveFailures        bool `json:"has_active_failures"`
	TotalHosts               int  `json:"total_hosts"`
	HostsWithActiveFailures  int  `json:"hosts_with_active_failures"`
	TotalGroups              int  `json:"total_groups"`
	GroupsWithActiveFailures int  `json:"groups_with_active_failures"`
	HasInventorySources      bool `json:"has_inventory_sources"`
}

// Group is a snapshot of one inventory group.
type Group struct {
	ID          int       `json:"id"`
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Inventory   int       `json:"inventory"`

	// Variables are parsed apart from the fields above and left out of the
	// group's JSON encoding.
	Variables Variables `json:"-"`

	stats       GroupStats
	varsWarning error
	session     *Session
}

// groupFields is Group without its methods, for plain JSON coding.
type groupFields Group

// ParseGroup builds a Group from a controller JSON object and binds it to s.
// It fails with a *DeserializationError when id, url or type are missing or
// malformed, or when another known field has the wrong type. A malformed
// variables field does not fail the parse: the group gets an empty bag and
// VariablesWarning reports why.
func ParseGroup(data []byte, s *Session) (*Group, error) {
	fields, err := entityFields("group", data)
	if err != nil {
		return nil, err
	}

	g := &Group{session: s}
	if err := decodeEntity("group", data, (*groupFields)(g)); err != nil {
		return nil, err
	}
	if err := decodeEntity("group", data, &g.stats); err != nil {
		return nil, err
	}

	if s != nil {
		if g.URL, err = s.resolveReference(g.URL); err != nil {
			return nil, &DeserializationError{Entity: "group", Field: "url", Reason: "not a URL"}
		}
	}

	vars, err := parseVariables(fields["variables"])
	if err != nil {
		g.Variables = Variables{}
		g.varsWarning = fmt.Errorf("group %d: ignoring malformed variables: %w", g.ID, err)
	} else {
		g.Variables = vars
	}

	return g, nil
}

// MarshalJSON encodes the group with its rollup statistics and without its
// variables.
func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		groupFields
		GroupStats
	}{groupFields(*g), g.stats})
}

// Stats returns the rollup statistics captured when the group was fetched.
func (g *Group) Stats() GroupStats { return g.stats }

// Session returns the session the group was fetched through.
func (g *Group) Session() *Session { return g.session }

// VariablesWarning reports why the variables field was ignored, nil when it
// parsed.
func (g *Group) VariablesWarning() error { return g.varsWarning }

// ChildGroups lists the direct child groups of g through its session. It
// fails with ErrSessionExpired, without any network call, when the session's
// token is not valid. Children that fail to parse are reported in the joined
// error while the others are still returned.
func (g *Group) ChildGroups(ctx context.Context) ([]*Group, error) {
	s, err := g.liveSession()
	if err != nil {
		return nil, err
	}

	base, err := s.ResolveEndpoint(ctx, "groups")
	if err != nil {
		return nil, err
	}

	childrenURL, err := joinURL(base, strconv.Itoa(g.ID), "children")
	if err != nil {
		return nil, err
	}

	return s.listGroups(ctx, childrenURL)
}

// FetchVariables loads the group's current variables from the controller. The
// snapshot in g.Variables is left as it is.
func (g *Group) FetchVariables(ctx context.Context) (Variables, error) {
	s, err := g.liveSession()
	if err != nil {
		return nil, err
	}

	varsURL, err := joinURL(g.URL, "variable_data")
	if err != nil {
		return nil, err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, varsURL, nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := decodeJSON(resp, &raw); err != nil {
		return nil, err
	}

	vars, err := parseVariables(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: variable data of group %d: %w", ErrProtocol, g.ID, err)
	}
	return vars, nil
}

// liveSession returns the owning session if its token is valid right now.
func (g *Group) liveSession() (*Session, error) {
	s := g.session
	if s == nil {
		return nil, fmt.Errorf("%w: group %d is not bound to a session", ErrSessionExpired, g.ID)
	}
	if !s.IsTokenValid(s.now()) {
		return nil, ErrSessionExpired
	}
	return s, nil
}

// ListGroups lists every group visible to the authenticated user. Groups that
// fail to parse are reported in the joined error while the others are still
// returned.
func (s *Session) ListGroups(ctx context.Context) ([]*Group, error) {
	if !s.IsTokenValid(s.now()) {
		return nil, ErrSessionExpired
	}

	groupsURL, err := s.ResolveEndpoint(ctx, "groups")
	if err != nil {
		return nil, err
	}

	return s.listGroups(ctx, groupsURL)
}

// GetGroup fetches a single group by id.
func (s *Session) GetGroup(ctx context.Context, id int) (*Group, error) {
	if !s.IsTokenValid(s.now()) {
		return nil, ErrSessionExpired
	}

	base, err := s.ResolveEndpoint(ctx, "groups")
	if err != nil {
		return nil, err
	}

	groupURL, err := joinURL(base, strconv.Itoa(id))
	if err != nil {
		return nil, err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, groupURL, nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := decodeJSON(resp, &raw); err != nil {
		return nil, err
	}

	return ParseGroup(raw, s)
}

func (s *Session) listGroups(ctx context.Context, rawURL string) ([]*Group, error) {
	var (
		groups []*Group
		errs   []error
	)

	err := s.walkPages(ctx, rawURL, func(item json.RawMessage) {
		g, err := ParseGroup(item, s)
		if err != nil {
			errs = append(errs, err)
			return
		}
		groups = append(groups, g)
	})
	if err != nil {
		return groups, err
	}

	return groups, errors.Join(errs...)
}
