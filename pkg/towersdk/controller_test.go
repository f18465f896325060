package towersdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

/*
 * fakeController is a small in-process controller used as the transport
 * collaborator in tests. It counts every request per "METHOD path" so tests
 * can assert on cache hits and on calls that must never be sent.
 */

const (
	testUsername = "admin"
	testPassword = "Admin123!"
)

// t0 is the fixed session clock reading tests authenticate at.
var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeController struct {
	srv *httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	issued   int
	revoked  int
	current  string
	lifetime time.Duration

	// now is the controller's clock, shared with the session under test.
	now func() time.Time

	// tokenValue, when set, replaces the generated token values.
	tokenValue string
	// emptyToken makes token responses carry an empty token.
	emptyToken bool
	// omitExpires leaves "expires" out of token responses.
	omitExpires bool
	// meStatus, when set, is the status the me endpoint fails with.
	meStatus int
	// rootBody, when set, replaces the route table.
	rootBody string
	// groups are served from the groups endpoints by id.
	groups map[int]string
	// children are the pages served for /groups/{id}/children/.
	children map[int][]string
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()

	fc := &fakeController{
		hits:     make(map[string]int),
		lifetime: time.Hour,
		now:      func() time.Time { return t0 },
		groups:   make(map[int]string),
		children: make(map[int][]string),
	}
	fc.srv = httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(fc.srv.Close)

	return fc
}

// URL returns the controller URL with a trailing path, as users tend to type it.
func (fc *fakeController) URL() string {
	return fc.srv.URL + "/"
}

func (fc *fakeController) Hits(key string) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.hits[key]
}

// Revoked returns how many tokens were deleted.
func (fc *fakeController) Revoked() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.revoked
}

func (fc *fakeController) TotalHits() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	total := 0
	for _, n := range fc.hits {
		total += n
	}
	return total
}

func (fc *fakeController) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	fc.hits[r.Method+" "+r.URL.Path]++

	switch {
	case r.Method == http.MethodGet && path == "/api/v2/":
		fc.serveRoot(w)
	case r.Method == http.MethodPost && path == "/api/v2/tokens/":
		fc.serveTokenCreate(w, r)
	case !fc.authorized(r):
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Authentication credentials were not provided."}`)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/api/v2/tokens/"):
		fc.current = ""
		fc.revoked++
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && path == "/api/v2/me/" && fc.meStatus != 0:
		writeJSON(w, fc.meStatus, `{"detail":"A server error occurred."}`)
	case r.Method == http.MethodGet && path == "/api/v2/me/":
		writeJSON(w, http.StatusOK, `{"count":1,"next":null,"previous":null,"results":[`+userJSON+`]}`)
	case r.Method == http.MethodGet && path == "/api/v2/groups/":
		fc.serveGroupList(w)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v2/groups/"):
		fc.serveGroup(w, strings.TrimPrefix(path, "/api/v2/groups/"))
	default:
		writeJSON(w, http.StatusNotFound, `{"detail":"Not found."}`)
	}
}

func (fc *fakeController) serveRoot(w http.ResponseWriter) {
	if fc.rootBody != "" {
		writeJSON(w, http.StatusOK, fc.rootBody)
		return
	}
	writeJSON(w, http.StatusOK, `{
		"ping": "/api/v2/ping/",
		"me": "/api/v2/me/",
		"tokens": "/api/v2/tokens/",
		"users": "/api/v2/users/",
		"groups": "/api/v2/groups/",
		"hosts": "/api/v2/hosts/",
		"inventory": "/api/v2/inventories/",
		"custom_logo": ""
	}`)
}

func (fc *fakeController) serveTokenCreate(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != testUsername || pass != testPassword {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Invalid username/password."}`)
		return
	}

	fc.issued++
	id := fc.issued
	fc.current = fmt.Sprintf("token-%d", id)
	if fc.tokenValue != "" {
		fc.current = fc.tokenValue
	}
	if fc.emptyToken {
		fc.current = ""
	}

	resp := map[string]any{
		"id":    id,
		"type":  "o_auth2_access_token",
		"url":   fmt.Sprintf("/api/v2/tokens/%d/", id),
		"token": fc.current,
		"scope": "write",
	}
	if !fc.omitExpires {
		resp["expires"] = fc.now().Add(fc.lifetime).Format(time.RFC3339)
	}

	body, _ := json.Marshal(resp)
	writeJSON(w, http.StatusCreated, string(body))
}

func (fc *fakeController) serveGroupList(w http.ResponseWriter) {
	items := make([]string, 0, len(fc.groups))
	for id := 1; id <= len(fc.groups)+10; id++ {
		if g, ok := fc.groups[id]; ok {
			items = append(items, g)
		}
	}
	writeJSON(w, http.StatusOK, pageJSON(items, ""))
}

func (fc *fakeController) serveGroup(w http.ResponseWriter, rest string) {
	var id int
	var tail string
	parts := strings.SplitN(rest, "/", 2)
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil {
		writeJSON(w, http.StatusNotFound, `{"detail":"Not found."}`)
		return
	}
	if len(parts) == 2 {
		tail = parts[1]
	}

	switch {
	case tail == "":
		g, ok := fc.groups[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, `{"detail":"Not found."}`)
			return
		}
		writeJSON(w, http.StatusOK, g)
	case tail == "variable_data/":
		writeJSON(w, http.StatusOK, `{"ansible_user":"deploy","ports":[80,443]}`)
	case strings.HasPrefix(tail, "children/"):
		pages := fc.children[id]
		n := 0
		if strings.Contains(tail, "page=2") {
			n = 1
		}
		if n >= len(pages) {
			writeJSON(w, http.StatusOK, pageJSON(nil, ""))
			return
		}
		writeJSON(w, http.StatusOK, pages[n])
	default:
		writeJSON(w, http.StatusNotFound, `{"detail":"Not found."}`)
	}
}

func (fc *fakeController) authorized(r *http.Request) bool {
	return fc.current != "" && r.Header.Get("Authorization") == "Bearer "+fc.current
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func pageJSON(items []string, next string) string {
	nextJSON := "null"
	if next != "" {
		nextJSON = `"` + next + `"`
	}
	return fmt.Sprintf(`{"count":%d,"next":%s,"previous":null,"results":[%s]}`,
		len(items), nextJSON, strings.Join(items, ","))
}

func groupJSON(id int, name, variables string) string {
	return fmt.Sprintf(`{
		"id": %d,
		"type": "group",
		"url": "/api/v2/groups/%d/",
		"created": "2023-11-02T09:15:00.123456Z",
		"modified": "2024-01-20T17:45:30.5Z",
		"name": %q,
		"description": "web tier",
		"inventory": 3,
		"variables": %s,
		"has_active_failures": true,
		"total_hosts": 12,
		"hosts_with_active_failures": 2,
		"total_groups": 4,
		"groups_with_active_failures": 1,
		"has_inventory_sources": false
	}`, id, id, name, variables)
}

const userJSON = `{
	"id": 1,
	"type": "user",
	"url": "/api/v2/users/1/",
	"created": "2023-01-01T00:00:00Z",
	"username": "admin",
	"first_name": "Ada",
	"last_name": "Admin",
	"email": "admin@example.com",
	"is_superuser": true,
	"is_system_auditor": false
}`

// testClock is a settable session clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// newTestSession returns a session on fc whose clock starts at t0.
func newTestSession(t *testing.T, fc *fakeController, opts ...Option) (*Session, *testClock) {
	t.Helper()

	clock := &testClock{now: t0}
	fc.now = clock.Now
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	s, err := NewSession(fc.URL(), opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, clock
}

var validCreds = Credentials{Username: testUsername, Password: testPassword}
