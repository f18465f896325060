/*
Package towersdk is a client object model for the REST API of an AWX/Tower
style automation controller.

# Sessions

A Session holds everything needed to talk to one controller: its address, the
current token and when it expires, the authenticated user and a cache of the
API endpoints the controller advertises.

	s, err := towersdk.NewSession("https://tower.example.com")
	if err != nil {
		// errors.Is(err, towersdk.ErrInvalidAddress)
	}

	err = s.Authenticate(ctx, towersdk.Credentials{Username: "admin", Password: "secret"})

	fmt.Println(s)              // tower.example.com
	fmt.Println(s.Me().Username) // admin

NewSession never touches the network. Authenticate drops any token the session
held, creates a new one on the controller and loads the user it belongs to.

# Token Lifetime

A Session never refreshes its token. IsTokenValid reports whether the token is
usable at a given instant, and every authenticated call checks it against the
session clock before sending anything:

	Unauthenticated --Authenticate--> Authenticated --(now >= expiry)--> Expired
	Expired --Authenticate--> Authenticated

Once expired, calls fail with ErrSessionExpired until Authenticate succeeds
again.

# Endpoints

Logical endpoint names ("groups", "users", "me", ...) are resolved through the
controller's API root. The first ResolveEndpoint call for an unknown name fetches
the route table and caches every entry; later calls are answered from the cache.
Cached entries never change for the life of the Session.

# Entities

Entities such as Group and User keep a reference to the Session that produced
them, so they can make further calls on their own:

	groups, err := s.ListGroups(ctx)
	for _, g := range groups {
		children, err := g.ChildGroups(ctx)
		...
	}

A Group's rollup statistics (Stats) are a snapshot from when it was fetched.
Its Variables are parsed separately from the rest of the object: a malformed
variable payload leaves the group with an empty bag and a VariablesWarning
instead of failing it.

List operations keep going when a single item cannot be parsed. The items that
parsed are returned together with the per-item errors joined into one.

# Error Handling

Errors match one of the kinds below with errors.Is:

  - ErrInvalidAddress: the controller URL is not an absolute http(s) URL
  - ErrAuthentication: the controller rejected the credentials or token
  - ErrNetwork: the transport failed, timed out or was cancelled
  - ErrProtocol: a response did not have the expected shape
  - ErrUnknownEndpoint: the route table has no such endpoint
  - ErrDeserialization: a required entity field is missing or malformed
  - ErrSessionExpired: no valid token, authenticate again

Responses with an error status also carry an *APIError with the status code and
the controller's detail message.

# Thread Safety

A Session may be shared between goroutines. Token, expiration and user are
replaced together under a lock, and the endpoint cache has its own lock. The
transport is the *http.Client passed with WithHTTPClient, which owns timeouts
and anything else about how requests are sent.
*/
package towersdk
