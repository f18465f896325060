package towersdk

import (
	"time"
)

// User is a controller user account.
type User struct {
	ID              int       `json:"id"`
	Type            string    `json:"type"`
	URL             string    `json:"url"`
	Created         time.Time `json:"created"`
	Username        string    `json:"username"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	IsSuperuser     bool      `json:"is_superuser"`
	IsSystemAuditor bool      `json:"is_system_auditor"`

	session *Session
}

// ParseUser builds a User from a controller JSON object and binds it to s.
// It fails with a *DeserializationError when id, url or type are missing or
// malformed.
func ParseUser(data []byte, s *Session) (*User, error) {
	if _, err := entityFields("user", data); err != nil {
		return nil, err
	}

	u := &User{session: s}
	if err := decodeEntity("user", data, u); err != nil {
		return nil, err
	}

	if s != nil {
		abs, err := s.resolveReference(u.URL)
		if err != nil {
			return nil, &DeserializationError{Entity: "user", Field: "url", Reason: "not a URL"}
		}
		u.URL = abs
	}

	return u, nil
}

// Session returns the session the user was fetched through.
func (u *User) Session() *Session { return u.session }

// DisplayName returns "First Last" when set, the username otherwise.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}
