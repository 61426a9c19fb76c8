package transport

import (
	"encoding/json"
	"net/http"
	"sort"
)

// Session is the opaque cookie bundle the companion service hands out.
// Values are immutable: every Send returns a new Session and callers replace
// the old one with it.
type Session struct {
	cookies []*http.Cookie
}

// NewSession copies cookies into a new Session.
func NewSession(cookies []*http.Cookie) Session {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return Session{cookies: out}
}

// Cookies returns a copy of the bundle.
func (s Session) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, len(s.cookies))
	for i, c := range s.cookies {
		cp := *c
		out[i] = &cp
	}
	return out
}

// Len returns the number of cookies in the bundle.
func (s Session) Len() int { return len(s.cookies) }

// IsZero reports whether the session carries no cookies.
func (s Session) IsZero() bool { return len(s.cookies) == 0 }

// Value returns the value of the named cookie.
func (s Session) Value(name string) (string, bool) {
	for _, c := range s.cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MarshalJSON stores name/value pairs only. The jar re-scopes them to the
// request host on every Send.
func (s Session) MarshalJSON() ([]byte, error) {
	stored := make([]storedCookie, len(s.cookies))
	for i, c := range s.cookies {
		stored[i] = storedCookie{Name: c.Name, Value: c.Value}
	}
	return json.Marshal(stored)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	*s = NewSession(cookies)
	return nil
}
