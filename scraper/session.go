package scraper

import (
	"fmt"
	"net/http"
	"strings"
)

// Session is the pre-obtained login cookie sent with every request. It is
// immutable once parsed.
type Session struct {
	cookies []*http.Cookie
}

// ParseSession splits a raw browser cookie string ("k1=v1; k2=v2") on ";"
// and then on the first "=" of each segment. Empty segments are skipped.
func ParseSession(raw string) (Session, error) {
	var cookies []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return Session{}, fmt.Errorf("malformed cookie segment %q", part)
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return Session{cookies: cookies}, nil
}

// Empty reports whether the session carries no cookies.
func (s Session) Empty() bool {
	return len(s.cookies) == 0
}

// Values returns the cookies as a name to value mapping.
func (s Session) Values() map[string]string {
	out := make(map[string]string, len(s.cookies))
	for _, c := range s.cookies {
		out[c.Name] = c.Value
	}
	return out
}

// Header renders the Cookie request header, in the order given.
func (s Session) Header() string {
	parts := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
