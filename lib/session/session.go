package session

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"kite-agent/lib/timezone"
)

// Cookies maps a cookie domain (e.g. ".sit.edu.cn") to the name/value
// pairs set on it. Lookups match by domain suffix so a cookie stored on
// ".sit.edu.cn" applies to "jwxt.sit.edu.cn" as well.
type Cookies map[string]map[string]string

// Session is one campus account's login state: the ldap credential pair
// plus every cookie the portal and its subsystems have handed out.
type Session struct {
	Account    string    `cbor:"account"`
	Password   string    `cbor:"password"`
	Cookies    Cookies   `cbor:"cookies"`
	LastUpdate time.Time `cbor:"last_update"`
}

func New(account, password string) *Session {
	return &Session{
		Account:    account,
		Password:   password,
		Cookies:    Cookies{},
		LastUpdate: timezone.Now(),
	}
}

// matchingDomains returns the stored domain keys that are a suffix of
// the request domain, in lexicographic order so the merge result is
// deterministic.
func (s *Session) matchingDomains(domain string) []string {
	var keys []string
	for key := range s.Cookies {
		if strings.HasSuffix(domain, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// GetCookieString builds the value of the Cookie header for a request
// to the given domain. When two stored domains define the same cookie
// name, the later domain in lexicographic order wins. Returns "" when
// nothing applies.
func (s *Session) GetCookieString(domain string) string {
	merged := make(map[string]string)
	for _, key := range s.matchingDomains(domain) {
		for name, value := range s.Cookies[key] {
			merged[name] = value
		}
	}
	if len(merged) == 0 {
		return ""
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(merged[name])
		b.WriteByte(';')
	}
	return b.String()
}

// QueryCookie looks up a single cookie by name across every stored
// domain that applies to the request domain.
func (s *Session) QueryCookie(domain, name string) (string, bool) {
	for _, key := range s.matchingDomains(domain) {
		if value, ok := s.Cookies[key][name]; ok {
			return value, true
		}
	}
	return "", false
}

// SyncCookies merges cookies observed on a response into the session.
// A cookie that declares its own domain is stored there, otherwise it
// goes under defaultDomain (the host the request was sent to).
func (s *Session) SyncCookies(defaultDomain string, cookies []*http.Cookie) {
	if s.Cookies == nil {
		s.Cookies = Cookies{}
	}
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = defaultDomain
		}
		if domain == "" {
			continue
		}
		if s.Cookies[domain] == nil {
			s.Cookies[domain] = make(map[string]string)
		}
		s.Cookies[domain][c.Name] = c.Value
	}
}

// ClearCookies drops every stored cookie, used before a fresh login
// attempt so stale state cannot leak into the new session.
func (s *Session) ClearCookies() {
	s.Cookies = Cookies{}
}

// Touch records that the session was just used over the network.
func (s *Session) Touch() {
	s.LastUpdate = timezone.Now()
}
