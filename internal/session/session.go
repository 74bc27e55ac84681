// Package session owns the operator's authenticated session with the
// management server: login, logout and the persisted token.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Persisted keys.
const (
	keyServerURL  = "session.server_url"
	keyToken      = "session.token"
	keyUsername   = "session.username"
	keyDomain     = "session.domain"
	keyLoggedInAt = "session.logged_in_at"
)

var allKeys = []string{keyServerURL, keyToken, keyUsername, keyDomain, keyLoggedInAt}

// Session is the authenticated context for every call after login.
type Session struct {
	ServerURL  string
	Token      string
	Username   string
	Domain     string
	LoggedInAt time.Time
}

// Authenticated reports whether s can be used for a network operation.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != "" && s.ServerURL != ""
}

// Fingerprint identifies the server-side session without revealing its
// token. It is empty for an unauthenticated session.
func (s *Session) Fingerprint() string {
	if !s.Authenticated() {
		return ""
	}
	sum := sha256.Sum256([]byte(s.ServerURL + "\x00" + s.Token))
	return hex.EncodeToString(sum[:16])
}

// Status is the session as shown to an operator. It never includes the token.
type Status struct {
	Authenticated bool       `json:"authenticated"`
	ServerURL     string     `json:"server_url,omitempty"`
	Username      string     `json:"username,omitempty"`
	Domain        string     `json:"domain,omitempty"`
	LoggedInAt    *time.Time `json:"logged_in_at,omitempty"`
}

// Status returns the operator-facing view of s.
func (s *Session) Status() Status {
	if !s.Authenticated() {
		return Status{}
	}
	st := Status{
		Authenticated: true,
		ServerURL:     s.ServerURL,
		Username:      s.Username,
		Domain:        s.Domain,
	}
	if !s.LoggedInAt.IsZero() {
		t := s.LoggedInAt
		st.LoggedInAt = &t
	}
	return st
}

// Credentials are the login inputs.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
	Domain    string
}
