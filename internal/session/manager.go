package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

// Manager is the single writer of the process-wide session. Everything else
// reads it through Current.
type Manager struct {
	caller mgmt.Caller
	store  storage.KVStore

	mu      sync.RWMutex
	current *Session
	now     func() time.Time
}

// NewManager creates a Manager with no session. Call Restore to load a
// persisted one.
func NewManager(caller mgmt.Caller, store storage.KVStore) *Manager {
	return &Manager{
		caller: caller,
		store:  store,
		now:    time.Now,
	}
}

// Restore loads the persisted session, if any. An incomplete record is
// treated as no session.
func (m *Manager) Restore() (*Session, error) {
	values := make(map[string]string, len(allKeys))
	for _, key := range allKeys {
		v, ok, err := m.store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("restoring session: %w", err)
		}
		if ok {
			values[key] = v
		}
	}

	sess := &Session{
		ServerURL: values[keyServerURL],
		Token:     values[keyToken],
		Username:  values[keyUsername],
		Domain:    values[keyDomain],
	}
	if ts := values[keyLoggedInAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			sess.LoggedInAt = t
		}
	}

	if !sess.Authenticated() {
		log.Debug("No persisted session")
		return nil, nil
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	log.Info("Session restored", "server", sess.ServerURL, "username", sess.Username)
	return copySession(sess), nil
}

// Current returns a copy of the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySession(m.current)
}

type loginRequest struct {
	Username                  string `json:"username"`
	Password                  string `json:"password"`
	Domain                    string `json:"domain,omitempty"`
	EnterLastPublishedSession bool   `json:"enter-last-published-session"`
}

type loginResponse struct {
	SID string `json:"sid"`
}

// Login exchanges credentials for a session token, persists the session and
// makes it current.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*Session, error) {
	serverURL := strings.TrimSpace(creds.ServerURL)
	if serverURL == "" {
		return nil, mgmt.Validation("server_url", "server URL required")
	}
	if strings.TrimSpace(creds.Username) == "" {
		return nil, mgmt.Validation("username", "username required")
	}

	log.Debug("Login requested", "server", serverURL, "username", creds.Username, "domain", creds.Domain)

	body, err := m.caller.Call(ctx, serverURL, "", mgmt.OpLogin, loginRequest{
		Username:                  creds.Username,
		Password:                  creds.Password,
		Domain:                    creds.Domain,
		EnterLastPublishedSession: false,
	})
	if err != nil {
		var apiErr *mgmt.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = "login failed"
			}
			log.Warn("Login rejected", "server", serverURL, "username", creds.Username, "message", msg)
			return nil, &mgmt.AuthError{Message: msg}
		}
		return nil, err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.SID == "" {
		return nil, &mgmt.AuthError{Message: "login failed"}
	}

	sess := &Session{
		ServerURL:  serverURL,
		Token:      resp.SID,
		Username:   creds.Username,
		Domain:     creds.Domain,
		LoggedInAt: m.now().UTC().Truncate(time.Second),
	}
	if err := m.persist(sess); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	log.Info("Login successful", "server", serverURL, "username", creds.Username)
	return copySession(sess), nil
}

// Logout ends the session on the server when possible and always erases the
// local session. Only a failure to erase the persisted state is returned.
func (m *Manager) Logout(ctx context.Context) error {
	sess := m.Current()
	if sess.Authenticated() {
		if _, err := m.caller.Call(ctx, sess.ServerURL, sess.Token, mgmt.OpLogout, nil); err != nil {
			log.Warn("Logout request failed, clearing local session anyway", "server", sess.ServerURL, "error", err)
		} else {
			log.Info("Logged out", "server", sess.ServerURL)
		}
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Remove(allKeys...); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// persist replaces the stored session in one write so a failure never pairs
// one server's URL with another session's token.
func (m *Manager) persist(sess *Session) error {
	err := m.store.SetMany(map[string]string{
		keyServerURL:  sess.ServerURL,
		keyToken:      sess.Token,
		keyUsername:   sess.Username,
		keyDomain:     sess.Domain,
		keyLoggedInAt: sess.LoggedInAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
