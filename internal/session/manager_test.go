package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

type call struct {
	serverURL string
	token     string
	op        mgmt.Operation
	payload   []byte
}

// fakeCaller records calls and answers from a per-operation table.
type fakeCaller struct {
	mu        sync.Mutex
	calls     []call
	responses map[mgmt.Operation]string
	errs      map[mgmt.Operation]error
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[mgmt.Operation]string),
		errs:      make(map[mgmt.Operation]error),
	}
}

func (f *fakeCaller) Call(ctx context.Context, serverURL, token string, op mgmt.Operation, payload any) (json.RawMessage, error) {
	data, _ := json.Marshal(payload)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{serverURL: serverURL, token: token, op: op, payload: data})
	if err := f.errs[op]; err != nil {
		return nil, err
	}
	return json.RawMessage(f.responses[op]), nil
}

func (f *fakeCaller) count(op mgmt.Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

// memStore is an in-memory KVStore with injectable failures.
type memStore struct {
	values    map[string]string
	setErr    error
	removeErr error
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memStore) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

func (s *memStore) SetMany(values map[string]string) error {
	if s.setErr != nil {
		return s.setErr
	}
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

func (s *memStore) Remove(keys ...string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func TestManager_Login_EmptyServerURL(t *testing.T) {
	caller := newFakeCaller()
	m := NewManager(caller, newMemStore())

	_, err := m.Login(context.Background(), Credentials{Username: "admin", Password: "secret"})

	var vErr *mgmt.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *mgmt.ValidationError, got %T (%v)", err, err)
	}
	if vErr.Message != "server URL required" {
		t.Errorf("expected 'server URL required', got %q", vErr.Message)
	}
	if len(caller.calls) != 0 {
		t.Errorf("expected no network calls, got %d", len(caller.calls))
	}
}

func TestManager_Login_Success(t *testing.T) {
	caller := newFakeCaller()
	caller.responses[mgmt.OpLogin] = `{"sid":"97BVpRfN4j81ogN-V2XqGYmw3DDwIhoSn0og8PiKDiM","url":"https://mgmt:443/web_api"}`
	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	defer store.Close()

	m := NewManager(caller, store)
	m.now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }

	sess, err := m.Login(context.Background(), Credentials{
		ServerURL: "https://mgmt/web_api",
		Username:  "admin",
		Password:  "secret",
		Domain:    "SMC User",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !sess.Authenticated() {
		t.Fatal("expected authenticated session")
	}
	if sess.Token != "97BVpRfN4j81ogN-V2XqGYmw3DDwIhoSn0og8PiKDiM" {
		t.Errorf("expected server sid as token, got %s", sess.Token)
	}

	if len(caller.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(caller.calls))
	}
	c := caller.calls[0]
	if c.token != "" {
		t.Errorf("login must not send a session token, got %q", c.token)
	}
	var body map[string]any
	json.Unmarshal(c.payload, &body)
	if body["username"] != "admin" || body["password"] != "secret" || body["domain"] != "SMC User" {
		t.Errorf("unexpected login payload %v", body)
	}
	if v, ok := body["enter-last-published-session"]; !ok || v != false {
		t.Errorf("expected enter-last-published-session=false, got %v", v)
	}

	// Persisted: a fresh manager over the same store restores it.
	restored, err := NewManager(caller, store).Restore()
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored == nil || restored.Token != sess.Token || restored.ServerURL != "https://mgmt/web_api" {
		t.Errorf("expected restored session, got %+v", restored)
	}
	if !restored.LoggedInAt.Equal(time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected LoggedInAt %v", restored.LoggedInAt)
	}
}

func TestManager_Login_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "server message returned verbatim",
			err:     &mgmt.APIError{Operation: mgmt.OpLogin, StatusCode: 400, Code: "err_login_failed", Message: "Authentication to server failed."},
			wantMsg: "Authentication to server failed.",
		},
		{
			name:    "generic message when server gives none",
			err:     &mgmt.APIError{Operation: mgmt.OpLogin, StatusCode: 200},
			wantMsg: "login failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller()
			caller.errs[mgmt.OpLogin] = tt.err
			store := newMemStore()
			m := NewManager(caller, store)

			_, err := m.Login(context.Background(), Credentials{ServerURL: "https://mgmt", Username: "admin"})
			var authErr *mgmt.AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *mgmt.AuthError, got %T (%v)", err, err)
			}
			if authErr.Message != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, authErr.Message)
			}
			if m.Current() != nil {
				t.Error("expected no current session")
			}
			if len(store.values) != 0 {
				t.Errorf("nothing should be persisted, got %v", store.values)
			}
		})
	}
}

func TestManager_Login_ConnectionError(t *testing.T) {
	caller := newFakeCaller()
	caller.errs[mgmt.OpLogin] = &mgmt.ConnectionError{Operation: mgmt.OpLogin, Err: errors.New("dial tcp: refused")}
	m := NewManager(caller, newMemStore())

	_, err := m.Login(context.Background(), Credentials{ServerURL: "https://mgmt", Username: "admin"})
	if !errors.Is(err, mgmt.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestManager_Login_EmptyUsername(t *testing.T) {
	caller := newFakeCaller()
	m := NewManager(caller, newMemStore())

	_, err := m.Login(context.Background(), Credentials{ServerURL: "https://mgmt"})
	var vErr *mgmt.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "username" {
		t.Fatalf("expected username validation error, got %v", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("expected no calls, got %d", len(caller.calls))
	}
}

func loggedIn(t *testing.T, caller *fakeCaller, store storage.KVStore) *Manager {
	t.Helper()
	caller.responses[mgmt.OpLogin] = `{"sid":"sid-1"}`
	m := NewManager(caller, store)
	if _, err := m.Login(context.Background(), Credentials{ServerURL: "https://mgmt", Username: "admin"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return m
}

func TestManager_Logout(t *testing.T) {
	caller := newFakeCaller()
	caller.responses[mgmt.OpLogout] = `{"message":"OK"}`
	store := newMemStore()
	m := loggedIn(t, caller, store)

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if caller.count(mgmt.OpLogout) != 1 {
		t.Errorf("expected one logout call, got %d", caller.count(mgmt.OpLogout))
	}
	last := caller.calls[len(caller.calls)-1]
	if last.token != "sid-1" {
		t.Errorf("expected logout with token sid-1, got %q", last.token)
	}
	if m.Current() != nil {
		t.Error("expected session to be cleared")
	}
	if len(store.values) != 0 {
		t.Errorf("expected persisted session removed, got %v", store.values)
	}
}

func TestManager_Logout_NetworkFailureSwallowed(t *testing.T) {
	caller := newFakeCaller()
	caller.errs[mgmt.OpLogout] = &mgmt.ConnectionError{Operation: mgmt.OpLogout, Err: errors.New("timeout")}
	store := newMemStore()
	m := loggedIn(t, caller, store)

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() should swallow network failure, got %v", err)
	}
	if m.Current() != nil || len(store.values) != 0 {
		t.Error("expected local session cleared despite logout failure")
	}
}

func TestManager_Logout_WithoutSession(t *testing.T) {
	caller := newFakeCaller()
	store := newMemStore()
	store.values[keyServerURL] = "https://mgmt"
	m := NewManager(caller, store)

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("expected no calls without a session, got %d", len(caller.calls))
	}
	if len(store.values) != 0 {
		t.Errorf("expected leftover keys removed, got %v", store.values)
	}
}

func TestManager_Logout_StoreFailure(t *testing.T) {
	caller := newFakeCaller()
	store := newMemStore()
	m := loggedIn(t, caller, store)
	store.removeErr = errors.New("disk full")

	if err := m.Logout(context.Background()); err == nil {
		t.Fatal("expected store failure to be returned")
	}
	if m.Current() != nil {
		t.Error("in-memory session must be cleared even when the store fails")
	}
}

func TestManager_Login_StoreFailureKeepsPreviousSession(t *testing.T) {
	store := newMemStore()
	store.values[keyServerURL] = "https://old.example.com"
	store.values[keyToken] = "old-sid"
	store.values[keyUsername] = "admin"

	caller := newFakeCaller()
	caller.responses[mgmt.OpLogin] = `{"sid":"new-sid"}`
	m := NewManager(caller, store)
	if _, err := m.Restore(); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	store.setErr = errors.New("disk full")
	_, err := m.Login(context.Background(), Credentials{ServerURL: "https://new.example.com", Username: "admin", Password: "secret"})
	if err == nil {
		t.Fatal("expected persistence failure")
	}
	if cur := m.Current(); cur == nil || cur.ServerURL != "https://old.example.com" || cur.Token != "old-sid" {
		t.Errorf("expected previous session to stay current, got %+v", cur)
	}

	restored, err := NewManager(newFakeCaller(), store).Restore()
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.ServerURL != "https://old.example.com" || restored.Token != "old-sid" {
		t.Errorf("stored session mixes servers and tokens: %+v", restored)
	}
}

func TestManager_Restore_Incomplete(t *testing.T) {
	store := newMemStore()
	store.values[keyServerURL] = "https://mgmt"

	sess, err := NewManager(newFakeCaller(), store).Restore()
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if sess != nil {
		t.Errorf("expected no session from incomplete record, got %+v", sess)
	}
}

func TestSession_Status(t *testing.T) {
	var nilSession *Session
	if nilSession.Status().Authenticated {
		t.Error("nil session must not be authenticated")
	}

	s := &Session{ServerURL: "https://mgmt", Token: "secret", Username: "admin"}
	st := s.Status()
	if !st.Authenticated || st.Username != "admin" {
		t.Errorf("unexpected status %+v", st)
	}
	data, _ := json.Marshal(st)
	if string(data) == "" || containsToken(data) {
		t.Errorf("status must not expose the token: %s", data)
	}
}

func containsToken(data []byte) bool {
	var m map[string]any
	json.Unmarshal(data, &m)
	for _, v := range m {
		if v == "secret" {
			return true
		}
	}
	return false
}

func TestSession_Fingerprint(t *testing.T) {
	a := &Session{ServerURL: "https://mgmt", Token: "sid-1"}
	b := &Session{ServerURL: "https://mgmt", Token: "sid-2"}

	if a.Fingerprint() == "" || a.Fingerprint() != (&Session{ServerURL: "https://mgmt", Token: "sid-1"}).Fingerprint() {
		t.Error("fingerprint must be stable for the same session")
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different tokens must have different fingerprints")
	}
	if strings.Contains(a.Fingerprint(), "sid-1") {
		t.Error("fingerprint must not contain the token")
	}
	var none *Session
	if none.Fingerprint() != "" {
		t.Error("unauthenticated session must have no fingerprint")
	}
}
