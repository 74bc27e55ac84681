package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/martinsuchenak/gwconsole/internal/gateway"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/session"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

// mgmtServer emulates the management server's web API.
type mgmtServer struct {
	mu          sync.Mutex
	ops         []string
	failCreate  bool
	failPublish bool
}

func (m *mgmtServer) setFailures(create, publish bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = create
	m.failPublish = publish
}

func (m *mgmtServer) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *mgmtServer) count(op string) int {
	n := 0
	for _, o := range m.calls() {
		if o == op {
			n++
		}
	}
	return n
}

const gatewaysJSON = `[
	{"uid":"gw-1","name":"Berlin-FW","type":"simple-gateway","ipv4-address":"10.1.0.1","version":"R81.20","os-name":"Gaia",
	 "interfaces":[{"name":"eth0","ipv4-address":"10.1.0.1","ipv4-mask-length":24}]},
	{"uid":"gw-2","name":"Paris-FW","type":"simple-gateway","ipv4-address":"10.2.0.1","version":"R81.10","os-name":"Gaia"},
	{"uid":"gw-3","name":"Bern-Lab","type":"simple-gateway","ipv4-address":"192.168.7.10"}
]`

func (m *mgmtServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.URL.Path, "/web_api/")
	m.mu.Lock()
	m.ops = append(m.ops, op)
	failCreate, failPublish := m.failCreate, m.failPublish
	m.mu.Unlock()

	reply := func(status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}

	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)

	if op != "login" && r.Header.Get(mgmt.SessionHeader) != "sid-1" {
		reply(http.StatusUnauthorized, `{"code":"generic_err_wrong_session_id","message":"Wrong session id [bad]."}`)
		return
	}

	switch op {
	case "login":
		if req["password"] != "secret" {
			reply(http.StatusBadRequest, `{"code":"err_login_failed","message":"Authentication to server failed."}`)
			return
		}
		reply(http.StatusOK, `{"sid":"sid-1","url":"https://mgmt/web_api","session-timeout":600}`)
	case "logout":
		reply(http.StatusOK, `{"message":"OK"}`)
	case "show-simple-gateways":
		reply(http.StatusOK, `{"objects":`+gatewaysJSON+`,"from":1,"to":3,"total":3}`)
	case "show-simple-gateway":
		var all []map[string]any
		_ = json.Unmarshal([]byte(gatewaysJSON), &all)
		for _, gw := range all {
			if gw["uid"] == req["uid"] {
				data, _ := json.Marshal(gw)
				reply(http.StatusOK, string(data))
				return
			}
		}
		reply(http.StatusNotFound, `{"code":"generic_err_object_not_found","message":"Requested object not found"}`)
	case "add-simple-gateway":
		if failCreate {
			reply(http.StatusBadRequest, `{"code":"err_validation_failed","message":"Validation failed: name already in use."}`)
			return
		}
		reply(http.StatusOK, `{"uid":"gw-new","name":"`+req["name"].(string)+`","ipv4-address":"`+req["ip_address"].(string)+`"}`)
	case "publish":
		if failPublish {
			reply(http.StatusInternalServerError, `{"code":"generic_error","message":"Publish failed: database locked"}`)
			return
		}
		reply(http.StatusOK, `{"task-id":"task-42"}`)
	default:
		reply(http.StatusNotFound, `{"code":"generic_err_command_not_found","message":"Unknown command"}`)
	}
}

type testEnv struct {
	handler   *Handler
	mux       *http.ServeMux
	mgmt      *mgmtServer
	server    *httptest.Server
	serverURL string
	store     *storage.SQLiteStorage
}

// setupTestHandler wires a Handler to a SQLite store and an emulated
// management server.
func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()

	ms := &mgmtServer{}
	srv := httptest.NewServer(ms)
	t.Cleanup(srv.Close)

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := mgmt.NewClient()
	h := NewHandler(
		session.NewManager(client, store),
		gateway.NewAccessor(client),
		gateway.NewCloner(client, store),
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testEnv{
		handler:   h,
		mux:       mux,
		mgmt:      ms,
		server:    srv,
		serverURL: srv.URL + "/web_api",
		store:     store,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	w := e.do(t, "POST", "/api/session", `{"server_url":"`+e.serverURL+`/","username":"admin","password":"secret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}
