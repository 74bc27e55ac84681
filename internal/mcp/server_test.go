package mcp

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/martinsuchenak/gwconsole/internal/gateway"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/model"
	"github.com/martinsuchenak/gwconsole/internal/session"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

func setupTestServer(t *testing.T, token string) *Server {
	t.Helper()
	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := mgmt.NewClient()
	return NewServer(session.NewManager(client, store), gateway.NewAccessor(client), gateway.NewCloner(client, store), token)
}

func TestServer_Tools(t *testing.T) {
	s := setupTestServer(t, "")

	var names []string
	for _, tool := range s.mcpServer.ListTools() {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	want := "gateway_clone,gateway_get,gateway_list,gateway_pending,gateway_publish,session_status"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("tools = %s, want %s", got, want)
	}
}

func TestServer_Auth(t *testing.T) {
	s := setupTestServer(t, "mcp-secret")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic mcp-secret"},
		{"wrong token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.HandleRequest(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", w.Code)
			}
		})
	}
}

func TestFormatGatewayDetail(t *testing.T) {
	gw := &model.Gateway{
		UID:         "gw-1",
		Name:        "Berlin-FW",
		IPv4Address: "10.1.0.1",
		Version:     "R81.20",
		OSName:      "Gaia",
		Domain:      &model.Domain{Name: "SMC User"},
		Interfaces:  []model.NetworkInterface{{Name: "eth0", IPv4Address: "10.1.0.1", IPv4MaskLength: "24"}},
	}

	got := formatGatewayDetail(gw)
	for _, want := range []string{"Name: Berlin-FW", "UID: gw-1", "IPv4: 10.1.0.1", "OS: Gaia", "Domain: SMC User", "eth0 10.1.0.1/24"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Hardware") {
		t.Errorf("Empty attributes should be omitted:\n%s", got)
	}
}
