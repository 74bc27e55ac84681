package config

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"mgmt.example.com", "https://mgmt.example.com"},
		{"mgmt.example.com/web_api/", "https://mgmt.example.com/web_api"},
		{"https://10.0.0.5/web_api//", "https://10.0.0.5/web_api"},
		{"http://localhost:8443/web_api", "http://localhost:8443/web_api"},
		{" https://mgmt/web_api ", "https://mgmt/web_api"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeServerURL(tt.in); got != tt.want {
				t.Errorf("NormalizeServerURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfig_Normalize(t *testing.T) {
	cfg := &Config{
		DataDir:         " ",
		ServerURL:       "mgmt.example.com/web_api/",
		Domain:          " SMC User ",
		RefreshSchedule: " @every 5m ",
	}
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if cfg.DataDir != "./data" || cfg.ListenAddr != ":8080" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.ServerURL != "https://mgmt.example.com/web_api" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Domain != "SMC User" || cfg.RefreshSchedule != "@every 5m" {
		t.Errorf("values not trimmed: %+v", cfg)
	}
}

func TestConfig_NegativeTimeout(t *testing.T) {
	cfg := &Config{RequestTimeout: -time.Second}
	if err := cfg.normalize(); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestConfig_AuthFlags(t *testing.T) {
	cfg := &Config{}
	if cfg.IsAPIAuthEnabled() || cfg.IsMCPAuthEnabled() {
		t.Error("auth should be disabled without tokens")
	}

	cfg.APIAuthToken = "api-secret"
	cfg.MCPAuthToken = "mcp-secret"
	if !cfg.IsAPIAuthEnabled() || !cfg.IsMCPAuthEnabled() {
		t.Error("auth should be enabled with tokens")
	}
	if s := cfg.String(); strings.Contains(s, "secret") {
		t.Errorf("String leaks a token: %s", s)
	}
}

func TestGetFlags(t *testing.T) {
	if got := len(GetFlags()); got != 9 {
		t.Errorf("GetFlags returned %d flags, want 9", got)
	}
}
