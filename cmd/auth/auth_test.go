package auth

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/martinsuchenak/gwconsole/internal/session"
)

func TestReadPasswordLine(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"newline", "s3cret\n", "s3cret", false},
		{"crlf", "s3cret\r\n", "s3cret", false},
		{"no newline", "s3cret", "s3cret", false},
		{"keeps spaces", " pass word \n", " pass word ", false},
		{"empty", "", "", true},
		{"blank line", "\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPasswordLine(strings.NewReader(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, session.Status{})
	if buf.String() != "Not logged in\n" {
		t.Errorf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	printStatus(&buf, session.Status{Authenticated: true, ServerURL: "https://mgmt/web_api", Username: "admin", Domain: "Global", LoggedInAt: &at})
	out := buf.String()
	for _, want := range []string{"https://mgmt/web_api", "admin", "Global", "Logged in:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}
