// Package mgmt is the client for the security management server's JSON web
// API. Each call performs exactly one request and never retries.
package mgmt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/metrics"
)

// SessionHeader carries the session id on every authenticated request.
const SessionHeader = "X-chkp-sid"

// Caller performs one management API operation.
type Caller interface {
	Call(ctx context.Context, serverURL, sessionToken string, op Operation, payload any) (json.RawMessage, error)
}

// Client is the HTTP implementation of Caller. It holds no session state.
type Client struct {
	httpClient *http.Client
	userAgent  string
	metrics    *metrics.Registry
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout. Zero keeps the transport default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithInsecureSkipVerify disables certificate verification. Management
// servers commonly run with self-signed certificates.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(c *Client) {
		if !skip {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.httpClient.Transport = transport
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(r *metrics.Registry) ClientOption {
	return func(c *Client) {
		c.metrics = r
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  "gwconsole",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL joins the server base URL and an operation name.
func URL(serverURL string, op Operation) string {
	return strings.TrimRight(serverURL, "/") + "/" + string(op)
}

// Call posts payload to serverURL/op and returns the decoded response body
// when the server reports success. Server-reported failures come back as
// *APIError and transport failures as *ConnectionError.
func (c *Client) Call(ctx context.Context, serverURL, sessionToken string, op Operation, payload any) (json.RawMessage, error) {
	if serverURL == "" {
		return nil, Validation("server_url", "server URL required")
	}
	if !op.Valid() {
		return nil, Validation("operation", fmt.Sprintf("unknown operation %q", op))
	}
	if op.Authenticated() && sessionToken == "" {
		return nil, NotAuthenticated()
	}

	start := time.Now()
	body, err := c.do(ctx, serverURL, sessionToken, op, payload)
	c.observe(op, err, time.Since(start))
	return body, err
}

func (c *Client) do(ctx context.Context, serverURL, sessionToken string, op Operation, payload any) (json.RawMessage, error) {
	if payload == nil {
		payload = struct{}{}
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, URL(serverURL, op), bytes.NewReader(reqBody))
	if err != nil {
		return nil, &ConnectionError{Operation: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if op.Authenticated() {
		req.Header.Set(SessionHeader, sessionToken)
	}

	log.Debug("Management API request", "operation", op, "server", serverURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cerr := &ConnectionError{Operation: op, Err: err}
		log.Warn("Management API request failed", "operation", op, "error", cerr.Detail())
		return nil, cerr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Operation: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(respBody, &fields); err != nil {
		cerr := &ConnectionError{Operation: op, Err: fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)}
		log.Warn("Management API returned malformed response", "operation", op, "error", cerr.Detail())
		return nil, cerr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && op.succeeded(fields) {
		return respBody, nil
	}

	apiErr := &APIError{
		Operation:  op,
		StatusCode: resp.StatusCode,
		Code:       stringField(fields, "code"),
		Message:    stringField(fields, "message"),
	}
	log.Debug("Management API reported failure", "operation", op, "status", resp.StatusCode, "code", apiErr.Code, "message", apiErr.Error())
	return nil, apiErr
}

func (c *Client) observe(op Operation, err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.MgmtRequests.WithLabelValues(string(op), outcome(err)).Inc()
	c.metrics.MgmtLatency.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, ErrConnection):
		return "connection_error"
	default:
		return "invalid"
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
