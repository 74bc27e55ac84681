package model

import (
	"strings"
	"time"
)

// CloneRequest holds the identity of the gateway to create from a source.
type CloneRequest struct {
	Name        string `json:"name"`
	IPv4Address string `json:"ipv4_address"`
	Comment     string `json:"comment,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed.
func (r CloneRequest) Trimmed() CloneRequest {
	return CloneRequest{
		Name:        strings.TrimSpace(r.Name),
		IPv4Address: strings.TrimSpace(r.IPv4Address),
		Comment:     strings.TrimSpace(r.Comment),
	}
}

// CloneState is the lifecycle position of a journaled clone.
type CloneState string

const (
	CloneCreated       CloneState = "created"
	ClonePublished     CloneState = "published"
	CloneCreateFailed  CloneState = "create_failed"
	ClonePublishFailed CloneState = "publish_failed"
	// CloneUnknown means the create call never got an answer, so the object
	// may or may not exist.
	CloneUnknown CloneState = "unknown"
)

// Unpublished reports whether the object exists on the server without a
// successful publish.
func (s CloneState) Unpublished() bool {
	return s == CloneCreated || s == ClonePublishFailed
}

// Pending reports whether the clone still needs operator attention: it
// exists unpublished or its creation is unknown.
func (s CloneState) Pending() bool {
	return s.Unpublished() || s == CloneUnknown
}

// CloneRecord is one journaled clone attempt.
type CloneRecord struct {
	ID          string     `json:"id"`
	ServerURL   string     `json:"server_url"`
	SessionID   string     `json:"-"`
	SourceUID   string     `json:"source_uid"`
	SourceName  string     `json:"source_name"`
	UID         string     `json:"uid,omitempty"`
	Name        string     `json:"name"`
	IPv4Address string     `json:"ipv4_address"`
	State       CloneState `json:"state"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// OtherSession is set on listings when the clone was made in a session
	// other than the caller's. Its changes can only be published from there.
	OtherSession bool `json:"other_session,omitempty"`
}
