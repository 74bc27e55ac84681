package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/model"
	"github.com/martinsuchenak/gwconsole/internal/session"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

// CreateFailedError means the server rejected the create step. Nothing was
// created and no publish was attempted.
type CreateFailedError struct {
	Message string
	Err     error
}

func (e *CreateFailedError) Error() string {
	return "failed to create gateway: " + e.Message
}

func (e *CreateFailedError) Unwrap() error {
	return e.Err
}

// PublishFailedError means the gateway was created but the publish step
// failed. Gateway identifies the created, unpublished object.
type PublishFailedError struct {
	Gateway model.Gateway
	Message string
	Err     error
}

func (e *PublishFailedError) Error() string {
	return fmt.Sprintf("gateway %q (uid %s) was created but publish failed: %s", e.Gateway.Name, e.Gateway.UID, e.Message)
}

func (e *PublishFailedError) Unwrap() error {
	return e.Err
}

// BuildClonePayload builds the create body for a clone of source. Only the
// version, OS, interfaces and firewall settings are copied; the identity comes
// from req and the source uid is never included.
func BuildClonePayload(source *model.Gateway, req model.CloneRequest) map[string]any {
	comment := req.Comment
	if comment == "" {
		comment = "Clone of " + source.Name
	}

	payload := map[string]any{
		"name":       req.Name,
		"ip_address": req.IPv4Address,
		"comment":    comment,
		"firewall":   true,
	}
	if source.Version != "" {
		payload["version"] = source.Version
	}
	if source.OSName != "" {
		payload["os_name"] = source.OSName
	}
	if len(source.Interfaces) > 0 {
		payload["interfaces"] = source.Interfaces
	}
	if len(source.FirewallSettings) > 0 {
		payload["firewall_settings"] = source.FirewallSettings
	}
	return payload
}

// Cloner creates a gateway from an existing one and publishes it.
type Cloner struct {
	caller  mgmt.Caller
	journal storage.CloneJournal
	opts    options
}

// NewCloner creates a Cloner. journal may be nil, in which case clone attempts
// are not recorded and PendingPublish always returns nothing.
func NewCloner(caller mgmt.Caller, journal storage.CloneJournal, opts ...Option) *Cloner {
	return &Cloner{
		caller:  caller,
		journal: journal,
		opts:    buildOptions(opts),
	}
}

// Clone creates a gateway from source using req's identity, then publishes
// the session. Publish is only attempted after a successful create.
func (c *Cloner) Clone(ctx context.Context, sess *session.Session, source *model.Gateway, req model.CloneRequest) (*model.Gateway, error) {
	if !sess.Authenticated() {
		return nil, mgmt.NotAuthenticated()
	}
	if source == nil {
		c.outcome("validation")
		return nil, mgmt.Validation("source", "source gateway required")
	}
	req = req.Trimmed()
	if req.Name == "" {
		c.outcome("validation")
		return nil, mgmt.Validation("name", "name is required")
	}
	if req.IPv4Address == "" {
		c.outcome("validation")
		return nil, mgmt.Validation("ipv4_address", "IPv4 address is required")
	}

	rec := &model.CloneRecord{
		ServerURL:   sess.ServerURL,
		SessionID:   sess.Fingerprint(),
		SourceUID:   source.UID,
		SourceName:  source.Name,
		Name:        req.Name,
		IPv4Address: req.IPv4Address,
	}

	body, err := c.caller.Call(ctx, sess.ServerURL, sess.Token, mgmt.OpCreateGateway, BuildClonePayload(source, req))
	if err != nil {
		rec.Message = err.Error()

		var apiErr *mgmt.APIError
		if errors.As(err, &apiErr) {
			rec.State = model.CloneCreateFailed
			c.record(rec)
			c.outcome("create_failed")
			return nil, &CreateFailedError{Message: apiErr.Error(), Err: err}
		}

		// No answer: the object may exist.
		rec.State = model.CloneUnknown
		c.record(rec)
		if errors.Is(err, mgmt.ErrConnection) {
			c.outcome("connection_error")
		}
		return nil, err
	}

	var created model.Gateway
	if err := json.Unmarshal(body, &created); err != nil {
		rec.State = model.CloneUnknown
		rec.Message = "unreadable create response"
		c.record(rec)
		c.outcome("connection_error")
		return nil, &mgmt.ConnectionError{Operation: mgmt.OpCreateGateway, Err: fmt.Errorf("decoding created gateway: %w", err)}
	}
	if created.Name == "" {
		created.Name = req.Name
	}
	rec.UID = created.UID
	rec.State = model.CloneCreated
	c.record(rec)
	log.Info("Gateway created", "uid", created.UID, "name", created.Name, "source", source.UID)

	if _, err := c.publish(ctx, sess); err != nil {
		rec.State = model.ClonePublishFailed
		rec.Message = err.Error()
		c.record(rec)
		c.outcome("publish_failed")
		log.Warn("Gateway created but not published", "uid", created.UID, "error", err)
		return &created, &PublishFailedError{Gateway: created, Message: err.Error(), Err: err}
	}

	rec.State = model.ClonePublished
	rec.Message = ""
	c.record(rec)
	c.settle(sess)
	c.outcome("published")
	return &created, nil
}

type publishResponse struct {
	TaskID       string `json:"task-id"`
	TaskIDLegacy string `json:"task_id"`
}

// Publish commits the session's pending changes and returns the task id.
// Journaled clones of this session are marked published.
func (c *Cloner) Publish(ctx context.Context, sess *session.Session) (string, error) {
	if !sess.Authenticated() {
		return "", mgmt.NotAuthenticated()
	}
	taskID, err := c.publish(ctx, sess)
	if err != nil {
		return "", err
	}
	c.settle(sess)
	return taskID, nil
}

func (c *Cloner) publish(ctx context.Context, sess *session.Session) (string, error) {
	body, err := c.caller.Call(ctx, sess.ServerURL, sess.Token, mgmt.OpPublish, nil)
	if err != nil {
		return "", err
	}
	var resp publishResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &mgmt.ConnectionError{Operation: mgmt.OpPublish, Err: fmt.Errorf("decoding publish response: %w", err)}
	}
	if resp.TaskID != "" {
		return resp.TaskID, nil
	}
	return resp.TaskIDLegacy, nil
}

// PendingPublish lists journaled clones on the session's server that were
// never published or whose creation is unknown, newest first. Clones made in
// another session are flagged with OtherSession.
func (c *Cloner) PendingPublish(sess *session.Session) ([]model.CloneRecord, error) {
	if !sess.Authenticated() {
		return nil, mgmt.NotAuthenticated()
	}
	if c.journal == nil {
		return []model.CloneRecord{}, nil
	}
	recs, err := c.journal.ListClones(&storage.CloneFilter{ServerURL: sess.ServerURL, Pending: true})
	if err != nil {
		return nil, fmt.Errorf("listing pending clones: %w", err)
	}
	id := sess.Fingerprint()
	for i := range recs {
		recs[i].OtherSession = recs[i].SessionID != id
	}
	return recs, nil
}

// RetryPublish publishes again for a journaled clone left unpublished and
// marks it published on success. Only the session that created the clone can
// publish it; a clone from another session is refused without a call.
func (c *Cloner) RetryPublish(ctx context.Context, sess *session.Session, uid string) (*model.CloneRecord, error) {
	if !sess.Authenticated() {
		return nil, mgmt.NotAuthenticated()
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, mgmt.Validation("uid", "gateway uid required")
	}
	if c.journal == nil {
		return nil, storage.ErrCloneNotFound
	}

	rec, err := c.journal.GetCloneByUID(sess.ServerURL, uid)
	if err != nil {
		return nil, err
	}
	if rec.State == model.ClonePublished {
		return rec, nil
	}
	if !rec.State.Unpublished() {
		return nil, mgmt.Validation("uid", "clone was never created")
	}
	if rec.SessionID != sess.Fingerprint() {
		return nil, mgmt.Validation("uid", "clone was created in another session; publish it from that session or discard it on the server")
	}

	if _, err := c.publish(ctx, sess); err != nil {
		rec.State = model.ClonePublishFailed
		rec.Message = err.Error()
		c.record(rec)
		c.outcome("publish_failed")
		return rec, &PublishFailedError{
			Gateway: model.Gateway{UID: rec.UID, Name: rec.Name, IPv4Address: rec.IPv4Address},
			Message: err.Error(),
			Err:     err,
		}
	}

	rec.State = model.ClonePublished
	rec.Message = ""
	c.record(rec)
	c.settle(sess)
	c.outcome("published")
	log.Info("Pending clone published", "uid", rec.UID, "name", rec.Name)
	return rec, nil
}

// record writes rec to the journal. Journal failures never change the
// outcome reported for the server-side workflow.
func (c *Cloner) record(rec *model.CloneRecord) {
	if c.journal == nil {
		return
	}
	var err error
	if rec.ID == "" {
		err = c.journal.CreateClone(rec)
	} else {
		err = c.journal.UpdateClone(rec)
	}
	if err != nil {
		log.Error("Failed to journal clone", "name", rec.Name, "uid", rec.UID, "state", rec.State, "error", err)
	}
}

// settle marks the session's pending clones published. A successful publish
// commits every change of the session, not only the latest clone.
func (c *Cloner) settle(sess *session.Session) {
	if c.journal == nil {
		return
	}
	n, err := c.journal.MarkSessionPublished(sess.ServerURL, sess.Fingerprint())
	if err != nil {
		log.Error("Failed to settle journaled clones", "server", sess.ServerURL, "error", err)
		return
	}
	if n > 0 {
		log.Info("Journaled clones settled by publish", "server", sess.ServerURL, "count", n)
	}
}

func (c *Cloner) outcome(o string) {
	if c.opts.metrics != nil {
		c.opts.metrics.CloneOutcomes.WithLabelValues(o).Inc()
	}
}
