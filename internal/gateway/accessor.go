package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/model"
	"github.com/martinsuchenak/gwconsole/internal/session"
)

// ErrSuperseded is returned by a Refresh whose result was discarded because a
// newer refresh started while it was in flight.
var ErrSuperseded = errors.New("refresh superseded by a newer refresh")

// DetailsLevelFull selects the verbose object representation.
const DetailsLevelFull = "full"

// Snapshot is the last applied gateway collection.
type Snapshot struct {
	Token     uint64          `json:"token"`
	ServerURL string          `json:"server_url,omitempty"`
	Gateways  []model.Gateway `json:"gateways"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Accessor lists and fetches gateways and keeps the most recent collection in
// memory. Gateways in a snapshot are never modified after it is applied.
type Accessor struct {
	caller mgmt.Caller
	opts   options
	group  singleflight.Group

	latest atomic.Uint64

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewAccessor creates an Accessor.
func NewAccessor(caller mgmt.Caller, opts ...Option) *Accessor {
	return &Accessor{
		caller: caller,
		opts:   buildOptions(opts),
	}
}

type listRequest struct {
	DetailsLevel string `json:"details_level"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset,omitempty"`
}

type listResponse struct {
	Objects []model.Gateway `json:"objects"`
	Total   int             `json:"total"`
}

// List fetches every gateway at full detail in server order. Pages are
// requested only while the server reports more objects than received.
func (a *Accessor) List(ctx context.Context, sess *session.Session) ([]model.Gateway, error) {
	if !sess.Authenticated() {
		return nil, mgmt.NotAuthenticated()
	}

	var all []model.Gateway
	offset := 0
	for {
		body, err := a.caller.Call(ctx, sess.ServerURL, sess.Token, mgmt.OpListGateways, listRequest{
			DetailsLevel: DetailsLevelFull,
			Limit:        a.opts.pageSize,
			Offset:       offset,
		})
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &mgmt.ConnectionError{Operation: mgmt.OpListGateways, Err: fmt.Errorf("decoding gateways: %w", err)}
		}
		all = append(all, page.Objects...)

		if len(page.Objects) == 0 || page.Total <= len(all) {
			break
		}
		offset = len(all)
	}

	if all == nil {
		all = []model.Gateway{}
	}
	log.Debug("Gateways listed", "server", sess.ServerURL, "count", len(all))
	return all, nil
}

// Refresh fetches the collection and applies it unless a newer refresh has
// started meanwhile, in which case the result is dropped and ErrSuperseded is
// returned. A failed refresh keeps the previous snapshot.
func (a *Accessor) Refresh(ctx context.Context, sess *session.Session) (Snapshot, error) {
	token := a.latest.Add(1)
	gateways, err := a.List(ctx, sess)

	a.mu.Lock()
	defer a.mu.Unlock()

	if token != a.latest.Load() {
		log.Debug("Discarding superseded refresh", "token", token, "latest", a.latest.Load())
		a.count("superseded")
		return a.snapshot, ErrSuperseded
	}
	if err != nil {
		a.count("failed")
		return a.snapshot, err
	}

	a.snapshot = Snapshot{
		Token:     token,
		ServerURL: sess.ServerURL,
		Gateways:  gateways,
		FetchedAt: time.Now(),
	}
	a.count("applied")
	if a.opts.metrics != nil {
		a.opts.metrics.Gateways.Set(float64(len(gateways)))
	}
	log.Info("Gateway collection refreshed", "token", token, "count", len(gateways))
	return a.snapshot, nil
}

func (a *Accessor) count(result string) {
	if a.opts.metrics != nil {
		a.opts.metrics.Refreshes.WithLabelValues(result).Inc()
	}
}

// Snapshot returns a copy of the last applied collection.
func (a *Accessor) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := a.snapshot
	if snap.Gateways != nil {
		snap.Gateways = slices.Clone(snap.Gateways)
	}
	return snap
}

// Search filters the last applied collection. It never calls the server.
func (a *Accessor) Search(term string) []model.Gateway {
	return Filter(a.Snapshot().Gateways, term)
}

// Reset drops the snapshot and invalidates refreshes still in flight. Used
// when the session ends.
func (a *Accessor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest.Add(1)
	a.snapshot = Snapshot{}
}

type getRequest struct {
	UID          string `json:"uid"`
	DetailsLevel string `json:"details_level"`
}

// Get fetches one gateway at full detail. Concurrent requests for the same
// gateway share a single call.
func (a *Accessor) Get(ctx context.Context, sess *session.Session, uid string) (*model.Gateway, error) {
	if !sess.Authenticated() {
		return nil, mgmt.NotAuthenticated()
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, mgmt.Validation("uid", "gateway uid required")
	}

	v, err, _ := a.group.Do(sess.ServerURL+"\x00"+uid, func() (any, error) {
		body, err := a.caller.Call(ctx, sess.ServerURL, sess.Token, mgmt.OpGetGateway, getRequest{
			UID:          uid,
			DetailsLevel: DetailsLevelFull,
		})
		if err != nil {
			return nil, err
		}
		var gw model.Gateway
		if err := json.Unmarshal(body, &gw); err != nil {
			return nil, &mgmt.ConnectionError{Operation: mgmt.OpGetGateway, Err: fmt.Errorf("decoding gateway: %w", err)}
		}
		return gw, nil
	})
	if err != nil {
		return nil, err
	}

	gw := v.(model.Gateway)
	return &gw, nil
}
