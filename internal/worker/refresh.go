package worker

import (
	"context"
	"errors"

	"github.com/martinsuchenak/gwconsole/internal/gateway"
	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/session"
)

// RefreshTaskID identifies the gateway collection refresh task.
const RefreshTaskID = "gateway-refresh"

// Refresher is the part of the gateway accessor the refresh task needs.
type Refresher interface {
	Refresh(ctx context.Context, sess *session.Session) (gateway.Snapshot, error)
}

// SessionSource returns the current session, or nil when logged out.
type SessionSource interface {
	Current() *session.Session
}

// RefreshJob refreshes the gateway collection for the current session. It is
// a no-op while logged out, and a superseded refresh is not a failure.
func RefreshJob(refresher Refresher, sessions SessionSource) TaskHandler {
	return func(ctx context.Context) error {
		sess := sessions.Current()
		if !sess.Authenticated() {
			return nil
		}
		_, err := refresher.Refresh(ctx, sess)
		if errors.Is(err, gateway.ErrSuperseded) {
			return nil
		}
		return err
	}
}

// AddRefresh registers the collection refresh on spec. An empty spec leaves
// background refresh disabled.
func (s *Scheduler) AddRefresh(spec string, job TaskHandler) error {
	if spec == "" {
		log.Info("Background gateway refresh disabled")
		return nil
	}
	return s.Add(RefreshTaskID, "Gateway collection refresh", spec, job)
}
