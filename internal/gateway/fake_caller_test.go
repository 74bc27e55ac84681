package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/model"
	"github.com/martinsuchenak/gwconsole/internal/session"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

type call struct {
	serverURL string
	token     string
	op        mgmt.Operation
	payload   []byte
}

// fakeCaller records calls and answers through respond, or with {} when
// respond is nil.
type fakeCaller struct {
	mu      sync.Mutex
	calls   []call
	respond func(op mgmt.Operation, payload []byte) (json.RawMessage, error)
}

func (f *fakeCaller) Call(ctx context.Context, serverURL, token string, op mgmt.Operation, payload any) (json.RawMessage, error) {
	data, _ := json.Marshal(payload)
	f.mu.Lock()
	f.calls = append(f.calls, call{serverURL: serverURL, token: token, op: op, payload: data})
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return json.RawMessage(`{}`), nil
	}
	return respond(op, data)
}

func (f *fakeCaller) ops() []mgmt.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mgmt.Operation, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memJournal is an in-memory CloneJournal.
type memJournal struct {
	mu   sync.Mutex
	seq  int
	recs []model.CloneRecord
}

func (j *memJournal) CreateClone(rec *model.CloneRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	rec.ID = fmt.Sprintf("rec-%d", j.seq)
	j.recs = append(j.recs, *rec)
	return nil
}

func (j *memJournal) UpdateClone(rec *model.CloneRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.recs {
		if j.recs[i].ID == rec.ID {
			j.recs[i] = *rec
			return nil
		}
	}
	return storage.ErrCloneNotFound
}

func (j *memJournal) GetCloneByUID(serverURL, uid string) (*model.CloneRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.recs) - 1; i >= 0; i-- {
		if j.recs[i].ServerURL == serverURL && j.recs[i].UID == uid {
			rec := j.recs[i]
			return &rec, nil
		}
	}
	return nil, storage.ErrCloneNotFound
}

func (j *memJournal) ListClones(filter *storage.CloneFilter) ([]model.CloneRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.CloneRecord
	for i := len(j.recs) - 1; i >= 0; i-- {
		r := j.recs[i]
		if filter != nil && filter.ServerURL != "" && r.ServerURL != filter.ServerURL {
			continue
		}
		if filter != nil && filter.SessionID != "" && r.SessionID != filter.SessionID {
			continue
		}
		if filter != nil && filter.Pending && !r.State.Pending() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (j *memJournal) MarkSessionPublished(serverURL, sessionID string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var n int64
	for i := range j.recs {
		r := &j.recs[i]
		if sessionID != "" && r.ServerURL == serverURL && r.SessionID == sessionID && r.State.Pending() {
			r.State = model.ClonePublished
			r.Message = ""
			n++
		}
	}
	return n, nil
}

func (j *memJournal) get(id string) model.CloneRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.recs {
		if r.ID == id {
			return r
		}
	}
	return model.CloneRecord{}
}

func testSession() *session.Session {
	return &session.Session{
		ServerURL: "https://mgmt.example.com",
		Token:     "sid-123",
		Username:  "admin",
	}
}
