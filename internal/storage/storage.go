package storage

import (
	"errors"

	"github.com/martinsuchenak/gwconsole/internal/model"
)

var (
	ErrCloneNotFound = errors.New("clone record not found")
)

// KVStore is the durable key/value store behind the session.
type KVStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// SetMany writes every pair or none of them.
	SetMany(values map[string]string) error
	Remove(keys ...string) error
}

// CloneJournal records clone attempts so created-but-unpublished gateways
// can be found and published later.
type CloneJournal interface {
	CreateClone(rec *model.CloneRecord) error
	UpdateClone(rec *model.CloneRecord) error
	GetCloneByUID(serverURL, uid string) (*model.CloneRecord, error)
	ListClones(filter *CloneFilter) ([]model.CloneRecord, error)
	// MarkSessionPublished marks every pending record created in the given
	// session as published and returns how many changed.
	MarkSessionPublished(serverURL, sessionID string) (int64, error)
}

// CloneFilter holds filter criteria for listing clone records.
type CloneFilter struct {
	ServerURL string // Only records for this server
	SessionID string // Only records created in this session
	Pending   bool   // Only records still needing a publish or a check
}

// Storage is everything the console persists.
type Storage interface {
	KVStore
	CloneJournal
	Close() error
}
