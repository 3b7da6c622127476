// Package jsonfile persists session records as JSON files.
package jsonfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/colonyops/foreman/internal/core/session"
	"github.com/colonyops/foreman/pkg/randid"
)

// ErrNotFound is returned when no session record exists on disk.
var ErrNotFound = errors.New("session record not found")

// SessionStore persists the current session record to a JSON file. The
// session token carries a json:"-" tag, so the on-disk record never
// contains it.
type SessionStore struct {
	path string
	mu   sync.Mutex
}

// NewSessionStore creates a session store at the given path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Save writes the session record to disk atomically.
func (s *SessionStore) Save(sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp-" + randid.Generate(8)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}

// Load reads the last persisted session record. The token field is always
// empty on load; tokens live only in memory for the duration of a run.
func (s *SessionStore) Load() (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}

	return &sess, nil
}
