// Package session persists operator sessions and exposes them as explicit
// per-operator session objects.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

// Record is the persisted state of one operator session.
type Record struct {
	Username   string          `json:"username"`
	Token      string          `json:"token,omitempty"`
	Profile    *models.Profile `json:"profile,omitempty"`
	LoggedInAt time.Time       `json:"logged_in_at"`
	// ConsoleTokenID is the jti of the console cookie issued for this session.
	ConsoleTokenID string `json:"console_token_id,omitempty"`
}

func (r *Record) clone() *Record {
	out := *r
	if r.Profile != nil {
		p := *r.Profile
		out.Profile = &p
	}
	return &out
}

// Store manages persisted sessions with a JSON file backend.
type Store struct {
	path    string
	mu      sync.RWMutex
	records map[string]*Record
}

// NewStore initializes a session store under the configured data root.
func NewStore(paths *utils.Paths) *Store {
	return NewStoreAt(paths.SessionsFile())
}

// NewStoreAt initializes a session store backed by path.
func NewStoreAt(path string) *Store {
	return &Store{path: path, records: make(map[string]*Record)}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads sessions from disk; a missing file is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*Record)

	if s.path == "" {
		return errors.New("session store path not set")
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var list []*Record
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for _, r := range list {
		if r != nil && r.Username != "" {
			s.records[r.Username] = r
		}
	}
	return nil
}

// saveLocked writes sessions to disk atomically with 0600 permissions.
// Caller must hold s.mu.
func (s *Store) saveLocked() error {
	list := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Get returns a copy of the record for username.
func (s *Store) Get(username string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[username]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// Put replaces the record for rec.Username and persists.
func (s *Store) Put(rec Record) error {
	if rec.Username == "" {
		return errors.New("username required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Username] = rec.clone()
	return s.saveLocked()
}

// Delete removes the record for username. Missing records are not an error.
func (s *Store) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[username]; !ok {
		return nil
	}
	delete(s.records, username)
	return s.saveLocked()
}

// List returns copies of all records sorted by username.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
