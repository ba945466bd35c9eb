package session

import (
	"errors"
	"sync"
	"time"

	"gwconsole/internal/models"
)

// ErrSessionDisposed is returned by writes after Dispose.
var ErrSessionDisposed = errors.New("session: disposed")

// State is what listeners observe after every change.
type State struct {
	Authenticated bool
	Profile       *models.Profile
}

// Session is the auth state of one operator. It satisfies the gateway
// client's TokenSource.
type Session struct {
	username string
	store    *Store

	mu         sync.RWMutex
	loggedIn   bool
	token      string
	profile    *models.Profile
	loggedInAt time.Time
	consoleJTI string
	disposed   bool
	listeners  map[int]func(State)
	nextID     int
}

// New creates an uninitialized session for username backed by store.
func New(store *Store, username string) *Session {
	return &Session{
		username:  username,
		store:     store,
		listeners: make(map[int]func(State)),
	}
}

// Username returns the operator the session belongs to.
func (s *Session) Username() string { return s.username }

// Init loads the persisted token and profile, if any.
func (s *Session) Init() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	rec, ok := s.store.Get(s.username)
	if ok {
		s.loggedIn = true
		s.token = rec.Token
		s.profile = rec.Profile
		s.loggedInAt = rec.LoggedInAt
		s.consoleJTI = rec.ConsoleTokenID
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return nil
}

// Login stores a fresh token and profile. profile may be nil when the
// login response carried none.
func (s *Session) Login(token string, profile *models.Profile) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	s.loggedIn = true
	s.token = token
	s.profile = copyProfile(profile)
	s.loggedInAt = time.Now().UTC()
	err := s.persistLocked()
	s.mu.Unlock()
	s.notify()
	return err
}

// Authenticated reports whether the operator is logged in.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Token returns the bearer token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Profile returns a copy of the cached profile.
func (s *Session) Profile() (models.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return models.Profile{}, false
	}
	return *s.profile, true
}

// NeedsProfile reports a logged-in session with no cached profile.
func (s *Session) NeedsProfile() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn && s.profile == nil
}

// LoggedInAt returns when Login last succeeded.
func (s *Session) LoggedInAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedInAt
}

// SetProfile replaces the cached profile and persists it.
func (s *Session) SetProfile(p models.Profile) error {
	return s.UpdateProfile(func(cur *models.Profile) { *cur = p })
}

// UpdateProfile applies fn to the cached profile and persists the result.
func (s *Session) UpdateProfile(fn func(*models.Profile)) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	next := models.Profile{}
	if s.profile != nil {
		next = *s.profile
	}
	fn(&next)
	s.profile = &next
	var err error
	if s.loggedIn {
		err = s.persistLocked()
	}
	s.mu.Unlock()
	s.notify()
	return err
}

// BindConsoleToken records the jti of the console cookie for this session.
func (s *Session) BindConsoleToken(jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSessionDisposed
	}
	s.consoleJTI = jti
	if !s.loggedIn {
		return nil
	}
	return s.persistLocked()
}

// ConsoleTokenID returns the jti bound by BindConsoleToken.
func (s *Session) ConsoleTokenID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consoleJTI
}

// Clear drops the token and profile from storage and memory. The gateway
// client calls it on a 401.
func (s *Session) Clear() {
	_ = s.Logout()
}

// Logout clears storage and resets in-memory state.
func (s *Session) Logout() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	wasLoggedIn := s.loggedIn
	s.loggedIn = false
	s.token = ""
	s.profile = nil
	s.loggedInAt = time.Time{}
	s.consoleJTI = ""
	err := s.store.Delete(s.username)
	s.mu.Unlock()
	if wasLoggedIn {
		s.notify()
	}
	return err
}

// Subscribe registers fn for state changes and returns a cancel func.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Dispose releases listeners. The persisted record is left in place.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.listeners = make(map[int]func(State))
}

func (s *Session) persistLocked() error {
	return s.store.Put(Record{
		Username:       s.username,
		Token:          s.token,
		Profile:        copyProfile(s.profile),
		LoggedInAt:     s.loggedInAt,
		ConsoleTokenID: s.consoleJTI,
	})
}

func (s *Session) notify() {
	s.mu.RLock()
	st := State{Authenticated: s.loggedIn, Profile: copyProfile(s.profile)}
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(st)
	}
}

func copyProfile(p *models.Profile) *models.Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
