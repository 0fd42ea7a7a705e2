package session

import (
	"sync"
	"time"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"
	"gosurv/internal/observability"
	"gosurv/internal/survival"

	"github.com/patrickmn/go-cache"
)

// State is everything one session has done so far. Stages receive and return
// it explicitly instead of reading globals.
type State struct {
	ID         core.SessionID
	CreatedAt  time.Time
	FileName   string
	UploadedAt time.Time
	Table      *dataset.Table
	Assignment dataset.Assignment
	Outcome    *survival.Outcome
}

// HasTable reports whether a spreadsheet has been loaded
func (s State) HasTable() bool {
	return s.Table != nil
}

// entry guards one session's state; interactions of a session run one at a time
type entry struct {
	mu    sync.Mutex
	state State
}

// Store keeps sessions in memory and expires idle ones
type Store struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *internal.Logger
}

// NewStore creates a session store. Sessions idle for ttl are dropped by the
// cache janitor every cleanup interval.
func NewStore(ttl, cleanup time.Duration, logger *internal.Logger) *Store {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Store{
		cache:  cache.New(ttl, cleanup),
		ttl:    ttl,
		logger: logger.WithComponent("SessionStore"),
	}
	s.cache.OnEvicted(func(key string, _ interface{}) {
		observability.ActiveSessions.Dec()
		s.logger.Debug("session %s evicted", key)
	})
	return s
}

// Create starts an empty session
func (s *Store) Create() State {
	state := State{ID: core.NewSessionID(), CreatedAt: time.Now()}
	s.cache.Set(state.ID.String(), &entry{state: state}, cache.DefaultExpiration)
	observability.ActiveSessions.Inc()
	s.logger.Debug("session %s created", state.ID)
	return state
}

// Get returns a snapshot of a session and extends its lifetime
func (s *Store) Get(id core.SessionID) (State, error) {
	e, err := s.entry(id)
	if err != nil {
		return State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Update runs fn on the session state while holding its lock. The state is
// only replaced when fn succeeds.
func (s *Store) Update(id core.SessionID, fn func(*State) error) (State, error) {
	e, err := s.entry(id)
	if err != nil {
		return State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state
	if err := fn(&next); err != nil {
		return e.state, err
	}
	e.state = next
	return next, nil
}

// Delete ends a session
func (s *Store) Delete(id core.SessionID) {
	s.cache.Delete(id.String())
}

// Count returns the number of live sessions
func (s *Store) Count() int {
	return s.cache.ItemCount()
}

func (s *Store) entry(id core.SessionID) (*entry, error) {
	key := id.String()
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, errors.WithCode(errors.CodeNotFound, core.ErrSessionNotFound)
	}
	e := v.(*entry)
	// sliding expiry; Replace fails harmlessly if the session was deleted meanwhile
	_ = s.cache.Replace(key, e, cache.DefaultExpiration)
	return e, nil
}
