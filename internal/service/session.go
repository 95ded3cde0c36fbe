package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-rec/internal/filter"
	"github.com/joeblew999/plat-rec/internal/search"
)

// Session is the per-browser UI state: the filter chips and the loaded
// result pages. Both stores are safe for concurrent use.
type Session struct {
	ID      string
	Filters *filter.Store
	Results *search.Store
}

type sessionEntry struct {
	*Session
	lastSeen time.Time
}

// SessionService keeps UI sessions in memory, keyed by cookie value.
type SessionService struct {
	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	ttl       time.Duration
	preserved func() []string
	now       func() time.Time
}

// NewSessionService creates a session registry. Sessions idle for ttl are
// removed by Sweep. preserved is read on every clear, so a config reload
// reaches existing sessions.
func NewSessionService(ttl time.Duration, preserved func() []string) *SessionService {
	return &SessionService{
		sessions:  map[string]*sessionEntry{},
		ttl:       ttl,
		preserved: preserved,
		now:       time.Now,
	}
}

// Get returns the session for id, creating a new one with a fresh id when
// id is empty or unknown. created reports whether a new session was made.
func (s *SessionService) Get(id string) (sess *Session, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok && id != "" {
		e.lastSeen = s.now()
		return e.Session, false
	}

	sess = &Session{
		ID:      uuid.NewString(),
		Filters: filter.NewLiveStore(s.preserved),
		Results: search.NewStore(),
	}
	s.sessions[sess.ID] = &sessionEntry{Session: sess, lastSeen: s.now()}
	return sess, true
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops idle sessions and returns how many were removed.
func (s *SessionService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	n := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *SessionService) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
