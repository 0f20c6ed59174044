package studio

import (
	"sync"
	"time"

	"studio_server/core/domain"
)

// session is the per-user studio state. Writes from a run are applied only while that
// run still owns the session, so a reset or project load wins over late results.
type session struct {
	mu       sync.Mutex
	userID   string
	state    domain.SessionState
	run      *Run
	lastUsed time.Time
}

func newSession(userID string) *session {
	return &session{
		userID:   userID,
		state:    domain.InitialSessionState(),
		lastUsed: time.Now(),
	}
}

// owns reports whether run still drives the session. Caller holds mu.
func (s *session) owns(run *Run) bool {
	return run != nil && s.run == run
}

// detach cancels the current run, if any. Caller holds mu.
func (s *session) detach() {
	if s.run != nil {
		s.run.Cancel()
		s.run = nil
	}
}

func (s *session) snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// sessionStore keeps sessions with idle expiry.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (st *sessionStore) get(userID string) (*session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[userID]
	return s, ok
}

func (st *sessionStore) getOrCreate(userID string) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userID]
	if !ok {
		s = newSession(userID)
		st.sessions[userID] = s
	}
	return s
}

// prune drops sessions without a running run that were untouched for ttl.
func (st *sessionStore) prune(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		stale := s.run == nil && s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
