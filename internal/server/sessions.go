package server

import (
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/chat"
	"github.com/forest-guardian/ecosystem-dashboard/internal/metrics"
	"github.com/google/uuid"
)

const SessionHeader = "X-Session-ID"

// Session bundles the per-user analysis state with its chat assistant.
type Session struct {
	ID        string
	Analysis  *analysis.Session
	Assistant *chat.Assistant

	mu       sync.Mutex
	lastSeen time.Time
	running  bool
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// beginRun marks a diagnostic as running. It returns false when one is
// already in progress for this session.
func (s *Session) beginRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Session) endRun() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

type SessionStore struct {
	completer chat.Completer
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(completer chat.Completer) *SessionStore {
	return &SessionStore{completer: completer, now: time.Now, sessions: map[string]*Session{}}
}

// Get returns the session for id. An empty or unknown id gets a new session
// under a freshly minted id; client-chosen ids are never adopted.
func (st *SessionStore) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.touch(st.now())
		return s
	}
	id = uuid.NewString()
	a := analysis.NewSession()
	s := &Session{
		ID:        id,
		Analysis:  a,
		Assistant: chat.NewAssistant(st.completer, a.Context),
		lastSeen:  st.now(),
	}
	st.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(st.sessions)))
	log.WithField("session", id).Debug("session created")
	return s
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (st *SessionStore) Sweep(maxIdle time.Duration) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := st.now().Add(-maxIdle)
	removed := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff) && !s.running
		s.mu.Unlock()
		if idle {
			s.Assistant.Reset()
			s.Analysis.Reset()
			delete(st.sessions, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(st.sessions)))
	return removed
}
