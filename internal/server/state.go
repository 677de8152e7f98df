package server

import (
	"sync"
	"time"
)

const loginStateTTL = 10 * time.Minute

// stateStore remembers the OAuth state values handed out by the login route.
// A state can be consumed once and only within its TTL.
type stateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states map[string]time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{ttl: ttl, now: time.Now, states: make(map[string]time.Time)}
}

// Add records a state and drops expired ones.
func (s *stateStore) Add(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, created := range s.states {
		if now.Sub(created) > s.ttl {
			delete(s.states, k)
		}
	}
	s.states[state] = now
}

// Consume removes state and reports whether it was issued and still fresh.
func (s *stateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.now().Sub(created) <= s.ttl
}
