package auth

import (
	"sync"
	"time"
)

// StateStore maps a pending flow's state token to its PKCE code verifier.
// An entry is written once when a flow starts and consumed exactly once at
// the callback; a second Take for the same state must fail.
type StateStore interface {
	Begin(state, verifier string) error
	Take(state string) (string, error)
}

type stateEntry struct {
	verifier  string
	expiresAt time.Time
}

// InMemoryStateStore provides a mutex-guarded in-memory StateStore with a
// per-entry TTL so abandoned logins do not accumulate forever. Expired
// entries are swept lazily on Begin.
type InMemoryStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]stateEntry
}

// NewInMemoryStateStore creates a new InMemoryStateStore with the given
// time-to-live for pending entries.
func NewInMemoryStateStore(ttl time.Duration) *InMemoryStateStore {
	return &InMemoryStateStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]stateEntry),
	}
}

// Begin inserts a new pending entry. A state that is already pending is a
// hard failure, never a silent overwrite.
func (s *InMemoryStateStore) Begin(state, verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if _, ok := s.entries[state]; ok {
		return ErrStateExists
	}
	s.entries[state] = stateEntry{verifier: verifier, expiresAt: now.Add(s.ttl)}
	return nil
}

// Take atomically looks up and removes the verifier for state. A missing,
// already-consumed or expired entry is ErrStateNotFound.
func (s *InMemoryStateStore) Take(state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return "", ErrStateNotFound
	}
	delete(s.entries, state)
	if s.now().After(entry.expiresAt) {
		return "", ErrStateNotFound
	}
	return entry.verifier, nil
}

// Len reports the number of pending entries, expired ones included.
func (s *InMemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *InMemoryStateStore) sweepLocked(now time.Time) {
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}
