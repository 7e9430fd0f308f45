package challenge

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps challenges for the lifetime of the process. A restart
// clears every outstanding challenge.
type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

func NewMemoryStore() Store {
	return &memoryStore{
		challenges: make(map[string]Challenge),
	}
}

func (s *memoryStore) Put(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[c.ID] = c
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	return c, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[id]; !ok {
		return false, nil
	}
	delete(s.challenges, id)
	return true, nil
}

func (s *memoryStore) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.challenges {
		if c.IssuedAt.Before(cutoff) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

type memoryCredentialStore struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

func NewMemoryCredentialStore() CredentialStore {
	return &memoryCredentialStore{
		bindings: make(map[string]Binding),
	}
}

func (s *memoryCredentialStore) Save(_ context.Context, b Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bindings[normalizeIdentity(b.Subject)] = b
	return nil
}

func (s *memoryCredentialStore) Load(_ context.Context, subject string) (Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bindings[normalizeIdentity(subject)]
	if !ok {
		return Binding{}, ErrNoCredentialRegistered
	}
	return b, nil
}
