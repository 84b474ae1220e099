package store

import (
	"context"
	"sync"
	"time"

	"evoto/internal/verification/models"
	"evoto/pkg/platform/sentinel"
)

type entry struct {
	session   models.Session
	expiresAt time.Time
}

// InMemorySessionStore is the single-instance fallback used when Redis is not configured.
// Entries expire lazily on read.
type InMemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewInMemory() *InMemorySessionStore {
	return &InMemorySessionStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (s *InMemorySessionStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, sentinel.ErrNotFound
	}
	session := e.session
	if e.session.Result != nil {
		result := *e.session.Result
		session.Result = &result
	}
	return &session, nil
}

func (s *InMemorySessionStore) Save(_ context.Context, session *models.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	if session.Result != nil {
		result := *session.Result
		stored.Result = &result
	}
	s.entries[session.ID] = entry{session: stored, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}
