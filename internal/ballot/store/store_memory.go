package store

import (
	"context"
	"sync"

	"evoto/internal/ballot/models"
	"evoto/pkg/platform/sentinel"
)

// InMemoryStore is a process-local ledger for development and tests. A single
// mutex makes InsertAll's check-then-write atomic.
type InMemoryStore struct {
	mu        sync.RWMutex
	bySubject map[string][]*models.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{bySubject: make(map[string][]*models.Record)}
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.bySubject[subject]
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) InsertAll(_ context.Context, records []*models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[recordKey]struct{}, len(records))
	for _, r := range records {
		key := recordKey{subject: r.Subject, unit: r.Unit}
		if _, dup := batch[key]; dup || s.exists(key) {
			return sentinel.ErrConflict
		}
		batch[key] = struct{}{}
	}
	for _, r := range records {
		cp := *r
		s.bySubject[r.Subject] = append(s.bySubject[r.Subject], &cp)
	}
	return nil
}

// Count returns the number of stored records across all subjects.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, records := range s.bySubject {
		n += len(records)
	}
	return n
}

type recordKey struct {
	subject string
	unit    models.Unit
}

func (s *InMemoryStore) exists(key recordKey) bool {
	for _, r := range s.bySubject[key.subject] {
		if r.Unit == key.unit {
			return true
		}
	}
	return false
}
