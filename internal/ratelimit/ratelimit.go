// Package ratelimit throttles the expensive document verification endpoints
// with a per-caller sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window frees a slot.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Store counts requests per key inside a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// sweepInterval spaces out full scans for idle callers.
const sweepInterval = time.Minute

// InMemoryStore is a single-process sliding window store. Callers whose window
// has emptied are forgotten, so memory follows active callers only.
type InMemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
	now       func() time.Time
}

type window struct {
	hits   []time.Time
	length time.Duration
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{windows: make(map[string]*window), now: time.Now}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, length time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	var hits []time.Time
	if w, ok := s.windows[key]; ok {
		hits = prune(w.hits, now.Add(-length))
	}
	if len(hits) >= limit {
		s.windows[key] = &window{hits: hits, length: length}
		return Result{Allowed: false, Limit: limit, ResetAt: hits[0].Add(length)}, nil
	}
	hits = append(hits, now)
	s.windows[key] = &window{hits: hits, length: length}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(hits),
		ResetAt:   hits[0].Add(length),
	}, nil
}

// sweep drops every key whose newest hit has left its window.
func (s *InMemoryStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, w := range s.windows {
		if len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(now.Add(-w.length)) {
			delete(s.windows, key)
		}
	}
}

// prune drops timestamps at or before cutoff. hits is in insertion order. The
// survivors are copied so the dropped prefix can be collected.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(hits); i++ {
		if hits[i].After(cutoff) {
			break
		}
	}
	switch {
	case i == 0:
		return hits
	case i == len(hits):
		return nil
	}
	return append([]time.Time(nil), hits[i:]...)
}
