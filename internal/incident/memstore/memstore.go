// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/alarmhook/internal/incident"
)

// Store holds invocation records in memory. Suitable for dev/testing and
// single-shot invocations.
type Store struct {
	mu      sync.RWMutex
	records map[string]*incident.Record
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{records: make(map[string]*incident.Record)}
}

// Get retrieves a record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the record.
func (s *Store) Put(_ context.Context, r *incident.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

// List returns copies of up to limit records, newest first. Ties on
// CreatedAt are broken by ID descending, which is time-ordered for ULIDs.
func (s *Store) List(_ context.Context, limit int) ([]*incident.Record, error) {
	s.mu.RLock()
	out := make([]*incident.Record, 0, len(s.records))
	for _, r := range s.records {
		cp := *r
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *incident.Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
