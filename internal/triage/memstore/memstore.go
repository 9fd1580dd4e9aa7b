// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/switchboard/internal/triage"
)

// Store holds decided tickets in memory. Suitable for dev/testing and the
// batch CLI.
type Store struct {
	mu      sync.RWMutex
	results map[string]*triage.Result // ticket ID -> result
	order   []string                  // ticket IDs in first-put order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{results: make(map[string]*triage.Result)}
}

// Get retrieves a result by ticket ID. Returns a copy.
func (s *Store) Get(_ context.Context, ticketID string) (*triage.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[ticketID]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the result.
func (s *Store) Put(_ context.Context, r *triage.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.Ticket.TicketID
	if _, ok := s.results[id]; !ok {
		s.order = append(s.order, id)
	}
	cp := *r
	s.results[id] = &cp
	return nil
}

// List returns copies of every result in first-put order.
func (s *Store) List(_ context.Context) ([]*triage.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Result, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.results[id]
		out = append(out, &cp)
	}
	return out, nil
}
