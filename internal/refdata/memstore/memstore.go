// Package memstore provides an in-memory implementation of refdata.Store.
package memstore

import (
	"context"

	"github.com/linnemanlabs/switchboard/internal/refdata"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Store holds a reference dataset in memory. It is never written after
// New returns, so concurrent readers need no locking.
type Store struct {
	customers map[string]ticket.Customer
	services  map[string]refdata.Service
	history   map[string][]ticket.HistoricalTicket
}

// New indexes a seed. Later entries for the same id replace earlier ones
// and history for the same customer is appended.
func New(seed refdata.Seed) *Store {
	s := &Store{
		customers: make(map[string]ticket.Customer, len(seed.Customers)),
		services:  make(map[string]refdata.Service, len(seed.Services)),
		history:   make(map[string][]ticket.HistoricalTicket, len(seed.History)),
	}
	for _, c := range seed.Customers {
		s.customers[c.CustomerID] = c
	}
	for _, svc := range seed.Services {
		svc.Outages = append([]ticket.Outage(nil), svc.Outages...)
		s.services[svc.ServiceID] = svc
	}
	for _, h := range seed.History {
		s.history[h.CustomerID] = append(s.history[h.CustomerID], h.Tickets...)
	}
	return s
}

// Customer returns a customer profile by id.
func (s *Store) Customer(_ context.Context, id string) (ticket.Customer, bool, error) {
	c, ok := s.customers[id]
	return c, ok, nil
}

// Service returns a service's status by id. Returns a copy.
func (s *Store) Service(_ context.Context, id string) (refdata.Service, bool, error) {
	svc, ok := s.services[id]
	if !ok {
		return refdata.Service{}, false, nil
	}
	svc.Outages = append([]ticket.Outage(nil), svc.Outages...)
	return svc, true, nil
}

// History returns a copy of a customer's resolved tickets.
func (s *Store) History(_ context.Context, customerID string) ([]ticket.HistoricalTicket, error) {
	return append([]ticket.HistoricalTicket(nil), s.history[customerID]...), nil
}
