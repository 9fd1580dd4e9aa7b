// Package refdata resolves the read-only reference data a ticket is scored
// against: customer profiles, service health and resolved ticket history.
package refdata

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// DefaultHistoryLimit is used when History is called with a non-positive limit.
const DefaultHistoryLimit = 5

// Service is the stored status of a single service.
type Service struct {
	ServiceID string
	Health    ticket.Health
	Outages   []ticket.Outage
}

// Store is the lookup interface over reference data. Implementations must
// be safe for concurrent readers.
type Store interface {
	Customer(ctx context.Context, id string) (ticket.Customer, bool, error)
	Service(ctx context.Context, id string) (Service, bool, error)
	// History returns a customer's resolved tickets in insertion order.
	History(ctx context.Context, customerID string) ([]ticket.HistoricalTicket, error)
}

// Directory answers the orchestrator's context questions from a Store.
type Directory struct {
	store Store
}

// NewDirectory wraps a Store.
func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Profile returns the stored customer, or the unknown-customer default.
func (d *Directory) Profile(ctx context.Context, customerID string) (ticket.Customer, error) {
	c, ok, err := d.store.Customer(ctx, customerID)
	if err != nil {
		return ticket.Customer{}, fmt.Errorf("lookup customer %s: %w", customerID, err)
	}
	if !ok {
		return ticket.UnknownCustomer(customerID), nil
	}
	return c, nil
}

// ServiceStatus aggregates the health of the given services. The worst
// health wins and outages are concatenated in input order; unknown ids
// contribute nothing and no ids at all means Healthy.
func (d *Directory) ServiceStatus(ctx context.Context, serviceIDs []string) (ticket.ServiceStatus, error) {
	if len(serviceIDs) == 0 {
		return ticket.HealthyStatus(), nil
	}

	status := ticket.ServiceStatus{
		ServiceIDs:    append([]string(nil), serviceIDs...),
		Health:        ticket.HealthHealthy,
		ActiveOutages: []ticket.Outage{},
	}
	for _, id := range serviceIDs {
		svc, ok, err := d.store.Service(ctx, id)
		if err != nil {
			return ticket.ServiceStatus{}, fmt.Errorf("lookup service %s: %w", id, err)
		}
		if !ok {
			continue
		}
		status.ActiveOutages = append(status.ActiveOutages, svc.Outages...)
		status.Health = ticket.Worse(status.Health, svc.Health)
	}
	return status, nil
}

// History summarizes a customer's resolved tickets. RecentTickets holds at
// most limit tickets, while CommonIssues and EscalationHistory consider the
// whole history.
func (d *Directory) History(ctx context.Context, customerID string, limit int) (ticket.HistoricalContext, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	all, err := d.store.History(ctx, customerID)
	if err != nil {
		return ticket.HistoricalContext{}, fmt.Errorf("lookup history %s: %w", customerID, err)
	}

	out := ticket.HistoricalContext{
		RecentTickets: []ticket.HistoricalTicket{},
		CommonIssues:  []ticket.Category{},
	}
	seen := make(map[ticket.Category]bool)
	for i, h := range all {
		if i < limit {
			out.RecentTickets = append(out.RecentTickets, h)
		}
		if !seen[h.IssueType] {
			seen[h.IssueType] = true
			out.CommonIssues = append(out.CommonIssues, h.IssueType)
		}
		if h.Escalated {
			out.EscalationHistory = true
		}
	}
	return out, nil
}
