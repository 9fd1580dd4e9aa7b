package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

func result(id string, team ticket.Team) *triage.Result {
	return &triage.Result{
		BatchID:  "batch-1",
		Ticket:   ticket.Ticket{TicketID: id, CustomerID: "CUST001"},
		Decision: ticket.FinalDecision{TicketID: id, CustomerID: "CUST001", AssignedTeam: team, PriorityLevel: ticket.P2},
	}
}

func TestStore_PutAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.Put(ctx, result("TKT-1", ticket.TeamBillingSupport)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, "TKT-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected result to be found")
	}
	if got.Decision.AssignedTeam != ticket.TeamBillingSupport {
		t.Errorf("team = %q, want %q", got.Decision.AssignedTeam, ticket.TeamBillingSupport)
	}
	if got.BatchID != "batch-1" {
		t.Errorf("BatchID = %q, want %q", got.BatchID, "batch-1")
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Put(ctx, result("TKT-1", ticket.TeamBillingSupport))

	got, _, _ := s.Get(ctx, "TKT-1")
	got.Decision.AssignedTeam = ticket.TeamNetworkOperations

	again, _, _ := s.Get(ctx, "TKT-1")
	if again.Decision.AssignedTeam != ticket.TeamBillingSupport {
		t.Errorf("stored result mutated through returned copy: %q", again.Decision.AssignedTeam)
	}
}

func TestStore_PutOverwritesKeepsOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Put(ctx, result("TKT-1", ticket.TeamBillingSupport))
	_ = s.Put(ctx, result("TKT-2", ticket.TeamTechnicalSupport))
	_ = s.Put(ctx, result("TKT-1", ticket.TeamAccountManagement))

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Ticket.TicketID != "TKT-1" || list[1].Ticket.TicketID != "TKT-2" {
		t.Errorf("order = %s, %s; want TKT-1, TKT-2", list[0].Ticket.TicketID, list[1].Ticket.TicketID)
	}
	if list[0].Decision.AssignedTeam != ticket.TeamAccountManagement {
		t.Errorf("team = %q, want overwritten %q", list[0].Decision.AssignedTeam, ticket.TeamAccountManagement)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	for i := range n {
		id := fmt.Sprintf("TKT-%d", i)

		go func() {
			defer wg.Done()
			_ = s.Put(ctx, result(id, ticket.TeamTechnicalSupport))
		}()

		go func() {
			defer wg.Done()
			_, _, _ = s.Get(ctx, id)
			_, _ = s.List(ctx)
		}()
	}
	wg.Wait()

	list, _ := s.List(ctx)
	if len(list) != n {
		t.Errorf("len = %d, want %d", len(list), n)
	}
}
