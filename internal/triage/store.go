package triage

import (
	"context"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Result is one decided ticket as persisted: the admitted ticket, its final
// decision and the batch it arrived in.
type Result struct {
	BatchID  string               `json:"batch_id"`
	Ticket   ticket.Ticket        `json:"ticket"`
	Decision ticket.FinalDecision `json:"decision"`
}

// Store is the persistence interface for decided tickets, keyed by ticket id.
// Put replaces any earlier result for the same ticket. List returns results
// in the order they were first stored.
type Store interface {
	Get(ctx context.Context, ticketID string) (*Result, bool, error)
	Put(ctx context.Context, r *Result) error
	List(ctx context.Context) ([]*Result, error)
}

// Notifier is told about decisions that need a human.
type Notifier interface {
	Notify(ctx context.Context, r *Result) error
}

// Publisher forwards every final decision downstream.
type Publisher interface {
	Publish(ctx context.Context, r *Result) error
}
