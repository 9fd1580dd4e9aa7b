package triage

import (
	"context"

	"github.com/linnemanlabs/switchboard/internal/priority"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Classifier assigns an issue category.
type Classifier interface {
	Classify(ctx context.Context, t ticket.Ticket) (ticket.IssueClassification, error)
}

// Extractor pulls structured entities from ticket text.
type Extractor interface {
	Extract(ctx context.Context, t ticket.Ticket) (ticket.ExtractedEntities, error)
}

// Scorer computes a priority.
type Scorer interface {
	Score(ctx context.Context, in priority.Input) (ticket.PriorityCalculation, error)
}

// Router assigns a team.
type Router interface {
	Route(ctx context.Context, c ticket.IssueClassification, e ticket.ExtractedEntities, s ticket.ServiceStatus) (ticket.RoutingDecision, error)
}

// Directory answers context lookups about customers and services.
type Directory interface {
	Profile(ctx context.Context, customerID string) (ticket.Customer, error)
	ServiceStatus(ctx context.Context, serviceIDs []string) (ticket.ServiceStatus, error)
	History(ctx context.Context, customerID string, limit int) (ticket.HistoricalContext, error)
}

// Narrator decides a ticket end to end and returns the model's final text,
// which the engine decodes into a decision.
type Narrator interface {
	Narrate(ctx context.Context, t ticket.Ticket) (string, error)
}

// Strategies bundles the stage implementations an Engine runs. Narrator is
// optional; when set it replaces the staged pipeline.
type Strategies struct {
	Classifier Classifier
	Extractor  Extractor
	Scorer     Scorer
	Router     Router
	Directory  Directory
	Narrator   Narrator
}
