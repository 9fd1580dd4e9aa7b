package triage

import (
	"context"
	"runtime"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// SubmitResult is the outcome of submitting a batch of raw tickets. Every
// admitted ticket has exactly one decision, in input order; every record
// that failed validation is listed in Rejected instead.
type SubmitResult struct {
	BatchID   string                 `json:"batch_id"`
	Decisions []ticket.FinalDecision `json:"decisions"`
	Rejected  []ticket.Rejection     `json:"rejected"`
}

// Service is the business boundary for triage operations.
type Service struct {
	store     Store
	engine    *Engine
	logger    log.Logger
	metrics   *Metrics
	notifier  Notifier
	publisher Publisher
	workers   int
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithPublisher forwards every stored decision to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithWorkers bounds how many tickets of a batch are decided concurrently.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier, opts ...Option) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit validates raw tickets, decides the admitted ones and reports both.
func (s *Service) Submit(ctx context.Context, raws []ticket.RawTicket) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tickets, rejected := ticket.Admit(raws)
	if rejected == nil {
		rejected = []ticket.Rejection{}
	}
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues("accepted").Add(float64(len(tickets)))
		s.metrics.SubmitsTotal.WithLabelValues("rejected").Add(float64(len(rejected)))
	}

	batchID := ulid.Make().String()
	for _, r := range rejected {
		s.logger.Warn(ctx, "ticket rejected",
			"batch_id", batchID,
			"index", r.Index,
			"ticket_id", r.TicketID,
			"error", r.Error(),
		)
	}

	return &SubmitResult{
		BatchID:   batchID,
		Decisions: s.process(ctx, batchID, tickets),
		Rejected:  rejected,
	}, nil
}

// Process decides already admitted tickets as one batch and returns the
// decisions in input order.
func (s *Service) Process(ctx context.Context, tickets []ticket.Ticket) []ticket.FinalDecision {
	return s.process(ctx, ulid.Make().String(), tickets)
}

func (s *Service) process(ctx context.Context, batchID string, tickets []ticket.Ticket) []ticket.FinalDecision {
	out := make([]ticket.FinalDecision, len(tickets))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, t := range tickets {
		g.Go(func() error {
			d := s.engine.Decide(ctx, t)
			out[i] = d
			s.record(ctx, &Result{BatchID: batchID, Ticket: t, Decision: d})
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info(ctx, "batch decided", "batch_id", batchID, "tickets", len(tickets))
	return out
}

// record stores, publishes and, when review is required, notifies. Failures
// are logged; the decision itself is already final.
func (s *Service) record(ctx context.Context, r *Result) {
	L := s.logger.With("batch_id", r.BatchID, "ticket_id", r.Ticket.TicketID)

	if err := s.store.Put(ctx, r); err != nil {
		L.Error(ctx, err, "failed to persist decision")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, r); err != nil {
			L.Error(ctx, err, "failed to publish decision")
		}
	}
	if s.notifier != nil && r.Decision.RequiresManualReview {
		if err := s.notifier.Notify(ctx, r); err != nil {
			L.Error(ctx, err, "failed to send review notification")
		}
	}
}

// Get retrieves a decided ticket by ticket ID.
func (s *Service) Get(ctx context.Context, ticketID string) (*Result, bool, error) {
	return s.store.Get(ctx, ticketID)
}

// List returns every decided ticket in the order first stored.
func (s *Service) List(ctx context.Context) ([]*Result, error) {
	return s.store.List(ctx)
}
