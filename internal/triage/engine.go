package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/switchboard/internal/priority"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/switchboard/internal/triage")

const (
	DefaultStageTimeout = 30 * time.Second
	DefaultRetryDelay   = 2 * time.Second
	DefaultHistoryLimit = 5
)

// Options tunes the engine. Zero values select the defaults.
type Options struct {
	// StageTimeout bounds every individual stage call.
	StageTimeout time.Duration
	// RetryDelay is the wait before the single retry of a throttled stage.
	RetryDelay time.Duration
	// HistoryLimit caps HistoricalContext.RecentTickets.
	HistoryLimit int

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.StageTimeout <= 0 {
		o.StageTimeout = DefaultStageTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EngineHooks receive engine and model-call events. Any hook may be nil.
type EngineHooks struct {
	OnStageFailure func(stage State, kind Kind)
	OnRetry        func(stage State)
	OnDecision     func(d ticket.FinalDecision, seconds float64)
	OnLLMCall      func(inputTokens, outputTokens int, seconds float64)
	OnToolCall     func(name string, seconds float64, inputBytes, outputBytes int, isError bool)
}

func (h EngineHooks) stageFailure(stage State, kind Kind) {
	if h.OnStageFailure != nil {
		h.OnStageFailure(stage, kind)
	}
}

func (h EngineHooks) retry(stage State) {
	if h.OnRetry != nil {
		h.OnRetry(stage)
	}
}

func (h EngineHooks) decision(d ticket.FinalDecision, seconds float64) {
	if h.OnDecision != nil {
		h.OnDecision(d, seconds)
	}
}

// Engine turns one ticket into one FinalDecision.
type Engine struct {
	s      Strategies
	logger log.Logger
	hooks  EngineHooks
	opts   Options
}

// NewEngine creates an engine over the given strategies. Without a Narrator
// every staged strategy is required.
func NewEngine(s Strategies, logger log.Logger, hooks EngineHooks, opts Options) *Engine {
	if s.Narrator == nil {
		switch {
		case s.Classifier == nil:
			panic(xerrors.New("classifier strategy is required"))
		case s.Extractor == nil:
			panic(xerrors.New("extractor strategy is required"))
		case s.Scorer == nil:
			panic(xerrors.New("scorer strategy is required"))
		case s.Router == nil:
			panic(xerrors.New("router strategy is required"))
		case s.Directory == nil:
			panic(xerrors.New("directory strategy is required"))
		}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{s: s, logger: logger, hooks: hooks, opts: opts.withDefaults()}
}

// Decide runs the pipeline for t. It never fails: any stage failure yields
// the fallback decision for the failure's kind.
func (e *Engine) Decide(ctx context.Context, t ticket.Ticket) ticket.FinalDecision {
	start := e.opts.Now()
	L := e.logger.With("ticket_id", t.TicketID, "customer_id", t.CustomerID)

	ctx, span := tracer.Start(ctx, "triage.decide", trace.WithAttributes(
		attribute.String("switchboard.ticket.id", t.TicketID),
		attribute.String("switchboard.customer.id", t.CustomerID),
	))
	defer span.End()

	var (
		d   ticket.FinalDecision
		err error
	)
	if verr := ticket.Validate(t); verr != nil {
		err = invalid(StatePending, verr)
	} else if e.s.Narrator != nil {
		d, err = e.narrate(ctx, L, t)
	} else {
		d, err = e.pipeline(ctx, L, t, start)
	}

	if err != nil {
		f := Classify(StatePending, err)
		L.Error(ctx, f.Err, "stage failed", "stage", f.Stage, "failure_kind", f.Kind)
		e.hooks.stageFailure(f.Stage, f.Kind)
		d = Fallback(t, f)
		L.Warn(ctx, "using fallback decision", "stage", f.Stage, "failure_kind", f.Kind)
		span.SetAttributes(
			attribute.String("switchboard.failure.stage", string(f.Stage)),
			attribute.String("switchboard.failure.kind", string(f.Kind)),
		)
	}

	end := e.opts.Now()
	elapsed := max(end.Sub(start), 0)
	d.ProcessingTimeMS = float64(elapsed.Microseconds()) / 1000
	d.Timestamp = end

	span.SetAttributes(
		attribute.String("switchboard.decision.team", string(d.AssignedTeam)),
		attribute.String("switchboard.decision.priority", string(d.PriorityLevel)),
		attribute.Float64("switchboard.decision.confidence", d.ConfidenceScore),
		attribute.Bool("switchboard.decision.manual_review", d.RequiresManualReview),
	)
	e.hooks.decision(d, elapsed.Seconds())
	L.Info(ctx, "ticket decided",
		"team", d.AssignedTeam,
		"priority", d.PriorityLevel,
		"confidence", d.ConfidenceScore,
		"manual_review", d.RequiresManualReview,
		"duration_ms", d.ProcessingTimeMS,
	)
	return d
}

// call runs one stage under the stage timeout. A throttled failure is
// retried exactly once after the retry delay.
func call[T any](ctx context.Context, e *Engine, L log.Logger, stage State, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		sctx, span := tracer.Start(ctx, "triage.stage", trace.WithAttributes(
			attribute.String("switchboard.stage", string(stage)),
			attribute.Int("switchboard.attempt", attempt+1),
		))
		v, err := within(sctx, e.opts.StageTimeout, fn)
		if err == nil {
			span.End()
			return v, nil
		}
		f := Classify(stage, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("switchboard.failure.kind", string(f.Kind)))
		span.End()
		if f.Kind != KindThrottled || attempt > 0 {
			return zero, f
		}
		L.Warn(ctx, "stage throttled, retrying", "stage", stage, "delay", e.opts.RetryDelay)
		e.hooks.retry(stage)
		if err := e.opts.Sleep(ctx, e.opts.RetryDelay); err != nil {
			return zero, f
		}
	}
}

func within[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func invalid(stage State, err error) *Failure {
	return &Failure{Stage: stage, Kind: KindUnknown, Err: err}
}

func (e *Engine) pipeline(ctx context.Context, L log.Logger, t ticket.Ticket, now time.Time) (ticket.FinalDecision, error) {
	var (
		cls  ticket.IssueClassification
		ents ticket.ExtractedEntities
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := call(gctx, e, L, StateClassifying, func(ctx context.Context) (ticket.IssueClassification, error) {
			return e.s.Classifier.Classify(ctx, t)
		})
		if err != nil {
			return err
		}
		cls, err = ticket.NewClassification(c.PrimaryCategory, c.Confidence, c.Keywords, c.SecondaryCategories)
		if err != nil {
			return invalid(StateClassifying, err)
		}
		return nil
	})
	g.Go(func() error {
		x, err := call(gctx, e, L, StateExtracting, func(ctx context.Context) (ticket.ExtractedEntities, error) {
			return e.s.Extractor.Extract(ctx, t)
		})
		ents = x
		return err
	})
	if err := g.Wait(); err != nil {
		return ticket.FinalDecision{}, err
	}

	var (
		customer ticket.Customer
		status   ticket.ServiceStatus
		history  ticket.HistoricalContext
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := call(gctx, e, L, StateContextualizing, func(ctx context.Context) (ticket.Customer, error) {
			return e.s.Directory.Profile(ctx, t.CustomerID)
		})
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return invalid(StateContextualizing, err)
		}
		customer = c
		return nil
	})
	g.Go(func() error {
		s, err := call(gctx, e, L, StateContextualizing, func(ctx context.Context) (ticket.ServiceStatus, error) {
			return e.s.Directory.ServiceStatus(ctx, ents.ServiceIDs)
		})
		if err != nil {
			return err
		}
		if !s.Health.Valid() {
			return invalid(StateContextualizing, fmt.Errorf("%w: unknown service health %q", ticket.ErrInvalid, s.Health))
		}
		status = s
		return nil
	})
	g.Go(func() error {
		h, err := call(gctx, e, L, StateContextualizing, func(ctx context.Context) (ticket.HistoricalContext, error) {
			return e.s.Directory.History(ctx, t.CustomerID, e.opts.HistoryLimit)
		})
		history = h
		return err
	})
	if err := g.Wait(); err != nil {
		return ticket.FinalDecision{}, err
	}

	pc, err := call(ctx, e, L, StateScoring, func(ctx context.Context) (ticket.PriorityCalculation, error) {
		return e.s.Scorer.Score(ctx, priority.Input{
			Customer:       customer,
			Classification: cls,
			Health:         status.Health,
			AgeHours:       t.AgeHours(now),
		})
	})
	if err != nil {
		return ticket.FinalDecision{}, err
	}
	if pc, err = ticket.NewPriorityCalculation(pc.Level, pc.Score, pc.Factors, pc.Reasoning); err != nil {
		return ticket.FinalDecision{}, invalid(StateScoring, err)
	}

	rd, err := call(ctx, e, L, StateRouting, func(ctx context.Context) (ticket.RoutingDecision, error) {
		return e.s.Router.Route(ctx, cls, ents, status)
	})
	if err != nil {
		return ticket.FinalDecision{}, err
	}
	if rd, err = ticket.NewRoutingDecision(rd.AssignedTeam, rd.Confidence, rd.AlternativeTeams, rd.Reasoning, rd.RequiresManualReview); err != nil {
		return ticket.FinalDecision{}, invalid(StateRouting, err)
	}

	confidence := ticket.MaxConfidenceScore * min(cls.Confidence, rd.Confidence)
	review := rd.RequiresManualReview || cls.Confidence < ticket.ConfidenceGate
	reasoning := explain(customer, pc, rd, status, history, ents)

	d, err := ticket.NewFinalDecision(t.TicketID, t.CustomerID, rd.AssignedTeam, pc.Level, confidence, reasoning, 0, review, time.Time{})
	if err != nil {
		return ticket.FinalDecision{}, invalid(StateDecided, err)
	}
	return d, nil
}

func (e *Engine) narrate(ctx context.Context, L log.Logger, t ticket.Ticket) (ticket.FinalDecision, error) {
	text, err := call(ctx, e, L, StateNarrating, func(ctx context.Context) (string, error) {
		return e.s.Narrator.Narrate(ctx, t)
	})
	if err != nil {
		return ticket.FinalDecision{}, err
	}

	n, err := DecodeNarrative(text)
	if err != nil {
		return ticket.FinalDecision{}, invalid(StateNarrating, err)
	}
	review := n.RequiresManualReview || n.ConfidenceScore < ticket.ConfidenceGate*ticket.MaxConfidenceScore
	d, err := ticket.NewFinalDecision(t.TicketID, t.CustomerID, n.AssignedTeam, n.PriorityLevel, n.ConfidenceScore, n.Reasoning, 0, review, time.Time{})
	if err != nil {
		return ticket.FinalDecision{}, invalid(StateNarrating, err)
	}
	return d, nil
}

// explain assembles the decision rationale from the stage outputs.
func explain(c ticket.Customer, pc ticket.PriorityCalculation, rd ticket.RoutingDecision, s ticket.ServiceStatus, h ticket.HistoricalContext, ents ticket.ExtractedEntities) string {
	parts := []string{
		rd.Reasoning,
		fmt.Sprintf("Priority %s (%s)", pc.Level, pc.Reasoning),
	}

	switch {
	case c.IsVIP:
		parts = append(parts, fmt.Sprintf("VIP %s customer", c.AccountType))
	case c.AccountType != "":
		parts = append(parts, fmt.Sprintf("%s customer", c.AccountType))
	}

	if s.Health != ticket.HealthHealthy && s.Health != "" {
		parts = append(parts, fmt.Sprintf("Service health %s with %d active outage(s)", s.Health, len(s.ActiveOutages)))
	}

	if len(h.RecentTickets) > 0 {
		line := fmt.Sprintf("%d prior ticket(s)", len(h.RecentTickets))
		if len(h.CommonIssues) > 0 {
			issues := make([]string, len(h.CommonIssues))
			for i, cat := range h.CommonIssues {
				issues[i] = string(cat)
			}
			line += ", common issues: " + strings.Join(issues, ", ")
		}
		if h.EscalationHistory {
			line += ", previously escalated"
		}
		parts = append(parts, line)
	}

	if !ents.Empty() {
		var refs []string
		refs = appendRefs(refs, "accounts", ents.AccountNumbers)
		refs = appendRefs(refs, "services", ents.ServiceIDs)
		refs = appendRefs(refs, "error codes", ents.ErrorCodes)
		refs = appendRefs(refs, "phones", ents.PhoneNumbers)
		if len(ents.MonetaryAmounts) > 0 {
			amounts := make([]string, len(ents.MonetaryAmounts))
			for i, a := range ents.MonetaryAmounts {
				amounts[i] = fmt.Sprintf("$%.2f", a)
			}
			refs = append(refs, "amounts "+strings.Join(amounts, ", "))
		}
		parts = append(parts, "Referenced "+strings.Join(refs, "; "))
	}

	return strings.Join(parts, ". ")
}

func appendRefs(refs []string, label string, vals []string) []string {
	if len(vals) == 0 {
		return refs
	}
	return append(refs, label+" "+strings.Join(vals, ", "))
}
