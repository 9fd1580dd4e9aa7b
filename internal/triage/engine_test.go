package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/switchboard/internal/classify"
	"github.com/linnemanlabs/switchboard/internal/extract"
	"github.com/linnemanlabs/switchboard/internal/priority"
	"github.com/linnemanlabs/switchboard/internal/refdata"
	"github.com/linnemanlabs/switchboard/internal/refdata/memstore"
	"github.com/linnemanlabs/switchboard/internal/routing"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type classifierFunc func(context.Context, ticket.Ticket) (ticket.IssueClassification, error)

func (f classifierFunc) Classify(ctx context.Context, t ticket.Ticket) (ticket.IssueClassification, error) {
	return f(ctx, t)
}

type routerFunc func(context.Context, ticket.IssueClassification) (ticket.RoutingDecision, error)

func (f routerFunc) Route(ctx context.Context, c ticket.IssueClassification, _ ticket.ExtractedEntities, _ ticket.ServiceStatus) (ticket.RoutingDecision, error) {
	return f(ctx, c)
}

type narratorFunc func(context.Context, ticket.Ticket) (string, error)

func (f narratorFunc) Narrate(ctx context.Context, t ticket.Ticket) (string, error) {
	return f(ctx, t)
}

func directory(t *testing.T) *refdata.Directory {
	t.Helper()
	seed, err := refdata.DefaultSeed(base)
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	return refdata.NewDirectory(memstore.New(seed))
}

func deterministic(t *testing.T) Strategies {
	t.Helper()
	return Strategies{
		Classifier: classify.Keyword{},
		Extractor:  extract.Regex{},
		Scorer:     priority.Weighted{},
		Router:     routing.Table{},
		Directory:  directory(t),
	}
}

// sleepRecorder stands in for Options.Sleep.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestEngine(s Strategies, hooks EngineHooks, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = (&stepClock{now: base, step: 25 * time.Millisecond}).Now
	}
	if opts.Sleep == nil {
		opts.Sleep = (&sleepRecorder{}).Sleep
	}
	return NewEngine(s, log.Nop(), hooks, opts)
}

func mustTicket(t *testing.T, id, customer, subject, description string, age time.Duration) ticket.Ticket {
	t.Helper()
	tk, err := ticket.NewTicket(id, customer, subject, description, base.Add(-age))
	if err != nil {
		t.Fatalf("NewTicket: %v", err)
	}
	return tk
}

func TestDecide_NetworkOutageRoutesToNetworkOperations(t *testing.T) {
	t.Parallel()

	e := newTestEngine(deterministic(t), EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-001", "CUST004", "No internet connection",
		"Cannot connect to the internet since this morning. Network is offline.", 5*time.Hour)

	d := e.Decide(context.Background(), tk)

	if d.AssignedTeam != ticket.TeamNetworkOperations {
		t.Errorf("team = %q, want %q", d.AssignedTeam, ticket.TeamNetworkOperations)
	}
	if d.Fallback() {
		t.Errorf("unexpected fallback: %s", d.Reasoning)
	}
	if !strings.HasPrefix(d.Reasoning, "Classified as Network Outage") {
		t.Errorf("reasoning = %q, want routing rationale first", d.Reasoning)
	}
}

func TestDecide_VIPEnterpriseOutageIsP0(t *testing.T) {
	t.Parallel()

	e := newTestEngine(deterministic(t), EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-001", "CUST001", "Internet connection down - URGENT",
		"My internet has been down for 2 hours. Error code: NET-500. Service SVC001 is completely offline. This is affecting our entire office.",
		2*time.Hour)

	d := e.Decide(context.Background(), tk)

	if d.PriorityLevel != ticket.P0 {
		t.Errorf("priority = %q, want P0 (reasoning %q)", d.PriorityLevel, d.Reasoning)
	}
	if !strings.Contains(d.Reasoning, "Score: 80.0 - vip_bonus=30, severity=40, outage_impact=10") {
		t.Errorf("reasoning = %q, want priority rationale with score 80", d.Reasoning)
	}
	if !strings.Contains(d.Reasoning, "Service health Outage") {
		t.Errorf("reasoning = %q, want service health summary", d.Reasoning)
	}
	if !strings.Contains(d.Reasoning, "previously escalated") {
		t.Errorf("reasoning = %q, want escalation history", d.Reasoning)
	}
}

func TestDecide_ConsumerBillingHealthyIsP3(t *testing.T) {
	t.Parallel()

	e := newTestEngine(deterministic(t), EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-004", "CUST002", "Incorrect charge on my bill",
		"I was charged $150.00 for services I did not use.", time.Hour)

	d := e.Decide(context.Background(), tk)

	if d.AssignedTeam != ticket.TeamBillingSupport {
		t.Errorf("team = %q, want %q", d.AssignedTeam, ticket.TeamBillingSupport)
	}
	if d.PriorityLevel != ticket.P3 {
		t.Errorf("priority = %q, want P3", d.PriorityLevel)
	}
	if !strings.Contains(d.Reasoning, "amounts $150.00") {
		t.Errorf("reasoning = %q, want monetary amount", d.Reasoning)
	}
}

func TestDecide_EntitiesInReasoning(t *testing.T) {
	t.Parallel()

	e := newTestEngine(deterministic(t), EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-D", "CUST002", "Account problem",
		"My account ACC-12345 shows NET-500", time.Hour)

	d := e.Decide(context.Background(), tk)

	if !strings.Contains(d.Reasoning, "error codes ACC-12345, NET-500") {
		t.Errorf("reasoning = %q, want error codes in match order", d.Reasoning)
	}
	if !strings.Contains(d.Reasoning, "accounts ACC-12345") {
		t.Errorf("reasoning = %q, want account numbers", d.Reasoning)
	}
}

func TestDecide_UnknownCustomerAndService(t *testing.T) {
	t.Parallel()

	e := newTestEngine(deterministic(t), EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-E", "CUST999", "Router not working",
		"The router keeps rebooting. Service SVC999 is affected.", time.Hour)

	d := e.Decide(context.Background(), tk)

	if d.Fallback() {
		t.Fatalf("unknown references must not cause fallback: %s", d.Reasoning)
	}
	if d.AssignedTeam != ticket.TeamTechnicalSupport {
		t.Errorf("team = %q, want %q", d.AssignedTeam, ticket.TeamTechnicalSupport)
	}
	if d.PriorityLevel != ticket.P3 {
		t.Errorf("priority = %q, want P3 (severity only)", d.PriorityLevel)
	}
	if !strings.Contains(d.Reasoning, "Consumer customer") {
		t.Errorf("reasoning = %q, want unknown customer treated as Consumer", d.Reasoning)
	}
	if strings.Contains(d.Reasoning, "Service health") {
		t.Errorf("reasoning = %q, unknown service must count as healthy", d.Reasoning)
	}
}

func TestDecide_ThrottledRoutingFallsBack(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := deterministic(t)
	s.Router = routerFunc(func(context.Context, ticket.IssueClassification) (ticket.RoutingDecision, error) {
		calls.Add(1)
		return ticket.RoutingDecision{}, Tag(KindThrottled, errors.New("429 too many requests"))
	})

	sleeper := &sleepRecorder{}
	var failures []string
	var retries atomic.Int32
	hooks := EngineHooks{
		OnStageFailure: func(stage State, kind Kind) { failures = append(failures, string(stage)+"/"+string(kind)) },
		OnRetry:        func(State) { retries.Add(1) },
	}
	e := newTestEngine(s, hooks, Options{RetryDelay: 3 * time.Second, Sleep: sleeper.Sleep})
	tk := mustTicket(t, "TKT-F", "CUST001", "Internet down", "Network outage on SVC001", time.Hour)

	d := e.Decide(context.Background(), tk)

	if got := calls.Load(); got != 2 {
		t.Errorf("router calls = %d, want 2 (one retry)", got)
	}
	if retries.Load() != 1 {
		t.Errorf("retries = %d, want 1", retries.Load())
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] != 3*time.Second {
		t.Errorf("sleeps = %v, want [3s]", sleeper.delays)
	}
	if d.AssignedTeam != ticket.TeamTechnicalSupport || d.PriorityLevel != ticket.P2 {
		t.Errorf("decision = %s/%s, want Technical Support/P2", d.AssignedTeam, d.PriorityLevel)
	}
	if d.ConfidenceScore != 50.0 {
		t.Errorf("confidence = %v, want 50", d.ConfidenceScore)
	}
	if !d.RequiresManualReview {
		t.Error("fallback must require manual review")
	}
	if !strings.Contains(d.Reasoning, "rate limiting") {
		t.Errorf("reasoning = %q, want rate limiting", d.Reasoning)
	}
	if d.FailureKind != string(KindThrottled) {
		t.Errorf("FailureKind = %q, want throttled", d.FailureKind)
	}
	if len(failures) != 1 || failures[0] != "routing/throttled" {
		t.Errorf("stage failures = %v, want [routing/throttled]", failures)
	}
	if d.ProcessingTimeMS != 25 {
		t.Errorf("ProcessingTimeMS = %v, want 25", d.ProcessingTimeMS)
	}
	if !d.Timestamp.Equal(base.Add(25 * time.Millisecond)) {
		t.Errorf("Timestamp = %v, want engine clock end time", d.Timestamp)
	}
}

func TestDecide_ThrottleThenSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := deterministic(t)
	s.Classifier = classifierFunc(func(ctx context.Context, tk ticket.Ticket) (ticket.IssueClassification, error) {
		if calls.Add(1) == 1 {
			return ticket.IssueClassification{}, Tag(KindThrottled, errors.New("slow down"))
		}
		return classify.Keyword{}.Classify(ctx, tk)
	})
	e := newTestEngine(s, EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-R", "CUST002", "Incorrect charge on my bill", "Refund the overcharged invoice", time.Hour)

	d := e.Decide(context.Background(), tk)

	if calls.Load() != 2 {
		t.Errorf("classifier calls = %d, want 2", calls.Load())
	}
	if d.Fallback() {
		t.Errorf("retry success must not fall back: %s", d.Reasoning)
	}
	if d.AssignedTeam != ticket.TeamBillingSupport {
		t.Errorf("team = %q, want %q", d.AssignedTeam, ticket.TeamBillingSupport)
	}
}

func TestDecide_NonThrottledFailureNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := deterministic(t)
	s.Router = routerFunc(func(context.Context, ticket.IssueClassification) (ticket.RoutingDecision, error) {
		calls.Add(1)
		return ticket.RoutingDecision{}, Tag(KindUnauthorized, errors.New("403"))
	})
	e := newTestEngine(s, EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-U", "CUST002", "Login", "Cannot login", time.Hour)

	d := e.Decide(context.Background(), tk)

	if calls.Load() != 1 {
		t.Errorf("router calls = %d, want 1", calls.Load())
	}
	if d.FailureKind != string(KindUnauthorized) {
		t.Errorf("FailureKind = %q, want unauthorized", d.FailureKind)
	}
	if !strings.Contains(d.Reasoning, "check credentials and permissions") {
		t.Errorf("reasoning = %q", d.Reasoning)
	}
}

func TestDecide_StageTimeoutIsConnectivity(t *testing.T) {
	t.Parallel()

	s := deterministic(t)
	s.Classifier = classifierFunc(func(ctx context.Context, _ ticket.Ticket) (ticket.IssueClassification, error) {
		<-ctx.Done()
		return ticket.IssueClassification{}, ctx.Err()
	})
	e := newTestEngine(s, EngineHooks{}, Options{StageTimeout: 10 * time.Millisecond})
	tk := mustTicket(t, "TKT-T", "CUST002", "Slow", "Everything is slow", time.Hour)

	d := e.Decide(context.Background(), tk)

	if d.FailureKind != string(KindConnectivity) {
		t.Errorf("FailureKind = %q, want connectivity", d.FailureKind)
	}
	if !strings.Contains(d.Reasoning, "network connectivity") {
		t.Errorf("reasoning = %q", d.Reasoning)
	}
}

func TestDecide_InvalidStageOutputFallsBack(t *testing.T) {
	t.Parallel()

	s := deterministic(t)
	s.Classifier = classifierFunc(func(context.Context, ticket.Ticket) (ticket.IssueClassification, error) {
		return ticket.IssueClassification{PrimaryCategory: ticket.CategoryNetworkOutage, Confidence: 1.5}, nil
	})
	e := newTestEngine(s, EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-X", "CUST002", "Down", "Internet down", time.Hour)

	d := e.Decide(context.Background(), tk)

	if d.FailureKind != string(KindUnknown) {
		t.Errorf("FailureKind = %q, want unknown", d.FailureKind)
	}
	if !strings.Contains(d.Reasoning, "outside [0,1]") {
		t.Errorf("reasoning = %q, want the validation error echoed", d.Reasoning)
	}
}

func TestDecide_InvalidTicketFallsBack(t *testing.T) {
	t.Parallel()

	e := newTestEngine(deterministic(t), EngineHooks{}, Options{})
	d := e.Decide(context.Background(), ticket.Ticket{TicketID: "TKT-BAD"})

	if !d.Fallback() {
		t.Fatal("invalid ticket must fall back")
	}
	if d.TicketID != "TKT-BAD" {
		t.Errorf("TicketID = %q, want TKT-BAD", d.TicketID)
	}
}

func TestDecide_ReviewFromClassifierGate(t *testing.T) {
	t.Parallel()

	s := deterministic(t)
	s.Classifier = classifierFunc(func(context.Context, ticket.Ticket) (ticket.IssueClassification, error) {
		return ticket.IssueClassification{PrimaryCategory: ticket.CategoryBillingDispute, Confidence: 0.25}, nil
	})
	s.Router = routerFunc(func(context.Context, ticket.IssueClassification) (ticket.RoutingDecision, error) {
		return ticket.RoutingDecision{AssignedTeam: ticket.TeamBillingSupport, Confidence: 0.95, Reasoning: "model routing"}, nil
	})
	e := newTestEngine(s, EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-G", "CUST002", "Bill", "Charge", time.Hour)

	d := e.Decide(context.Background(), tk)

	if !d.RequiresManualReview {
		t.Error("classifier confidence 0.25 must require review even when the router is confident")
	}
	if d.ConfidenceScore != 25 {
		t.Errorf("confidence = %v, want 25 (lowest signal)", d.ConfidenceScore)
	}
}

func TestDecide_Narrative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		err        error
		team       ticket.Team
		level      ticket.Priority
		confidence float64
		review     bool
		kind       string
	}{
		{
			name:       "json contract",
			text:       "```json\n{\"assigned_team\":\"Billing Support\",\"priority_level\":\"P1\",\"confidence_score\":85,\"requires_manual_review\":false,\"reasoning\":\"Disputed invoice\"}\n```",
			team:       ticket.TeamBillingSupport,
			level:      ticket.P1,
			confidence: 85,
		},
		{
			name:       "free text",
			text:       "Route to Network Operations. Priority: P0 given the outage. Confidence score: 92/100.",
			team:       ticket.TeamNetworkOperations,
			level:      ticket.P0,
			confidence: 92,
		},
		{
			name:       "low confidence forces review",
			text:       `{"assigned_team":"Technical Support","priority_level":"P2","confidence_score":65,"requires_manual_review":false,"reasoning":"unclear"}`,
			team:       ticket.TeamTechnicalSupport,
			level:      ticket.P2,
			confidence: 65,
			review:     true,
		},
		{
			name:       "invalid team",
			text:       `{"assigned_team":"Sales","priority_level":"P1","confidence_score":85}`,
			team:       FallbackTeam,
			level:      FallbackPriority,
			confidence: FallbackConfidence,
			review:     true,
			kind:       string(KindUnknown),
		},
		{
			name:       "throttled",
			err:        Tag(KindThrottled, errors.New("529 overloaded")),
			team:       FallbackTeam,
			level:      FallbackPriority,
			confidence: FallbackConfidence,
			review:     true,
			kind:       string(KindThrottled),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(Strategies{
				Narrator: narratorFunc(func(context.Context, ticket.Ticket) (string, error) { return tt.text, tt.err }),
			}, EngineHooks{}, Options{})
			tk := mustTicket(t, "TKT-N", "CUST001", "Subject", "Description", time.Hour)

			d := e.Decide(context.Background(), tk)

			if d.AssignedTeam != tt.team || d.PriorityLevel != tt.level {
				t.Errorf("decision = %s/%s, want %s/%s", d.AssignedTeam, d.PriorityLevel, tt.team, tt.level)
			}
			if d.ConfidenceScore != tt.confidence {
				t.Errorf("confidence = %v, want %v", d.ConfidenceScore, tt.confidence)
			}
			if d.RequiresManualReview != tt.review {
				t.Errorf("review = %v, want %v", d.RequiresManualReview, tt.review)
			}
			if d.FailureKind != tt.kind {
				t.Errorf("FailureKind = %q, want %q", d.FailureKind, tt.kind)
			}
		})
	}
}

func TestDecide_HooksOnDecision(t *testing.T) {
	t.Parallel()

	var got []ticket.FinalDecision
	var secs []float64
	e := newTestEngine(deterministic(t), EngineHooks{
		OnDecision: func(d ticket.FinalDecision, s float64) {
			got = append(got, d)
			secs = append(secs, s)
		},
	}, Options{})
	tk := mustTicket(t, "TKT-H", "CUST003", "Email", "Cannot send email. Error AUTH-202.", 4*time.Hour)

	d := e.Decide(context.Background(), tk)

	if len(got) != 1 || got[0].TicketID != d.TicketID {
		t.Fatalf("OnDecision calls = %d", len(got))
	}
	if secs[0] != 0.025 {
		t.Errorf("seconds = %v, want 0.025", secs[0])
	}
}

func TestNewEngine_RequiresStrategies(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing strategies")
		}
	}()
	NewEngine(Strategies{Classifier: classify.Keyword{}}, log.Nop(), EngineHooks{}, Options{})
}

func TestDecide_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	e := newTestEngine(deterministic(t), EngineHooks{}, Options{})
	tk := mustTicket(t, "TKT-S", "CUST002", "Bill", "Wrong charge", time.Hour)
	e.Decide(context.Background(), tk)

	counts := make(map[string]int)
	stages := make(map[string]bool)
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++
		for _, a := range s.Attributes {
			if a.Key == "switchboard.stage" {
				stages[a.Value.AsString()] = true
			}
		}
	}
	if counts["triage.decide"] != 1 {
		t.Errorf("triage.decide spans = %d, want 1", counts["triage.decide"])
	}
	// classify, extract, profile, health, history, score, route
	if counts["triage.stage"] != 7 {
		t.Errorf("triage.stage spans = %d, want 7", counts["triage.stage"])
	}
	for _, st := range []State{StateClassifying, StateExtracting, StateContextualizing, StateScoring, StateRouting} {
		if !stages[string(st)] {
			t.Errorf("missing stage span %q", st)
		}
	}
}

func TestDecide_Properties(t *testing.T) {
	t.Parallel()

	words := []string{
		"outage", "down", "internet", "bill", "charge", "refund", "error", "slow", "router",
		"password", "login", "locked", "SVC001", "SVC003", "SVC005", "ACC-12345", "$1,500.00",
		"hello", "please", "help",
	}
	customers := []string{"CUST001", "CUST002", "CUST003", "CUST004", "CUST005", "CUST006", "CUST007", "CUST008", "CUST404"}
	dir := directory(t)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		parts := make([]string, n)
		for i := range parts {
			parts[i] = rapid.SampledFrom(words).Draw(rt, "word")
		}
		cust := rapid.SampledFrom(customers).Draw(rt, "customer")
		age := time.Duration(rapid.IntRange(0, 96*60).Draw(rt, "age_minutes")) * time.Minute

		tk, err := ticket.NewTicket("TKT-P", cust, "Ticket", strings.Join(parts, " "), base.Add(-age))
		if err != nil {
			rt.Fatalf("NewTicket: %v", err)
		}

		e := NewEngine(Strategies{
			Classifier: classify.Keyword{},
			Extractor:  extract.Regex{},
			Scorer:     priority.Weighted{},
			Router:     routing.Table{},
			Directory:  dir,
		}, log.Nop(), EngineHooks{}, Options{Now: func() time.Time { return base }})

		d1 := e.Decide(context.Background(), tk)
		d2 := e.Decide(context.Background(), tk)

		if err := d1.Validate(); err != nil {
			rt.Fatalf("decision out of bounds: %v", err)
		}
		if d1.Fallback() {
			rt.Fatalf("deterministic pipeline fell back: %s", d1.Reasoning)
		}
		if d1.ConfidenceScore < ticket.ConfidenceGate*ticket.MaxConfidenceScore && !d1.RequiresManualReview {
			rt.Fatalf("confidence %v below gate without review", d1.ConfidenceScore)
		}
		if d1 != d2 {
			rt.Fatalf("not idempotent:\n%+v\n%+v", d1, d2)
		}
	})
}
