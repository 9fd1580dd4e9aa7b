package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

const routerSystem = `You are an expert at routing customer support tickets to the correct team.

Available teams:
- Network Operations: Network outages, connectivity issues, service disruptions
- Billing Support: Billing disputes, payment issues, invoice questions, refunds
- Technical Support: Device issues, technical problems, configuration help
- Account Management: Account access, password resets, authentication issues

Respond with a single JSON object and nothing else:
{"assigned_team": "<team>", "confidence": <0.0-1.0>, "alternative_teams": ["<team>", ...], "reasoning": "<brief explanation>", "requires_manual_review": <true|false>}`

// Router assigns teams with one model call.
type Router struct {
	provider  triage.Provider
	hooks     triage.EngineHooks
	maxTokens int
}

// NewRouter returns a model-backed router.
func NewRouter(p triage.Provider, hooks triage.EngineHooks) *Router {
	return &Router{provider: p, hooks: hooks, maxTokens: DefaultStageTokens}
}

type routingAnswer struct {
	AssignedTeam         string   `json:"assigned_team"`
	Confidence           *float64 `json:"confidence"`
	AlternativeTeams     []string `json:"alternative_teams"`
	Reasoning            string   `json:"reasoning"`
	RequiresManualReview bool     `json:"requires_manual_review"`
}

// Route implements triage.Router.
func (r *Router) Route(ctx context.Context, c ticket.IssueClassification, e ticket.ExtractedEntities, s ticket.ServiceStatus) (ticket.RoutingDecision, error) {
	secondary := make([]string, len(c.SecondaryCategories))
	for i, sc := range c.SecondaryCategories {
		secondary[i] = string(sc)
	}
	prompt := fmt.Sprintf(`Route this ticket to the correct support team:

Issue Classification:
- Primary Category: %s
- Confidence: %.2f
- Keywords: %s
- Secondary Categories: %s

Extracted Entities:
- Account Numbers: %s
- Service IDs: %s
- Error Codes: %s

Service Status: %s (%d active outage(s))`,
		c.PrimaryCategory, c.Confidence, joinOrNone(c.Keywords), joinOrNone(secondary),
		joinOrNone(e.AccountNumbers), joinOrNone(e.ServiceIDs), joinOrNone(e.ErrorCodes),
		s.Health, len(s.ActiveOutages))

	text, err := complete(ctx, r.provider, r.hooks, r.maxTokens, routerSystem, prompt)
	if err != nil {
		return ticket.RoutingDecision{}, err
	}
	return ParseRouting(text)
}

// ParseRouting reads a routing decision from a model answer in JSON or in
// the ASSIGNED_TEAM/CONFIDENCE/ALTERNATIVE_TEAMS/REASONING/MANUAL_REVIEW
// line format. A confidence below the review gate always requires review.
func ParseRouting(text string) (ticket.RoutingDecision, error) {
	a, err := decode(text,
		func(a routingAnswer) bool { return a.AssignedTeam != "" },
		func(kv map[string]string) (routingAnswer, error) {
			conf, err := unit("CONFIDENCE", kv["CONFIDENCE"])
			return routingAnswer{
				AssignedTeam:         kv["ASSIGNED_TEAM"],
				Confidence:           conf,
				AlternativeTeams:     list(kv["ALTERNATIVE_TEAMS"]),
				Reasoning:            kv["REASONING"],
				RequiresManualReview: strings.EqualFold(kv["MANUAL_REVIEW"], "yes"),
			}, err
		})
	if err != nil {
		return ticket.RoutingDecision{}, err
	}

	assigned, ok := team(a.AssignedTeam)
	if !ok {
		return ticket.RoutingDecision{}, malformed("unknown team %q", a.AssignedTeam)
	}
	if a.Confidence == nil {
		return ticket.RoutingDecision{}, malformed("routing confidence missing")
	}

	alternates := []ticket.Team{}
	seen := map[ticket.Team]bool{assigned: true}
	for _, s := range a.AlternativeTeams {
		alt, ok := team(s)
		if !ok {
			return ticket.RoutingDecision{}, malformed("unknown alternative team %q", s)
		}
		if seen[alt] {
			continue
		}
		seen[alt] = true
		alternates = append(alternates, alt)
	}

	reasoning := a.Reasoning
	if reasoning == "" {
		reasoning = fmt.Sprintf("Model routing to %s", assigned)
	}
	review := a.RequiresManualReview || *a.Confidence < ticket.ConfidenceGate
	rd, err := ticket.NewRoutingDecision(assigned, *a.Confidence, alternates, reasoning, review)
	if err != nil {
		return ticket.RoutingDecision{}, malformed("%v", err)
	}
	return rd, nil
}
