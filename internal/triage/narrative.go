package triage

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/structured"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Narrative is the decision content recovered from a narrator's final text.
type Narrative struct {
	AssignedTeam         ticket.Team     `json:"assigned_team"`
	PriorityLevel        ticket.Priority `json:"priority_level"`
	ConfidenceScore      float64         `json:"confidence_score"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	Reasoning            string          `json:"reasoning"`
}

// DefaultNarrativeConfidence is used when free text states no confidence.
const DefaultNarrativeConfidence = 70.0

// narrativeJSON mirrors Narrative with plain strings so that unknown enum
// values surface as validation errors instead of decode failures.
type narrativeJSON struct {
	AssignedTeam         string   `json:"assigned_team"`
	PriorityLevel        string   `json:"priority_level"`
	ConfidenceScore      *float64 `json:"confidence_score"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	Reasoning            string   `json:"reasoning"`
}

// DecodeNarrative reads a narrator's final text. A JSON object following
// the decision contract is authoritative and is validated against the
// declared enums and bounds. Text without such an object goes through
// ParseNarrative.
func DecodeNarrative(text string) (Narrative, error) {
	raw, err := structured.Decode[narrativeJSON](text)
	if errors.Is(err, structured.ErrNoJSON) || (err == nil && raw.AssignedTeam == "" && raw.PriorityLevel == "") {
		return ParseNarrative(text), nil
	}
	if err != nil {
		return Narrative{}, err
	}

	var errs []error
	team, err := ticket.ParseTeam(raw.AssignedTeam)
	if err != nil {
		errs = append(errs, err)
	}
	level, err := ticket.ParsePriority(raw.PriorityLevel)
	if err != nil {
		errs = append(errs, err)
	}
	if raw.ConfidenceScore == nil {
		errs = append(errs, fmt.Errorf("%w: confidence_score missing", ticket.ErrInvalid))
	} else if c := *raw.ConfidenceScore; c < 0 || c > ticket.MaxConfidenceScore {
		errs = append(errs, fmt.Errorf("%w: confidence_score %v outside [0,%d]", ticket.ErrInvalid, c, ticket.MaxConfidenceScore))
	}
	if err := errors.Join(errs...); err != nil {
		return Narrative{}, fmt.Errorf("narrative decision: %w", err)
	}

	reasoning := raw.Reasoning
	if reasoning == "" {
		reasoning = text
	}
	return Narrative{
		AssignedTeam:         team,
		PriorityLevel:        level,
		ConfidenceScore:      *raw.ConfidenceScore,
		RequiresManualReview: raw.RequiresManualReview,
		Reasoning:            reasoning,
	}, nil
}

var (
	confidenceScoreRe = regexp.MustCompile(`confidence\s*score[:\s]+(\d+(?:\.\d+)?)\s*[/%]?`)
	confidencePctRe   = regexp.MustCompile(`confidence[:\s]+(\d+(?:\.\d+)?)\s*[/%]`)
)

// ParseNarrative recovers a decision from free text by cue words. It is
// a compatibility path for providers that ignore the JSON contract.
//
// Team cues are checked in order network, billing, technical, account and
// default to Technical Support. Priority cues are checked P0 to P3 and
// default to P2. Confidence is the largest "confidence score: N" mention,
// or failing that the largest "confidence: N%" mention, or 70.
func ParseNarrative(text string) Narrative {
	lower := strings.ToLower(text)

	n := Narrative{
		AssignedTeam:    ticket.TeamTechnicalSupport,
		PriorityLevel:   ticket.P2,
		ConfidenceScore: DefaultNarrativeConfidence,
		Reasoning:       text,
	}

	switch {
	case strings.Contains(lower, "network operations") || strings.Contains(lower, "network ops"):
		n.AssignedTeam = ticket.TeamNetworkOperations
	case strings.Contains(lower, "billing"):
		n.AssignedTeam = ticket.TeamBillingSupport
	case strings.Contains(lower, "technical"):
		n.AssignedTeam = ticket.TeamTechnicalSupport
	case strings.Contains(lower, "account"):
		n.AssignedTeam = ticket.TeamAccountManagement
	}

	switch {
	case strings.Contains(lower, "p0") || strings.Contains(lower, "critical"):
		n.PriorityLevel = ticket.P0
	case strings.Contains(lower, "p1") || strings.Contains(lower, "high"):
		n.PriorityLevel = ticket.P1
	case strings.Contains(lower, "p2") || strings.Contains(lower, "medium"):
		n.PriorityLevel = ticket.P2
	case strings.Contains(lower, "p3") || strings.Contains(lower, "low"):
		n.PriorityLevel = ticket.P3
	}

	matches := confidenceScoreRe.FindAllStringSubmatch(lower, -1)
	if len(matches) == 0 {
		matches = confidencePctRe.FindAllStringSubmatch(lower, -1)
	}
	if len(matches) > 0 {
		best := -1.0
		for _, m := range matches {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > best {
				best = v
			}
		}
		if best >= 0 {
			n.ConfidenceScore = min(best, ticket.MaxConfidenceScore)
		}
	}

	n.RequiresManualReview = strings.Contains(lower, "manual review") || strings.Contains(lower, "flag")
	return n
}
