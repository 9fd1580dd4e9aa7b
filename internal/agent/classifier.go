package agent

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

const classifierSystem = `You are an expert at classifying customer support tickets for a telecom company.

Classify tickets into one of these categories:
- Network Outage: Internet/network connectivity issues, service down, outages
- Billing Dispute: Billing problems, charges, invoices, refunds, payment issues
- Technical Problem: Device issues, technical errors, configuration problems
- Account Access: Login issues, password resets, authentication problems

Respond with a single JSON object and nothing else:
{"primary_category": "<category>", "confidence": <0.0-1.0>, "keywords": ["<keyword>", ...], "secondary_categories": ["<category>", ...]}

List at most two secondary categories.`

// Classifier classifies tickets with one model call.
type Classifier struct {
	provider  triage.Provider
	hooks     triage.EngineHooks
	maxTokens int
}

// NewClassifier returns a model-backed classifier.
func NewClassifier(p triage.Provider, hooks triage.EngineHooks) *Classifier {
	return &Classifier{provider: p, hooks: hooks, maxTokens: DefaultStageTokens}
}

type classificationAnswer struct {
	PrimaryCategory     string   `json:"primary_category"`
	Confidence          *float64 `json:"confidence"`
	Keywords            []string `json:"keywords"`
	SecondaryCategories []string `json:"secondary_categories"`
}

// Classify implements triage.Classifier.
func (c *Classifier) Classify(ctx context.Context, t ticket.Ticket) (ticket.IssueClassification, error) {
	prompt := fmt.Sprintf("Classify this support ticket:\n\nSubject: %s\nDescription: %s", t.Subject, t.Description)
	text, err := complete(ctx, c.provider, c.hooks, c.maxTokens, classifierSystem, prompt)
	if err != nil {
		return ticket.IssueClassification{}, err
	}
	return ParseClassification(text)
}

// ParseClassification reads a classification from a model answer in JSON
// or in the PRIMARY_CATEGORY/CONFIDENCE/KEYWORDS/SECONDARY_CATEGORIES line
// format. Secondary categories that repeat the primary are dropped and the
// rest truncated to two.
func ParseClassification(text string) (ticket.IssueClassification, error) {
	a, err := decode(text,
		func(a classificationAnswer) bool { return a.PrimaryCategory != "" },
		func(kv map[string]string) (classificationAnswer, error) {
			conf, err := unit("CONFIDENCE", kv["CONFIDENCE"])
			return classificationAnswer{
				PrimaryCategory:     kv["PRIMARY_CATEGORY"],
				Confidence:          conf,
				Keywords:            list(kv["KEYWORDS"]),
				SecondaryCategories: list(kv["SECONDARY_CATEGORIES"]),
			}, err
		})
	if err != nil {
		return ticket.IssueClassification{}, err
	}

	primary, ok := category(a.PrimaryCategory)
	if !ok {
		return ticket.IssueClassification{}, malformed("unknown category %q", a.PrimaryCategory)
	}
	if a.Confidence == nil {
		return ticket.IssueClassification{}, malformed("classification confidence missing")
	}

	secondary := []ticket.Category{}
	for _, s := range a.SecondaryCategories {
		sc, ok := category(s)
		if !ok {
			return ticket.IssueClassification{}, malformed("unknown secondary category %q", s)
		}
		if sc == primary || containsCategory(secondary, sc) {
			continue
		}
		secondary = append(secondary, sc)
	}
	if len(secondary) > ticket.MaxSecondaryCategories {
		secondary = secondary[:ticket.MaxSecondaryCategories]
	}

	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	cls, err := ticket.NewClassification(primary, *a.Confidence, keywords, secondary)
	if err != nil {
		return ticket.IssueClassification{}, malformed("%v", err)
	}
	return cls, nil
}

func containsCategory(cs []ticket.Category, c ticket.Category) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}
