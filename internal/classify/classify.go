// Package classify assigns a ticket to one of the fixed issue categories by
// keyword matching.
package classify

import (
	"context"
	"sort"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// keywords returns the keyword set for a category. Every category has an
// explicit arm; the default arm exists so an unknown category scores zero.
func keywords(c ticket.Category) []string {
	switch c {
	case ticket.CategoryNetworkOutage:
		return []string{"outage", "down", "offline", "connection", "connectivity", "network", "internet"}
	case ticket.CategoryBillingDispute:
		return []string{"bill", "charge", "invoice", "payment", "refund", "overcharged", "dispute", "cost"}
	case ticket.CategoryTechnicalProblem:
		return []string{"error", "not working", "broken", "slow", "issue", "problem", "technical", "router"}
	case ticket.CategoryAccountAccess:
		return []string{"password", "login", "access", "account", "locked", "authentication", "reset", "credentials"}
	default:
		return nil
	}
}

type scored struct {
	category ticket.Category
	score    float64
	matched  []string
}

// Classify scores text against each category's keyword set. The score of a
// category is matched keywords over set size. The highest score wins and ties
// go to the category earliest in enumeration order, so text that matches
// nothing classifies as Network Outage with confidence 0.
func Classify(text string) ticket.IssueClassification {
	lower := strings.ToLower(text)

	cats := ticket.Categories()
	results := make([]scored, 0, len(cats))
	for _, c := range cats {
		kws := keywords(c)
		matched := []string{}
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		var score float64
		if len(kws) > 0 {
			score = float64(len(matched)) / float64(len(kws))
		}
		results = append(results, scored{category: c, score: score, matched: matched})
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.score > best.score {
			best = r
		}
	}

	ranked := make([]scored, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	secondary := []ticket.Category{}
	for _, r := range ranked {
		if len(secondary) == ticket.MaxSecondaryCategories {
			break
		}
		if r.score > 0 && r.category != best.category {
			secondary = append(secondary, r.category)
		}
	}

	return ticket.IssueClassification{
		PrimaryCategory:     best.category,
		Confidence:          min(best.score, 1),
		Keywords:            best.matched,
		SecondaryCategories: secondary,
	}
}

// Keyword is the deterministic classification strategy.
type Keyword struct{}

// Classify implements the orchestrator's classifier contract. It never fails.
func (Keyword) Classify(_ context.Context, t ticket.Ticket) (ticket.IssueClassification, error) {
	return Classify(t.Text()), nil
}
