// Package routing assigns a classified ticket to a handling team.
package routing

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Route is the team and base confidence for a category.
type Route struct {
	Team ticket.Team
	Base float64
}

// DefaultRoute is used for categories with no explicit route.
var DefaultRoute = Route{Team: ticket.TeamTechnicalSupport, Base: 0.6}

// RouteFor returns the route of a category.
func RouteFor(c ticket.Category) Route {
	switch c {
	case ticket.CategoryNetworkOutage:
		return Route{Team: ticket.TeamNetworkOperations, Base: 0.9}
	case ticket.CategoryBillingDispute:
		return Route{Team: ticket.TeamBillingSupport, Base: 0.9}
	case ticket.CategoryTechnicalProblem:
		return Route{Team: ticket.TeamTechnicalSupport, Base: 0.8}
	case ticket.CategoryAccountAccess:
		return Route{Team: ticket.TeamAccountManagement, Base: 0.9}
	default:
		return DefaultRoute
	}
}

// Decide routes a classification. Confidence is the route's base scaled by
// the classifier confidence, and anything below the gate is flagged for
// manual review. Alternates come from secondary categories, excluding the
// assigned team and duplicates.
func Decide(c ticket.IssueClassification) (ticket.RoutingDecision, error) {
	route := RouteFor(c.PrimaryCategory)
	confidence := route.Base * c.Confidence

	alternates := []ticket.Team{}
	seen := map[ticket.Team]bool{route.Team: true}
	for _, sc := range c.SecondaryCategories {
		alt := RouteFor(sc).Team
		if seen[alt] {
			continue
		}
		seen[alt] = true
		alternates = append(alternates, alt)
	}

	review := confidence < ticket.ConfidenceGate
	reasoning := fmt.Sprintf("Classified as %s with %.2f confidence, routing to %s", c.PrimaryCategory, c.Confidence, route.Team)
	if review {
		reasoning += " - Low confidence, flagged for manual review"
	}

	return ticket.NewRoutingDecision(route.Team, confidence, alternates, reasoning, review)
}

// Table is the deterministic routing strategy.
type Table struct{}

// Route implements the orchestrator's router contract.
func (Table) Route(_ context.Context, c ticket.IssueClassification, _ ticket.ExtractedEntities, _ ticket.ServiceStatus) (ticket.RoutingDecision, error) {
	return Decide(c)
}
