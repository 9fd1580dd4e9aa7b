// Package priority computes a ticket's priority from customer tier, issue
// severity, ticket age and service health.
package priority

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Factor names recorded in a PriorityCalculation.
const (
	FactorVIP        = "vip_bonus"
	FactorEnterprise = "enterprise_bonus"
	FactorBusiness   = "business_bonus"
	FactorSeverity   = "severity"
	FactorAge        = "age_penalty"
	FactorOutage     = "outage_impact"
	FactorDegraded   = "degraded_impact"
)

// Input is everything the scorer reads.
type Input struct {
	Customer       ticket.Customer
	Classification ticket.IssueClassification
	Health         ticket.Health
	AgeHours       float64
}

// Severity is the weight of an issue category.
func Severity(c ticket.Category) float64 {
	switch c {
	case ticket.CategoryNetworkOutage:
		return 40
	case ticket.CategoryAccountAccess:
		return 30
	case ticket.CategoryTechnicalProblem:
		return 20
	case ticket.CategoryBillingDispute:
		return 10
	default:
		return 20
	}
}

func customerFactor(c ticket.Customer) (string, float64) {
	switch {
	case c.IsVIP:
		return FactorVIP, 30
	case c.AccountType == ticket.TierEnterprise:
		return FactorEnterprise, 20
	case c.AccountType == ticket.TierBusiness:
		return FactorBusiness, 10
	default:
		return "", 0
	}
}

func ageFactor(hours float64) float64 {
	switch {
	case hours >= 48:
		return 20
	case hours >= 24:
		return 10
	default:
		return 0
	}
}

func healthFactor(h ticket.Health) (string, float64) {
	switch h {
	case ticket.HealthOutage:
		return FactorOutage, 10
	case ticket.HealthDegraded:
		return FactorDegraded, 5
	default:
		return "", 0
	}
}

// Level maps a score to a priority level.
func Level(score float64) ticket.Priority {
	switch {
	case score >= 80:
		return ticket.P0
	case score >= 60:
		return ticket.P1
	case score >= 40:
		return ticket.P2
	default:
		return ticket.P3
	}
}

// Score sums the weighted factors, recording each factor that contributes.
// The sum is not clamped; with these weights it cannot exceed 100.
func Score(in Input) (ticket.PriorityCalculation, error) {
	var factors []ticket.Factor
	var score float64

	add := func(name string, v float64) {
		if v == 0 {
			return
		}
		factors = append(factors, ticket.Factor{Name: name, Value: v})
		score += v
	}

	add(customerFactor(in.Customer))
	add(FactorSeverity, Severity(in.Classification.PrimaryCategory))
	add(FactorAge, ageFactor(in.AgeHours))
	add(healthFactor(in.Health))

	parts := make([]string, len(factors))
	for i, f := range factors {
		parts[i] = fmt.Sprintf("%s=%g", f.Name, f.Value)
	}
	reasoning := fmt.Sprintf("Score: %.1f - %s", score, strings.Join(parts, ", "))

	return ticket.NewPriorityCalculation(Level(score), score, factors, reasoning)
}

// Weighted is the deterministic scoring strategy.
type Weighted struct{}

// Score implements the orchestrator's scorer contract.
func (Weighted) Score(_ context.Context, in Input) (ticket.PriorityCalculation, error) {
	return Score(in)
}
