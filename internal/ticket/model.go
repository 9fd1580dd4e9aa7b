package ticket

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every construction and validation failure.
var ErrInvalid = errors.New("invalid value")

// ConfidenceGate is the single manual-review threshold used across the system.
// A confidence strictly below the gate requires manual review.
const ConfidenceGate = 0.7

// Ticket is one customer-reported support request.
type Ticket struct {
	TicketID    string    `json:"ticket_id"`
	CustomerID  string    `json:"customer_id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTicket trims identifiers and rejects empty fields or a zero timestamp.
func NewTicket(id, customerID, subject, description string, createdAt time.Time) (Ticket, error) {
	t := Ticket{
		TicketID:    strings.TrimSpace(id),
		CustomerID:  strings.TrimSpace(customerID),
		Subject:     subject,
		Description: description,
		Timestamp:   createdAt,
	}
	if err := Validate(t); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Text returns subject and description joined, the input to classification
// and extraction.
func (t Ticket) Text() string {
	return t.Subject + " " + t.Description
}

// AgeHours returns the ticket age at now, never negative.
func (t Ticket) AgeHours(now time.Time) float64 {
	h := now.Sub(t.Timestamp).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Customer is a read-only customer profile.
type Customer struct {
	CustomerID      string      `json:"customer_id" yaml:"customer_id"`
	IsVIP           bool        `json:"is_vip" yaml:"is_vip"`
	AccountType     AccountTier `json:"account_type" yaml:"account_type"`
	LifetimeValue   float64     `json:"lifetime_value" yaml:"lifetime_value"`
	AccountStanding string      `json:"account_standing" yaml:"account_standing"`
	ServicePlan     string      `json:"service_plan" yaml:"service_plan"`
}

// NewCustomer validates tier and lifetime value.
func NewCustomer(id string, vip bool, tier AccountTier, lifetimeValue float64, standing, plan string) (Customer, error) {
	c := Customer{
		CustomerID:      strings.TrimSpace(id),
		IsVIP:           vip,
		AccountType:     tier,
		LifetimeValue:   lifetimeValue,
		AccountStanding: standing,
		ServicePlan:     plan,
	}
	if err := c.Validate(); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// Validate checks the customer's bounded fields.
func (c Customer) Validate() error {
	var errs []error
	if c.CustomerID == "" {
		errs = append(errs, fmt.Errorf("%w: customer_id is empty", ErrInvalid))
	}
	if !c.AccountType.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown account tier %q", ErrInvalid, c.AccountType))
	}
	if c.LifetimeValue < 0 || math.IsNaN(c.LifetimeValue) {
		errs = append(errs, fmt.Errorf("%w: lifetime value %v is negative", ErrInvalid, c.LifetimeValue))
	}
	return errors.Join(errs...)
}

// UnknownCustomer is the profile used for ids missing from the directory.
func UnknownCustomer(id string) Customer {
	return Customer{
		CustomerID:      id,
		AccountType:     TierConsumer,
		AccountStanding: "Good",
		ServicePlan:     "Basic",
	}
}

// Outage is an active incident on a service.
type Outage struct {
	ServiceID   string    `json:"service_id"`
	Severity    string    `json:"severity"`
	StartedAt   time.Time `json:"started_at"`
	Description string    `json:"description,omitempty"`
}

// ServiceStatus is the aggregate health over a set of services.
type ServiceStatus struct {
	ServiceIDs    []string `json:"service_ids"`
	Health        Health   `json:"service_health"`
	ActiveOutages []Outage `json:"active_outages"`
}

// HealthyStatus is the status reported when no services are referenced.
func HealthyStatus() ServiceStatus {
	return ServiceStatus{
		ServiceIDs:    []string{},
		Health:        HealthHealthy,
		ActiveOutages: []Outage{},
	}
}

// IssueClassification is the output of the classification stage.
type IssueClassification struct {
	PrimaryCategory     Category   `json:"primary_category"`
	Confidence          float64    `json:"confidence"`
	Keywords            []string   `json:"keywords"`
	SecondaryCategories []Category `json:"secondary_categories"`
}

// MaxSecondaryCategories bounds IssueClassification.SecondaryCategories.
const MaxSecondaryCategories = 2

// NewClassification validates category, confidence and secondaries.
func NewClassification(primary Category, confidence float64, keywords []string, secondary []Category) (IssueClassification, error) {
	if !primary.Valid() {
		return IssueClassification{}, fmt.Errorf("%w: unknown category %q", ErrInvalid, primary)
	}
	if err := checkUnit("classification confidence", confidence); err != nil {
		return IssueClassification{}, err
	}
	if len(secondary) > MaxSecondaryCategories {
		return IssueClassification{}, fmt.Errorf("%w: %d secondary categories (max %d)", ErrInvalid, len(secondary), MaxSecondaryCategories)
	}
	for _, s := range secondary {
		if !s.Valid() {
			return IssueClassification{}, fmt.Errorf("%w: unknown secondary category %q", ErrInvalid, s)
		}
	}
	if keywords == nil {
		keywords = []string{}
	}
	if secondary == nil {
		secondary = []Category{}
	}
	return IssueClassification{
		PrimaryCategory:     primary,
		Confidence:          confidence,
		Keywords:            keywords,
		SecondaryCategories: secondary,
	}, nil
}

// ExtractedEntities holds structured references pulled from ticket text.
type ExtractedEntities struct {
	AccountNumbers  []string  `json:"account_numbers"`
	ServiceIDs      []string  `json:"service_ids"`
	ErrorCodes      []string  `json:"error_codes"`
	PhoneNumbers    []string  `json:"phone_numbers"`
	MonetaryAmounts []float64 `json:"monetary_amounts"`
}

// Empty reports whether no entity of any kind was found.
func (e ExtractedEntities) Empty() bool {
	return len(e.AccountNumbers) == 0 && len(e.ServiceIDs) == 0 && len(e.ErrorCodes) == 0 &&
		len(e.PhoneNumbers) == 0 && len(e.MonetaryAmounts) == 0
}

// Factor is one named contribution to a priority score.
type Factor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// PriorityCalculation is the output of the scoring stage.
type PriorityCalculation struct {
	Level     Priority `json:"priority_level"`
	Score     float64  `json:"priority_score"`
	Factors   []Factor `json:"factors"`
	Reasoning string   `json:"reasoning"`
}

// MaxPriorityScore is the nominal top of the priority scale.
const MaxPriorityScore = 100

// NewPriorityCalculation validates level and score.
func NewPriorityCalculation(level Priority, score float64, factors []Factor, reasoning string) (PriorityCalculation, error) {
	if !level.Valid() {
		return PriorityCalculation{}, fmt.Errorf("%w: unknown priority %q", ErrInvalid, level)
	}
	if score < 0 || score > MaxPriorityScore || math.IsNaN(score) {
		return PriorityCalculation{}, fmt.Errorf("%w: priority score %v outside [0,%d]", ErrInvalid, score, MaxPriorityScore)
	}
	return PriorityCalculation{Level: level, Score: score, Factors: factors, Reasoning: reasoning}, nil
}

// Factor returns the value recorded for name and whether it was recorded.
func (p PriorityCalculation) Factor(name string) (float64, bool) {
	for _, f := range p.Factors {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// RoutingDecision is the output of the routing stage.
type RoutingDecision struct {
	AssignedTeam         Team    `json:"assigned_team"`
	Confidence           float64 `json:"confidence"`
	AlternativeTeams     []Team  `json:"alternative_teams"`
	Reasoning            string  `json:"reasoning"`
	RequiresManualReview bool    `json:"requires_manual_review"`
}

// NewRoutingDecision validates team, alternates and confidence.
func NewRoutingDecision(team Team, confidence float64, alternates []Team, reasoning string, review bool) (RoutingDecision, error) {
	if !team.Valid() {
		return RoutingDecision{}, fmt.Errorf("%w: unknown team %q", ErrInvalid, team)
	}
	if err := checkUnit("routing confidence", confidence); err != nil {
		return RoutingDecision{}, err
	}
	for _, a := range alternates {
		if !a.Valid() {
			return RoutingDecision{}, fmt.Errorf("%w: unknown alternative team %q", ErrInvalid, a)
		}
	}
	if alternates == nil {
		alternates = []Team{}
	}
	return RoutingDecision{
		AssignedTeam:         team,
		Confidence:           confidence,
		AlternativeTeams:     alternates,
		Reasoning:            reasoning,
		RequiresManualReview: review,
	}, nil
}

// HistoricalTicket is a resolved past ticket for a customer.
type HistoricalTicket struct {
	TicketID            string    `json:"ticket_id" yaml:"ticket_id"`
	IssueType           Category  `json:"issue_type" yaml:"issue_type"`
	ResolutionTimeHours float64   `json:"resolution_time_hours" yaml:"resolution_time_hours"`
	Escalated           bool      `json:"escalated" yaml:"escalated"`
	ResolvedAt          time.Time `json:"resolved_at" yaml:"-"`
}

// Validate checks the historical ticket's bounded fields.
func (h HistoricalTicket) Validate() error {
	if !h.IssueType.Valid() {
		return fmt.Errorf("%w: unknown issue type %q", ErrInvalid, h.IssueType)
	}
	if h.ResolutionTimeHours < 0 || math.IsNaN(h.ResolutionTimeHours) {
		return fmt.Errorf("%w: resolution time %v is negative", ErrInvalid, h.ResolutionTimeHours)
	}
	return nil
}

// HistoricalContext summarizes a customer's past tickets.
type HistoricalContext struct {
	RecentTickets     []HistoricalTicket `json:"recent_tickets"`
	CommonIssues      []Category         `json:"common_issues"`
	EscalationHistory bool               `json:"escalation_history"`
}

// FinalDecision is the terminal, persisted artifact of triage for one ticket.
type FinalDecision struct {
	TicketID             string    `json:"ticket_id"`
	CustomerID           string    `json:"customer_id"`
	AssignedTeam         Team      `json:"assigned_team"`
	PriorityLevel        Priority  `json:"priority_level"`
	ConfidenceScore      float64   `json:"confidence_score"`
	Reasoning            string    `json:"reasoning"`
	ProcessingTimeMS     float64   `json:"processing_time_ms"`
	RequiresManualReview bool      `json:"requires_manual_review"`
	Timestamp            time.Time `json:"timestamp"`
	FailureKind          string    `json:"failure_kind,omitempty"`
}

// MaxConfidenceScore is the top of the FinalDecision confidence scale.
const MaxConfidenceScore = 100

// NewFinalDecision builds a decision and checks its bounded fields.
func NewFinalDecision(ticketID, customerID string, team Team, level Priority, confidence float64, reasoning string, processingMS float64, review bool, at time.Time) (FinalDecision, error) {
	d := FinalDecision{
		TicketID:             ticketID,
		CustomerID:           customerID,
		AssignedTeam:         team,
		PriorityLevel:        level,
		ConfidenceScore:      confidence,
		Reasoning:            reasoning,
		ProcessingTimeMS:     processingMS,
		RequiresManualReview: review,
		Timestamp:            at,
	}
	if err := d.Validate(); err != nil {
		return FinalDecision{}, err
	}
	return d, nil
}

// Validate checks every bounded field of the decision.
func (d FinalDecision) Validate() error {
	var errs []error
	if strings.TrimSpace(d.TicketID) == "" {
		errs = append(errs, fmt.Errorf("%w: ticket_id is empty", ErrInvalid))
	}
	if !d.AssignedTeam.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown team %q", ErrInvalid, d.AssignedTeam))
	}
	if !d.PriorityLevel.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown priority %q", ErrInvalid, d.PriorityLevel))
	}
	if d.ConfidenceScore < 0 || d.ConfidenceScore > MaxConfidenceScore || math.IsNaN(d.ConfidenceScore) {
		errs = append(errs, fmt.Errorf("%w: confidence score %v outside [0,%d]", ErrInvalid, d.ConfidenceScore, MaxConfidenceScore))
	}
	if d.ProcessingTimeMS < 0 || math.IsNaN(d.ProcessingTimeMS) {
		errs = append(errs, fmt.Errorf("%w: processing time %v is negative", ErrInvalid, d.ProcessingTimeMS))
	}
	return errors.Join(errs...)
}

// Fallback reports whether the decision came from the fallback path.
func (d FinalDecision) Fallback() bool {
	return d.FailureKind != ""
}

func checkUnit(what string, v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalid, what, v)
	}
	return nil
}
