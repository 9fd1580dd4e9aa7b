package ticket

import (
	"encoding/json"
	"fmt"
)

// Category is the issue category assigned by classification.
type Category string

const (
	CategoryNetworkOutage    Category = "Network Outage"
	CategoryBillingDispute   Category = "Billing Dispute"
	CategoryTechnicalProblem Category = "Technical Problem"
	CategoryAccountAccess    Category = "Account Access"
)

var categories = []Category{
	CategoryNetworkOutage,
	CategoryBillingDispute,
	CategoryTechnicalProblem,
	CategoryAccountAccess,
}

// Categories returns all categories in enumeration order. Ties during
// classification are broken by this order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Team is a handling team.
type Team string

const (
	TeamNetworkOperations Team = "Network Operations"
	TeamBillingSupport    Team = "Billing Support"
	TeamTechnicalSupport  Team = "Technical Support"
	TeamAccountManagement Team = "Account Management"
)

var teams = []Team{
	TeamNetworkOperations,
	TeamBillingSupport,
	TeamTechnicalSupport,
	TeamAccountManagement,
}

// Teams returns all teams in enumeration order.
func Teams() []Team {
	out := make([]Team, len(teams))
	copy(out, teams)
	return out
}

// Priority is a four-level priority, P0 highest.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

var priorities = []Priority{P0, P1, P2, P3}

// Priorities returns all priority levels from highest to lowest.
func Priorities() []Priority {
	out := make([]Priority, len(priorities))
	copy(out, priorities)
	return out
}

// AccountTier is the commercial tier of a customer account.
type AccountTier string

const (
	TierEnterprise AccountTier = "Enterprise"
	TierConsumer   AccountTier = "Consumer"
	TierBusiness   AccountTier = "Business"
)

var tiers = []AccountTier{TierEnterprise, TierConsumer, TierBusiness}

// Health is the aggregate health of one or more services.
type Health string

const (
	HealthHealthy  Health = "Healthy"
	HealthDegraded Health = "Degraded"
	HealthOutage   Health = "Outage"
)

var healths = []Health{HealthHealthy, HealthDegraded, HealthOutage}

// Severity orders health levels: Healthy < Degraded < Outage.
// Unknown values rank below Healthy.
func (h Health) Severity() int {
	switch h {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	case HealthOutage:
		return 2
	default:
		return -1
	}
}

// Worse returns the more severe of a and b.
func Worse(a, b Health) Health {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

func (c Category) Valid() bool    { return contains(categories, c) }
func (t Team) Valid() bool        { return contains(teams, t) }
func (p Priority) Valid() bool    { return contains(priorities, p) }
func (a AccountTier) Valid() bool { return contains(tiers, a) }
func (h Health) Valid() bool      { return contains(healths, h) }

// ParseCategory returns the Category for its display string.
func ParseCategory(s string) (Category, error) { return parse(categories, s, "category") }

// ParseTeam returns the Team for its display string.
func ParseTeam(s string) (Team, error) { return parse(teams, s, "team") }

// ParsePriority returns the Priority for its display string.
func ParsePriority(s string) (Priority, error) { return parse(priorities, s, "priority") }

// ParseAccountTier returns the AccountTier for its display string.
func ParseAccountTier(s string) (AccountTier, error) { return parse(tiers, s, "account tier") }

// ParseHealth returns the Health for its display string.
func ParseHealth(s string) (Health, error) { return parse(healths, s, "service health") }

func (c *Category) UnmarshalJSON(b []byte) error    { return unmarshalEnum(b, c, ParseCategory) }
func (t *Team) UnmarshalJSON(b []byte) error        { return unmarshalEnum(b, t, ParseTeam) }
func (p *Priority) UnmarshalJSON(b []byte) error    { return unmarshalEnum(b, p, ParsePriority) }
func (a *AccountTier) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, a, ParseAccountTier) }
func (h *Health) UnmarshalJSON(b []byte) error      { return unmarshalEnum(b, h, ParseHealth) }

// UnmarshalYAML lets seed files use the same display strings as JSON.
func (a *AccountTier) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseAccountTier(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// UnmarshalYAML lets seed files use the same display strings as JSON.
func (h *Health) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseHealth(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// UnmarshalYAML lets seed files use the same display strings as JSON.
func (c *Category) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func contains[T ~string](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func parse[T ~string](set []T, s, what string) (T, error) {
	v := T(s)
	if !contains(set, v) {
		return "", fmt.Errorf("%w: unknown %s %q", ErrInvalid, what, s)
	}
	return v, nil
}

func unmarshalEnum[T ~string](b []byte, dst *T, parseFn func(string) (T, error)) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := parseFn(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
