package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/switchboard/internal/classify"
	"github.com/linnemanlabs/switchboard/internal/extract"
	"github.com/linnemanlabs/switchboard/internal/priority"
	"github.com/linnemanlabs/switchboard/internal/routing"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Directory answers the reference-data questions behind the lookup tools.
type Directory interface {
	Profile(ctx context.Context, customerID string) (ticket.Customer, error)
	ServiceStatus(ctx context.Context, serviceIDs []string) (ticket.ServiceStatus, error)
	History(ctx context.Context, customerID string, limit int) (ticket.HistoricalContext, error)
}

// stage adapts one pipeline function to the Tool interface.
type stage struct {
	name   string
	desc   string
	schema string
	run    func(ctx context.Context, params json.RawMessage) (any, error)
}

func (s *stage) Name() string                { return s.name }
func (s *stage) Description() string         { return s.desc }
func (s *stage) Parameters() json.RawMessage { return json.RawMessage(s.schema) }

func (s *stage) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	out, err := s.run(ctx, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// NewPipelineTools registers the deterministic pipeline stages and the
// reference-data lookups as tools.
func NewPipelineTools(dir Directory) *Registry {
	if dir == nil {
		panic(xerrors.New("directory is required"))
	}
	r := NewRegistry()
	r.Register(classifyIssue())
	r.Register(extractEntities())
	r.Register(checkVIPStatus(dir))
	r.Register(checkServiceStatus(dir))
	r.Register(calculatePriority(dir))
	r.Register(routeToTeam())
	r.Register(historicalContext(dir))
	return r
}

func classifyIssue() Tool {
	return &stage{
		name: "classify_issue",
		desc: `Classify a support ticket into one of Network Outage, Billing Dispute,
Technical Problem or Account Access. Returns the primary category, a confidence in [0,1],
the matched keywords and up to two secondary categories.`,
		schema: `{
        "type": "object",
        "properties": {
            "ticket_text": {
                "type": "string",
                "description": "Ticket subject and description"
            }
        },
        "required": ["ticket_text"]
    }`,
		run: func(_ context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Text string `json:"ticket_text"`
			}
			if err := decode(params, &in); err != nil {
				return nil, err
			}
			return classify.Classify(in.Text), nil
		},
	}
}

func extractEntities() Tool {
	return &stage{
		name: "extract_entities",
		desc: `Extract account numbers (ACC-12345), service ids (SVC001), error codes (NET-500),
phone numbers (555-123-4567) and monetary amounts ($2,500.00) from ticket text.`,
		schema: `{
        "type": "object",
        "properties": {
            "ticket_text": {
                "type": "string",
                "description": "Ticket subject and description"
            }
        },
        "required": ["ticket_text"]
    }`,
		run: func(_ context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Text string `json:"ticket_text"`
			}
			if err := decode(params, &in); err != nil {
				return nil, err
			}
			return extract.Extract(in.Text), nil
		},
	}
}

func checkVIPStatus(dir Directory) Tool {
	return &stage{
		name: "check_vip_status",
		desc: `Look up a customer's profile: VIP flag, account type, lifetime value, standing
and service plan. Unknown customers are reported as non-VIP Consumer accounts.`,
		schema: `{
        "type": "object",
        "properties": {
            "customer_id": {
                "type": "string",
                "description": "Customer identifier, e.g. CUST001"
            }
        },
        "required": ["customer_id"]
    }`,
		run: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				CustomerID string `json:"customer_id"`
			}
			if err := decode(params, &in); err != nil {
				return nil, err
			}
			if err := required("customer_id", in.CustomerID); err != nil {
				return nil, err
			}
			return dir.Profile(ctx, in.CustomerID)
		},
	}
}

func checkServiceStatus(dir Directory) Tool {
	return &stage{
		name: "check_service_status",
		desc: `Report the aggregate health of the given services and their active outages.
The worst health of any listed service wins; an empty list is Healthy.`,
		schema: `{
        "type": "object",
        "properties": {
            "service_ids": {
                "type": "array",
                "items": {"type": "string"},
                "description": "Service identifiers, e.g. SVC001"
            }
        },
        "required": ["service_ids"]
    }`,
		run: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				ServiceIDs []string `json:"service_ids"`
			}
			if err := decode(params, &in); err != nil {
				return nil, err
			}
			return dir.ServiceStatus(ctx, in.ServiceIDs)
		},
	}
}

func calculatePriority(dir Directory) Tool {
	return &stage{
		name: "calculate_priority",
		desc: `Compute the weighted priority score (customer 30, severity 40, age 20, service
health 10) and the resulting level P0-P3 for a customer, issue category, service health
and ticket age.`,
		schema: `{
        "type": "object",
        "properties": {
            "customer_id": {"type": "string"},
            "primary_category": {
                "type": "string",
                "enum": ["Network Outage", "Billing Dispute", "Technical Problem", "Account Access"]
            },
            "service_health": {
                "type": "string",
                "enum": ["Healthy", "Degraded", "Outage"]
            },
            "ticket_age_hours": {"type": "number", "minimum": 0}
        },
        "required": ["customer_id", "primary_category", "ticket_age_hours"]
    }`,
		run: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				CustomerID string  `json:"customer_id"`
				Category   string  `json:"primary_category"`
				Health     string  `json:"service_health"`
				AgeHours   float64 `json:"ticket_age_hours"`
			}
			if err := decode(params, &in); err != nil {
				return nil, err
			}
			if err := required("customer_id", in.CustomerID); err != nil {
				return nil, err
			}
			cat, err := ticket.ParseCategory(in.Category)
			if err != nil {
				return nil, err
			}
			health := ticket.HealthHealthy
			if in.Health != "" {
				if health, err = ticket.ParseHealth(in.Health); err != nil {
					return nil, err
				}
			}
			if in.AgeHours < 0 {
				return nil, fmt.Errorf("ticket_age_hours must not be negative")
			}
			cust, err := dir.Profile(ctx, in.CustomerID)
			if err != nil {
				return nil, err
			}
			return priority.Score(priority.Input{
				Customer:       cust,
				Classification: ticket.IssueClassification{PrimaryCategory: cat},
				Health:         health,
				AgeHours:       in.AgeHours,
			})
		},
	}
}

func routeToTeam() Tool {
	return &stage{
		name: "route_to_team",
		desc: `Route a classified ticket to Network Operations, Billing Support, Technical
Support or Account Management. Returns the team, routing confidence, alternative teams
and whether manual review is required (confidence below 0.7).`,
		schema: `{
        "type": "object",
        "properties": {
            "primary_category": {
                "type": "string",
                "enum": ["Network Outage", "Billing Dispute", "Technical Problem", "Account Access"]
            },
            "confidence": {"type": "number", "minimum": 0, "maximum": 1},
            "secondary_categories": {
                "type": "array",
                "items": {"type": "string"}
            }
        },
        "required": ["primary_category", "confidence"]
    }`,
		run: func(_ context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Category   string   `json:"primary_category"`
				Confidence float64  `json:"confidence"`
				Secondary  []string `json:"secondary_categories"`
			}
			if err := decode(params, &in); err != nil {
				return nil, err
			}
			cat, err := ticket.ParseCategory(in.Category)
			if err != nil {
				return nil, err
			}
			var secondary []ticket.Category
			for _, s := range in.Secondary {
				sc, err := ticket.ParseCategory(s)
				if err != nil {
					return nil, err
				}
				secondary = append(secondary, sc)
			}
			if len(secondary) > ticket.MaxSecondaryCategories {
				secondary = secondary[:ticket.MaxSecondaryCategories]
			}
			cls, err := ticket.NewClassification(cat, in.Confidence, nil, secondary)
			if err != nil {
				return nil, err
			}
			return routing.Decide(cls)
		},
	}
}

func historicalContext(dir Directory) Tool {
	return &stage{
		name: "get_historical_context",
		desc: `Summarize a customer's resolved tickets: the most recent tickets, the distinct
issue types seen and whether any ticket was escalated.`,
		schema: `{
        "type": "object",
        "properties": {
            "customer_id": {"type": "string"},
            "limit": {
                "type": "integer",
                "minimum": 1,
                "description": "Maximum recent tickets to return (default 5)"
            }
        },
        "required": ["customer_id"]
    }`,
		run: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				CustomerID string `json:"customer_id"`
				Limit      int    `json:"limit"`
			}
			if err := decode(params, &in); err != nil {
				return nil, err
			}
			if err := required("customer_id", in.CustomerID); err != nil {
				return nil, err
			}
			return dir.History(ctx, in.CustomerID, in.Limit)
		},
	}
}
