package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/linnemanlabs/switchboard/internal/refdata"
	"github.com/linnemanlabs/switchboard/internal/refdata/memstore"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

type stubTool struct {
	name string
	desc string
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return s.desc }
func (s *stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`"ok"`), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&stubTool{name: "my_tool", desc: "does stuff"})

	tool, ok := r.Get("my_tool")
	if !ok {
		t.Fatal("expected tool to be found")
	}
	if tool.Name() != "my_tool" {
		t.Errorf("Name() = %q, want %q", tool.Name(), "my_tool")
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected ok=false for missing tool")
	}
}

func TestRegistry_ToToolDefsSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&stubTool{name: "tool_b", desc: "desc b"})
	r.Register(&stubTool{name: "tool_a", desc: "desc a"})

	defs := r.ToToolDefs()
	if len(defs) != 2 {
		t.Fatalf("len(defs) = %d, want 2", len(defs))
	}
	if defs[0].Name != "tool_a" || defs[1].Name != "tool_b" {
		t.Errorf("defs order = %q, %q; want tool_a, tool_b", defs[0].Name, defs[1].Name)
	}
	if defs[0].Description != "desc a" {
		t.Errorf("tool_a description = %q, want %q", defs[0].Description, "desc a")
	}
	for _, d := range defs {
		if len(d.InputSchema) == 0 {
			t.Errorf("tool %q has empty InputSchema", d.Name)
		}
	}
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&stubTool{name: "dup", desc: "first"})
	r.Register(&stubTool{name: "dup", desc: "second"})

	tool, _ := r.Get("dup")
	if tool.Description() != "second" {
		t.Errorf("Description() = %q, want %q (should be overwritten)", tool.Description(), "second")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after overwrite", r.Len())
	}
}

func pipeline(t *testing.T) *Registry {
	t.Helper()
	seed, err := refdata.DefaultSeed(time.Now())
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	return NewPipelineTools(refdata.NewDirectory(memstore.New(seed)))
}

func run[T any](t *testing.T, r *Registry, name, params string) T {
	t.Helper()
	tool, ok := r.Get(name)
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	out, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	var v T
	if err := json.Unmarshal(out, &v); err != nil {
		t.Fatalf("%s output %s: %v", name, out, err)
	}
	return v
}

func TestNewPipelineTools_Names(t *testing.T) {
	t.Parallel()

	r := pipeline(t)
	want := []string{
		"calculate_priority",
		"check_service_status",
		"check_vip_status",
		"classify_issue",
		"extract_entities",
		"get_historical_context",
		"route_to_team",
	}
	defs := r.ToToolDefs()
	if len(defs) != len(want) {
		t.Fatalf("len(defs) = %d, want %d", len(defs), len(want))
	}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("defs[%d] = %q, want %q", i, d.Name, want[i])
		}
		if !json.Valid(d.InputSchema) {
			t.Errorf("tool %q schema is not valid JSON", d.Name)
		}
	}
}

func TestPipelineTools_ClassifyAndExtract(t *testing.T) {
	t.Parallel()

	r := pipeline(t)
	text := `{"ticket_text":"Internet down - account ACC-12345 shows NET-500 on SVC001"}`

	cls := run[ticket.IssueClassification](t, r, "classify_issue", text)
	if cls.PrimaryCategory != ticket.CategoryNetworkOutage {
		t.Errorf("primary = %q, want %q", cls.PrimaryCategory, ticket.CategoryNetworkOutage)
	}

	ents := run[ticket.ExtractedEntities](t, r, "extract_entities", text)
	if len(ents.ServiceIDs) != 1 || ents.ServiceIDs[0] != "SVC001" {
		t.Errorf("service ids = %v, want [SVC001]", ents.ServiceIDs)
	}
}

func TestPipelineTools_Lookups(t *testing.T) {
	t.Parallel()

	r := pipeline(t)

	cust := run[ticket.Customer](t, r, "check_vip_status", `{"customer_id":"CUST001"}`)
	if !cust.IsVIP || cust.AccountType != ticket.TierEnterprise {
		t.Errorf("CUST001 = %+v, want VIP Enterprise", cust)
	}

	unknown := run[ticket.Customer](t, r, "check_vip_status", `{"customer_id":"CUST999"}`)
	if unknown.IsVIP || unknown.AccountType != ticket.TierConsumer {
		t.Errorf("unknown customer = %+v, want non-VIP Consumer", unknown)
	}

	status := run[ticket.ServiceStatus](t, r, "check_service_status", `{"service_ids":["SVC002","SVC001"]}`)
	if status.Health != ticket.HealthOutage {
		t.Errorf("health = %q, want %q", status.Health, ticket.HealthOutage)
	}

	hist := run[ticket.HistoricalContext](t, r, "get_historical_context", `{"customer_id":"CUST001","limit":1}`)
	if len(hist.RecentTickets) != 1 {
		t.Errorf("recent tickets = %d, want 1", len(hist.RecentTickets))
	}
	if !hist.EscalationHistory {
		t.Error("expected escalation history for CUST001")
	}
}

func TestPipelineTools_PriorityAndRouting(t *testing.T) {
	t.Parallel()

	r := pipeline(t)

	pc := run[ticket.PriorityCalculation](t, r, "calculate_priority",
		`{"customer_id":"CUST001","primary_category":"Network Outage","service_health":"Outage","ticket_age_hours":2}`)
	if pc.Level != ticket.P0 || pc.Score != 80 {
		t.Errorf("priority = %s/%v, want P0/80", pc.Level, pc.Score)
	}

	rd := run[ticket.RoutingDecision](t, r, "route_to_team",
		`{"primary_category":"Billing Dispute","confidence":1,"secondary_categories":["Technical Problem"]}`)
	if rd.AssignedTeam != ticket.TeamBillingSupport {
		t.Errorf("team = %q, want %q", rd.AssignedTeam, ticket.TeamBillingSupport)
	}
	if rd.RequiresManualReview {
		t.Error("confidence 0.9 should not require review")
	}
	if len(rd.AlternativeTeams) != 1 || rd.AlternativeTeams[0] != ticket.TeamTechnicalSupport {
		t.Errorf("alternates = %v, want [Technical Support]", rd.AlternativeTeams)
	}
}

func TestPipelineTools_InvalidParams(t *testing.T) {
	t.Parallel()

	r := pipeline(t)
	tests := []struct {
		name   string
		tool   string
		params string
	}{
		{"malformed json", "classify_issue", `{`},
		{"missing customer", "check_vip_status", `{}`},
		{"unknown category", "route_to_team", `{"primary_category":"Weather","confidence":0.5}`},
		{"confidence out of range", "route_to_team", `{"primary_category":"Billing Dispute","confidence":1.5}`},
		{"unknown health", "calculate_priority", `{"customer_id":"CUST001","primary_category":"Network Outage","service_health":"Fine","ticket_age_hours":1}`},
		{"negative age", "calculate_priority", `{"customer_id":"CUST001","primary_category":"Network Outage","ticket_age_hours":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tool, _ := r.Get(tt.tool)
			if _, err := tool.Execute(context.Background(), json.RawMessage(tt.params)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
