package triage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantKind  Kind
		wantStage State
	}{
		{"plain error", errors.New("boom"), KindUnknown, StateRouting},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindConnectivity, StateRouting},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindConnectivity, StateRouting},
		{"tagged", Tag(KindThrottled, errors.New("429")), KindThrottled, StateRouting},
		{"wrapped tag", fmt.Errorf("provider: %w", Tag(KindUnavailable, errors.New("404"))), KindUnavailable, StateRouting},
		{"staged tag", &Failure{Stage: StateScoring, Kind: KindBadRequest, Err: errors.New("400")}, KindBadRequest, StateScoring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := Classify(StateRouting, tt.err)
			if f.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", f.Kind, tt.wantKind)
			}
			if f.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", f.Stage, tt.wantStage)
			}
		})
	}
}

func TestClassify_KeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("quota exhausted")
	f := Classify(StateClassifying, Tag(KindThrottled, cause))

	if !errors.Is(f, cause) {
		t.Error("Failure must unwrap to its cause")
	}
	if got := f.Error(); got != "classifying failed (throttled): quota exhausted" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFailure_ErrorWithoutStage(t *testing.T) {
	t.Parallel()

	if got := Tag(KindUnauthorized, errors.New("401")).Error(); got != "unauthorized: 401" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFallback(t *testing.T) {
	t.Parallel()

	tk := ticket.Ticket{TicketID: "TKT-1", CustomerID: "CUST001", Timestamp: time.Now()}
	tests := []struct {
		kind Kind
		want string
	}{
		{KindThrottled, "rate limiting"},
		{KindUnauthorized, "access denied"},
		{KindUnavailable, "model unavailability"},
		{KindBadRequest, "invalid request to the model provider: bad schema"},
		{KindConnectivity, "network connectivity"},
		{KindUnknown, "due to error: bad schema"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()

			d := Fallback(tk, &Failure{Kind: tt.kind, Err: errors.New("bad schema")})

			if d.AssignedTeam != ticket.TeamTechnicalSupport || d.PriorityLevel != ticket.P2 {
				t.Errorf("decision = %s/%s", d.AssignedTeam, d.PriorityLevel)
			}
			if d.ConfidenceScore != 50 || !d.RequiresManualReview {
				t.Errorf("confidence=%v review=%v", d.ConfidenceScore, d.RequiresManualReview)
			}
			if !strings.Contains(d.Reasoning, tt.want) {
				t.Errorf("reasoning = %q, want it to mention %q", d.Reasoning, tt.want)
			}
			if !strings.Contains(d.Reasoning, "Technical Support with medium priority") {
				t.Errorf("reasoning = %q, missing default routing note", d.Reasoning)
			}
			if d.FailureKind != string(tt.kind) || !d.Fallback() {
				t.Errorf("FailureKind = %q", d.FailureKind)
			}
		})
	}
}
