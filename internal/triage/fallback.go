package triage

import (
	"fmt"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Fallback decision constants.
const (
	FallbackTeam       = ticket.TeamTechnicalSupport
	FallbackPriority   = ticket.P2
	FallbackConfidence = 50.0
)

const fallbackTail = "Defaulting to Technical Support with medium priority. "

// FallbackReason returns the rationale attached to a fallback decision.
func FallbackReason(f *Failure) string {
	switch f.Kind {
	case KindThrottled:
		return "Fallback routing due to rate limiting. " +
			"The system is experiencing high load. " +
			fallbackTail +
			"Manual review required to ensure proper routing."
	case KindUnauthorized:
		return "Fallback routing due to access denied error. " +
			"Model provider credentials may be invalid or lack permissions. " +
			fallbackTail +
			"Manual review required. Please check credentials and permissions."
	case KindUnavailable:
		return "Fallback routing due to model unavailability. " +
			"The configured model may not be available. " +
			fallbackTail +
			"Manual review required. Please verify model configuration and region."
	case KindBadRequest:
		return fmt.Sprintf("Fallback routing due to an invalid request to the model provider: %v. ", f.Err) +
			fallbackTail +
			"Manual review required to ensure proper routing."
	case KindConnectivity:
		return "Fallback routing due to network connectivity issue. " +
			"Unable to reach the model provider. " +
			fallbackTail +
			"Manual review required. Please check network connectivity."
	default:
		return fmt.Sprintf("Fallback routing due to error: %v. ", f.Err) +
			fallbackTail +
			"Manual review required to ensure proper routing."
	}
}

// Fallback is the safe decision used when any stage fails. The caller sets
// processing time and timestamp.
func Fallback(t ticket.Ticket, f *Failure) ticket.FinalDecision {
	return ticket.FinalDecision{
		TicketID:             t.TicketID,
		CustomerID:           t.CustomerID,
		AssignedTeam:         FallbackTeam,
		PriorityLevel:        FallbackPriority,
		ConfidenceScore:      FallbackConfidence,
		Reasoning:            FallbackReason(f),
		RequiresManualReview: true,
		FailureKind:          string(f.Kind),
	}
}
