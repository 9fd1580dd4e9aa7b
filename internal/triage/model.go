package triage

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// State tracks where a ticket is in the decision pipeline.
type State string

const (
	StatePending         State = "pending"
	StateClassifying     State = "classifying"
	StateExtracting      State = "extracting"
	StateContextualizing State = "contextualizing"
	StateScoring         State = "scoring"
	StateRouting         State = "routing"
	// StateNarrating is the single model-driven stage used instead of the
	// staged pipeline when a Narrator is configured.
	StateNarrating State = "narrating"
	StateFallback  State = "fallback"
	StateDecided   State = "decided"
)

// Kind tags why a stage failed. The fallback decision's rationale is chosen
// by Kind.
type Kind string

const (
	KindThrottled    Kind = "throttled"
	KindUnauthorized Kind = "unauthorized"
	KindUnavailable  Kind = "unavailable"
	KindBadRequest   Kind = "bad_request"
	KindConnectivity Kind = "connectivity"
	KindUnknown      Kind = "unknown"
)

// Failure is a tagged stage failure. Providers return a *Failure to tag
// their own errors; Classify tags everything else.
type Failure struct {
	Stage State
	Kind  Kind
	Err   error
}

func (f *Failure) Error() string {
	if f.Stage == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s failed (%s): %v", f.Stage, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Tag wraps err as a Failure of the given kind with no stage yet.
func Tag(kind Kind, err error) error {
	return &Failure{Kind: kind, Err: err}
}

// Classify turns any stage error into a Failure for stage. An existing
// Failure keeps its kind and gains the stage if it has none.
func Classify(stage State, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		out := *f
		if out.Stage == "" {
			out.Stage = stage
		}
		return &out
	}

	kind := KindUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindConnectivity
	case errors.As(err, &netErr):
		kind = KindConnectivity
	}
	return &Failure{Stage: stage, Kind: kind, Err: err}
}
