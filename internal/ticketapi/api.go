// Package ticketapi exposes ticket submission and decision lookup over HTTP.
package ticketapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/switchboard/internal/report"
	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

// TriageService defines the business operations ticketapi needs.
type TriageService interface {
	Submit(ctx context.Context, raws []ticket.RawTicket) (*triage.SubmitResult, error)
	Get(ctx context.Context, ticketID string) (*triage.Result, bool, error)
	List(ctx context.Context) ([]*triage.Result, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tickets", a.handleSubmitTickets)
		r.Get("/decisions", a.handleListDecisions)
		r.Get("/decisions/{ticket_id}", a.handleGetDecision)
		r.Get("/report", a.handleReport)
	})
}

func (a *API) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticket_id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("switchboard.ticket.id", id))

	result, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get decision", "ticket_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(
		attribute.String("switchboard.team", string(result.Decision.AssignedTeam)),
		attribute.String("switchboard.priority", string(result.Decision.PriorityLevel)),
	)

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, ok := a.decisions(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	decisions, ok := a.decisions(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.Summarize(decisions))
}

// decisions lists every stored decision, writing the error response itself
// when the store fails.
func (a *API) decisions(w http.ResponseWriter, r *http.Request) ([]ticket.FinalDecision, bool) {
	results, err := a.svc.List(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list decisions")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return nil, false
	}

	out := make([]ticket.FinalDecision, 0, len(results))
	for _, res := range results {
		out = append(out, res.Decision)
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("switchboard.decisions", len(out)))
	return out, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}
