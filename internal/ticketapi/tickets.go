package ticketapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// MaxBodyBytes caps a submitted batch.
const MaxBodyBytes = 8 << 20

// submission accepts either a bare JSON array of tickets or an object
// wrapping it.
type submission struct {
	Tickets []ticket.RawTicket `json:"tickets"`
}

func decodeSubmission(body []byte) ([]ticket.RawTicket, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	if trimmed[0] == '[' {
		var raws []ticket.RawTicket
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}

	var s submission
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	return s.Tickets, nil
}

func (a *API) handleSubmitTickets(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, `{"error":"payload too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	raws, err := decodeSubmission(body)
	if err != nil {
		a.logger.Warn(r.Context(), "rejected ticket submission", "error", err, "bytes", len(body))
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	res, err := a.svc.Submit(r.Context(), raws)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to submit tickets", "tickets", len(raws))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("switchboard.batch.id", res.BatchID),
		attribute.Int("switchboard.batch.size", len(raws)),
		attribute.Int("switchboard.batch.rejected", len(res.Rejected)),
	)

	writeJSON(w, http.StatusOK, res)
}
