package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// FieldError reports one invalid field of an ingested ticket record.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func (e FieldError) Unwrap() error { return ErrInvalid }

// Rejection is a ticket record excluded from a batch before it entered the
// pipeline.
type Rejection struct {
	Index    int          `json:"index"`
	TicketID string       `json:"ticket_id,omitempty"`
	Fields   []FieldError `json:"fields"`
}

func (r Rejection) Error() string {
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("ticket at index %d: %s", r.Index, strings.Join(parts, "; "))
}

func (r Rejection) Unwrap() error { return ErrInvalid }

// RawTicket is the ingestion record format.
type RawTicket struct {
	TicketID    string `json:"ticket_id"`
	CustomerID  string `json:"customer_id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04-0700",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 timestamps. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q is not ISO-8601", ErrInvalid, s)
}

// Validate checks a ticket's required fields and reports every offending
// field as a FieldError.
func Validate(t Ticket) error {
	fields := fieldErrors(t.TicketID, t.CustomerID, t.Subject, t.Description)
	if t.Timestamp.IsZero() {
		fields = append(fields, FieldError{Field: "timestamp", Reason: "must be a valid time"})
	}
	if len(fields) == 0 {
		return nil
	}
	errs := make([]error, len(fields))
	for i, f := range fields {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func fieldErrors(id, customerID, subject, description string) []FieldError {
	var out []FieldError
	if strings.TrimSpace(id) == "" {
		out = append(out, FieldError{Field: "ticket_id", Reason: "must not be empty"})
	}
	if strings.TrimSpace(customerID) == "" {
		out = append(out, FieldError{Field: "customer_id", Reason: "must not be empty"})
	}
	if strings.TrimSpace(subject) == "" {
		out = append(out, FieldError{Field: "subject", Reason: "must not be empty"})
	}
	if strings.TrimSpace(description) == "" {
		out = append(out, FieldError{Field: "description", Reason: "must not be empty"})
	}
	return out
}

// Admit converts raw records into tickets. Records with invalid fields are
// returned as rejections and excluded from the accepted list; order of the
// accepted tickets follows the input.
func Admit(raws []RawTicket) ([]Ticket, []Rejection) {
	accepted := make([]Ticket, 0, len(raws))
	var rejected []Rejection

	for i, raw := range raws {
		fields := fieldErrors(raw.TicketID, raw.CustomerID, raw.Subject, raw.Description)

		var ts time.Time
		if strings.TrimSpace(raw.Timestamp) == "" {
			fields = append(fields, FieldError{Field: "timestamp", Reason: "must not be empty"})
		} else if parsed, err := ParseTimestamp(raw.Timestamp); err != nil {
			fields = append(fields, FieldError{Field: "timestamp", Reason: "must be an ISO-8601 timestamp"})
		} else {
			ts = parsed
		}

		if len(fields) > 0 {
			rejected = append(rejected, Rejection{
				Index:    i,
				TicketID: strings.TrimSpace(raw.TicketID),
				Fields:   fields,
			})
			continue
		}

		t, err := NewTicket(raw.TicketID, raw.CustomerID, raw.Subject, raw.Description, ts)
		if err != nil {
			rejected = append(rejected, Rejection{
				Index:    i,
				TicketID: strings.TrimSpace(raw.TicketID),
				Fields:   []FieldError{{Field: "ticket", Reason: err.Error()}},
			})
			continue
		}
		accepted = append(accepted, t)
	}
	return accepted, rejected
}

// DecodeTickets reads a JSON array of ticket records and admits them. The
// returned error is non-nil only when the document itself cannot be decoded.
func DecodeTickets(r io.Reader) ([]Ticket, []Rejection, error) {
	var raws []RawTicket
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, nil, fmt.Errorf("decode tickets: %w", err)
	}
	accepted, rejected := Admit(raws)
	return accepted, rejected, nil
}
