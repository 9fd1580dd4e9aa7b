// Package resultfile persists batch decisions as JSON files: one document
// listing every decision and one document per ticket pairing the ticket
// with its decision.
package resultfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

const (
	// DecisionsFile is the batch document written under the output dir.
	DecisionsFile = "routing_decisions.json"
	// TicketsDir holds one document per ticket.
	TicketsDir = "tickets"
)

// ErrNotFound is returned when a requested result file does not exist.
var ErrNotFound = errors.New("result not found")

// TicketResult is the per-ticket document.
type TicketResult struct {
	Ticket   ticket.Ticket        `json:"ticket"`
	Decision ticket.FinalDecision `json:"decision"`
}

// WriteDecisions writes every decision to dir/routing_decisions.json and
// returns the file path.
func WriteDecisions(dir string, decisions []ticket.FinalDecision) (string, error) {
	if decisions == nil {
		decisions = []ticket.FinalDecision{}
	}
	path := filepath.Join(dir, DecisionsFile)
	if err := writeJSON(path, decisions); err != nil {
		return "", err
	}
	return path, nil
}

// ReadDecisions reads the batch document from dir.
func ReadDecisions(dir string) ([]ticket.FinalDecision, error) {
	var out []ticket.FinalDecision
	if err := readJSON(filepath.Join(dir, DecisionsFile), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteTicketResults writes dir/tickets/<ticket_id>.json for every decision
// whose ticket is in tickets. It returns the number of files written.
// Decisions without a matching ticket are skipped.
func WriteTicketResults(dir string, tickets []ticket.Ticket, decisions []ticket.FinalDecision) (int, error) {
	byID := make(map[string]ticket.Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.TicketID] = t
	}

	n := 0
	for _, d := range decisions {
		t, ok := byID[d.TicketID]
		if !ok {
			continue
		}
		path, err := ticketPath(dir, d.TicketID)
		if err != nil {
			return n, err
		}
		if err := writeJSON(path, TicketResult{Ticket: t, Decision: d}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ReadTicketResult reads the per-ticket document for ticketID.
func ReadTicketResult(dir, ticketID string) (TicketResult, error) {
	var out TicketResult
	path, err := ticketPath(dir, ticketID)
	if err != nil {
		return out, err
	}
	if err := readJSON(path, &out); err != nil {
		return TicketResult{}, err
	}
	return out, nil
}

// ticketPath maps a ticket id to its file, refusing ids that would escape
// the tickets directory.
func ticketPath(dir, ticketID string) (string, error) {
	if ticketID == "" || ticketID == "." || ticketID == ".." || strings.ContainsAny(ticketID, `/\`) {
		return "", fmt.Errorf("ticket id %q: %w", ticketID, ticket.ErrInvalid)
	}
	return filepath.Join(dir, TicketsDir, ticketID+".json"), nil
}

// writeJSON writes v indented to a temp file beside path and renames it
// into place.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
