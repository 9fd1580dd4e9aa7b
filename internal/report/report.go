// Package report derives batch statistics from decisions and renders them
// for the console.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Count is one bucket of a distribution.
type Count struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary is the aggregate view of a batch of decisions.
type Summary struct {
	Total           int     `json:"total"`
	AvgProcessingMS float64 `json:"avg_processing_time_ms"`
	AvgConfidence   float64 `json:"avg_confidence_score"`
	ManualReview    int     `json:"manual_review"`
	Fallbacks       int     `json:"fallbacks"`
	Teams           []Count `json:"teams"`
	Priorities      []Count `json:"priorities"`
}

// Summarize computes batch statistics. Distributions list only teams and
// priorities that occur, in enumeration order.
func Summarize(ds []ticket.FinalDecision) Summary {
	s := Summary{Total: len(ds), Teams: []Count{}, Priorities: []Count{}}
	if len(ds) == 0 {
		return s
	}

	teams := make(map[ticket.Team]int)
	levels := make(map[ticket.Priority]int)
	var ms, conf float64
	for _, d := range ds {
		ms += d.ProcessingTimeMS
		conf += d.ConfidenceScore
		if d.RequiresManualReview {
			s.ManualReview++
		}
		if d.Fallback() {
			s.Fallbacks++
		}
		teams[d.AssignedTeam]++
		levels[d.PriorityLevel]++
	}
	s.AvgProcessingMS = ms / float64(len(ds))
	s.AvgConfidence = conf / float64(len(ds))

	for _, t := range ticket.Teams() {
		if n := teams[t]; n > 0 {
			s.Teams = append(s.Teams, count(string(t), n, len(ds)))
		}
	}
	for _, p := range ticket.Priorities() {
		if n := levels[p]; n > 0 {
			s.Priorities = append(s.Priorities, count(string(p), n, len(ds)))
		}
	}
	return s
}

func count(name string, n, total int) Count {
	return Count{Name: name, Count: n, Percent: 100 * float64(n) / float64(total)}
}

var rule = strings.Repeat("=", 80)

// Write renders the summary table.
func (s Summary) Write(w io.Writer) error {
	p := &printer{w: w}
	if s.Total == 0 {
		p.printf("\nNo decisions to summarize.\n")
		return p.err
	}

	p.printf("\n%s\nSUMMARY STATISTICS\n%s\n", rule, rule)
	p.printf("\nTotal tickets processed: %d\n", s.Total)
	p.printf("Average processing time: %.0fms\n", s.AvgProcessingMS)
	p.printf("Average confidence score: %.1f%%\n", s.AvgConfidence)
	p.printf("Tickets requiring manual review: %d\n", s.ManualReview)
	if s.Fallbacks > 0 {
		p.printf("Fallback decisions: %d\n", s.Fallbacks)
	}

	p.printf("\nTeam Distribution:\n")
	for _, c := range s.Teams {
		p.printf("  %s: %d tickets (%.1f%%)\n", c.Name, c.Count, c.Percent)
	}
	p.printf("\nPriority Distribution:\n")
	for _, c := range s.Priorities {
		p.printf("  %s: %d tickets (%.1f%%)\n", c.Name, c.Count, c.Percent)
	}
	p.printf("%s\n\n", rule)
	return p.err
}

// WriteDecisions renders every decision. subjects maps ticket ids to their
// subject lines; missing entries print as Unknown.
func WriteDecisions(w io.Writer, ds []ticket.FinalDecision, subjects map[string]string) error {
	p := &printer{w: w}
	if len(ds) == 0 {
		p.printf("No decisions to display.\n")
		return p.err
	}

	p.printf("\n%s\nROUTING DECISIONS\n%s\n\n", rule, rule)
	for _, d := range ds {
		subject, ok := subjects[d.TicketID]
		if !ok {
			subject = "Unknown"
		}
		p.printf("Ticket ID: %s\n", d.TicketID)
		p.printf("Subject: %s\n", subject)
		p.printf("Customer: %s\n", d.CustomerID)
		p.printf("Assigned Team: %s\n", d.AssignedTeam)
		p.printf("Priority Level: %s\n", d.PriorityLevel)
		p.printf("Confidence Score: %.1f%%\n", d.ConfidenceScore)
		p.printf("Processing Time: %.0fms\n", d.ProcessingTimeMS)
		if d.RequiresManualReview {
			p.printf("REQUIRES MANUAL REVIEW\n")
		}
		p.printf("Reasoning: %s\n", d.Reasoning)
		p.printf("%s\n\n", strings.Repeat("-", 80))
	}
	return p.err
}

// printer keeps the first write error and skips later writes.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
