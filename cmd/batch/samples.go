package main

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

//go:embed samples.yaml
var samplesYAML []byte

type sample struct {
	TicketID    string `yaml:"ticket_id"`
	CustomerID  string `yaml:"customer_id"`
	Subject     string `yaml:"subject"`
	Description string `yaml:"description"`
	Age         string `yaml:"age"`
}

// sampleTickets returns the embedded sample tickets with timestamps relative
// to now.
func sampleTickets(now time.Time) ([]ticket.RawTicket, error) {
	var samples []sample
	if err := yaml.Unmarshal(samplesYAML, &samples); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}

	out := make([]ticket.RawTicket, len(samples))
	for i, s := range samples {
		age, err := time.ParseDuration(s.Age)
		if err != nil {
			return nil, fmt.Errorf("sample %s: age: %w", s.TicketID, err)
		}
		out[i] = ticket.RawTicket{
			TicketID:    s.TicketID,
			CustomerID:  s.CustomerID,
			Subject:     s.Subject,
			Description: s.Description,
			Timestamp:   now.Add(-age).UTC().Format(time.RFC3339),
		}
	}
	return out, nil
}
